package eval

import (
	"fmt"
	"io"
	"strings"
)

// ProgressBar renders a single-line text progress bar. It is purely
// observational and never affects results.
type ProgressBar struct {
	out   io.Writer
	width int
	done  bool
}

// NewProgressBar creates a bar writing to out.
func NewProgressBar(out io.Writer) *ProgressBar {
	return &ProgressBar{out: out, width: 50}
}

// Display redraws the bar at the given fraction of completion.
func (b *ProgressBar) Display(frac float64) {
	if b == nil || b.out == nil || b.done {
		return
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(b.width))
	fmt.Fprintf(b.out, "\r[%s%s] %3.0f%%",
		strings.Repeat("=", filled),
		strings.Repeat(" ", b.width-filled),
		frac*100)
	if frac >= 1 {
		fmt.Fprintln(b.out)
		b.done = true
	}
}

// Reset prepares the bar for another pass.
func (b *ProgressBar) Reset() {
	if b != nil {
		b.done = false
	}
}
