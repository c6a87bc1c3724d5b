// Command panmap-eval evaluates a .panmap multi-TSDF map against a
// ground-truth point cloud, as described by a YAML evaluation request.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/seqsense/panmap/eval"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML evaluation request")
	flag.Parse()
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: panmap-eval -config <request.yaml>")
		os.Exit(2)
	}

	req, err := eval.LoadRequest(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(req.Verbosity),
	}))
	slog.SetDefault(log)

	if err := eval.NewEvaluator(req, eval.WithLogger(log)).Run(); err != nil {
		os.Exit(1)
	}
}

func logLevel(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelWarn
	case verbosity <= 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
