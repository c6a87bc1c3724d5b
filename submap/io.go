package submap

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	lzf "github.com/zhuyie/golzf"

	"github.com/seqsense/panmap/tsdf"
)

// FileExtension is the canonical extension of persisted maps.
const FileExtension = ".panmap"

const fileMagic = "PANMAP01"

const (
	blockEncodingRaw uint8 = iota
	blockEncodingLZF
)

// voxelBytes is the wire size of one voxel:
// distance float32, weight float32, color 3 x uint8.
const voxelBytes = 4 + 4 + 3

type submapHeader struct {
	ID                 int32
	VoxelSize          float32
	VoxelsPerSide      int32
	TruncationDistance float32
	NumBlocks          uint32
}

type blockHeader struct {
	Index     [3]int32
	Encoding  uint8
	StoredLen uint32
	RawLen    uint32
}

// Save writes the whole collection to path in the .panmap format.
func Save(path string, c *Collection) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save map: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := write(w, c); err != nil {
		f.Close()
		return fmt.Errorf("save map: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("save map: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save map: %w", err)
	}
	return nil
}

func write(w io.Writer, c *Collection) error {
	if _, err := io.WriteString(w, fileMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(c.Len())); err != nil {
		return err
	}
	for _, id := range c.order {
		if err := writeSubmap(w, c.submaps[id]); err != nil {
			return err
		}
	}
	return nil
}

func writeSubmap(w io.Writer, s *Submap) error {
	indices := s.layer.AllocatedBlockIndices()
	hdr := submapHeader{
		ID:                 int32(s.id),
		VoxelSize:          s.config.VoxelSize,
		VoxelsPerSide:      int32(s.config.VoxelsPerSide),
		TruncationDistance: s.config.TruncationDistance,
		NumBlocks:          uint32(len(indices)),
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	for _, index := range indices {
		b, _ := s.layer.Block(index)
		if err := writeBlock(w, b); err != nil {
			return err
		}
	}
	return nil
}

func writeBlock(w io.Writer, b *tsdf.Block) error {
	var raw bytes.Buffer
	raw.Grow(b.NumVoxels() * voxelBytes)
	if err := binary.Write(&raw, binary.LittleEndian, b.Voxels()); err != nil {
		return err
	}

	payload := raw.Bytes()
	hdr := blockHeader{
		Index:    b.Index(),
		Encoding: blockEncodingLZF,
		RawLen:   uint32(len(payload)),
	}
	compressed := make([]byte, len(payload))
	n, err := lzf.Compress(payload, compressed)
	if err != nil || n == 0 || n >= len(payload) {
		// Incompressible block, store as-is.
		hdr.Encoding = blockEncodingRaw
		hdr.StoredLen = uint32(len(payload))
	} else {
		hdr.StoredLen = uint32(n)
		payload = compressed[:n]
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// Load reads a whole collection from a .panmap file.
func Load(path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load map: %w", err)
	}
	defer f.Close()
	c, err := read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("load map %s: %w", path, err)
	}
	return c, nil
}

func read(r io.Reader) (*Collection, error) {
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, err
	}
	if string(magic) != fileMagic {
		return nil, errors.New("not a panmap file")
	}
	var numSubmaps uint32
	if err := binary.Read(r, binary.LittleEndian, &numSubmaps); err != nil {
		return nil, err
	}
	c := NewCollection()
	for i := uint32(0); i < numSubmaps; i++ {
		s, err := readSubmap(r)
		if err != nil {
			return nil, err
		}
		if !c.Add(s) {
			return nil, fmt.Errorf("duplicate submap id %d", s.id)
		}
	}
	return c, nil
}

func readSubmap(r io.Reader) (*Submap, error) {
	var hdr submapHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.VoxelSize <= 0 || hdr.VoxelsPerSide <= 0 {
		return nil, fmt.Errorf("submap %d: invalid voxel geometry", hdr.ID)
	}
	s := New(int(hdr.ID), Config{
		VoxelSize:          hdr.VoxelSize,
		VoxelsPerSide:      int(hdr.VoxelsPerSide),
		TruncationDistance: hdr.TruncationDistance,
	})
	for i := uint32(0); i < hdr.NumBlocks; i++ {
		if err := readBlock(r, s.layer); err != nil {
			return nil, fmt.Errorf("submap %d: %w", hdr.ID, err)
		}
	}
	return s, nil
}

func readBlock(r io.Reader, layer *tsdf.Layer) error {
	var hdr blockHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	b := layer.AllocateBlock(hdr.Index)
	if int(hdr.RawLen) != b.NumVoxels()*voxelBytes {
		return fmt.Errorf("block %v: voxel payload size %d does not match geometry", hdr.Index, hdr.RawLen)
	}
	// Bound the stored size before allocating; a compressed payload is
	// always strictly smaller than the raw one (the writer falls back to
	// raw otherwise).
	switch hdr.Encoding {
	case blockEncodingRaw:
		if hdr.StoredLen != hdr.RawLen {
			return fmt.Errorf("block %v: raw payload size %d does not match %d", hdr.Index, hdr.StoredLen, hdr.RawLen)
		}
	case blockEncodingLZF:
		if hdr.StoredLen == 0 || hdr.StoredLen >= hdr.RawLen {
			return fmt.Errorf("block %v: compressed payload size %d out of range", hdr.Index, hdr.StoredLen)
		}
	default:
		return fmt.Errorf("block %v: unknown encoding %d", hdr.Index, hdr.Encoding)
	}
	stored := make([]byte, hdr.StoredLen)
	if _, err := io.ReadFull(r, stored); err != nil {
		return err
	}
	raw := stored
	if hdr.Encoding == blockEncodingLZF {
		raw = make([]byte, hdr.RawLen)
		n, err := lzf.Decompress(stored, raw)
		if err != nil {
			return fmt.Errorf("block %v: %w", hdr.Index, err)
		}
		if uint32(n) != hdr.RawLen {
			return fmt.Errorf("block %v: wrong uncompressed size", hdr.Index)
		}
	}
	return binary.Read(bytes.NewReader(raw), binary.LittleEndian, b.Voxels())
}
