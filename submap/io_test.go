package submap

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/seqsense/panmap/tsdf"
)

func TestSaveLoadRoundtrip(t *testing.T) {
	c := NewCollection()

	a := New(2, testConfig)
	c.Add(a)
	fillLayerBlock(a, tsdf.BlockIndex{0, 0, 0}, 0.2)
	fillLayerBlock(a, tsdf.BlockIndex{-1, 3, 0}, -0.1)
	// Give one block non-uniform content so LZF has something to chew on.
	b0, _ := a.Layer().Block(tsdf.BlockIndex{0, 0, 0})
	for i := 0; i < b0.NumVoxels(); i += 7 {
		v := b0.Voxel(i)
		v.Distance = float32(i) * 0.001
		v.Weight = float32(i%5) + 1
		v.Color = tsdf.Color{R: uint8(i), G: uint8(i / 2), B: 30}
	}

	b := New(7, Config{VoxelSize: 0.05, VoxelsPerSide: 4, TruncationDistance: 0.2})
	c.Add(b)
	fillLayerBlock(b, tsdf.BlockIndex{1, 1, 1}, 0.05)

	path := filepath.Join(t.TempDir(), "test"+FileExtension)
	if err := Save(path, c); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("Expected 2 submaps, got %d", loaded.Len())
	}
	for _, id := range c.IDs() {
		orig, _ := c.Get(id)
		got, ok := loaded.Get(id)
		if !ok {
			t.Fatalf("Submap %d missing after load", id)
		}
		if got.Config() != orig.Config() {
			t.Errorf("Submap %d config, expected: %+v, got: %+v", id, orig.Config(), got.Config())
		}
		origIndices := orig.Layer().AllocatedBlockIndices()
		gotIndices := got.Layer().AllocatedBlockIndices()
		if len(origIndices) != len(gotIndices) {
			t.Fatalf("Submap %d, expected %d blocks, got %d", id, len(origIndices), len(gotIndices))
		}
		for i, index := range origIndices {
			if gotIndices[i] != index {
				t.Fatalf("Submap %d block index, expected: %v, got: %v", id, index, gotIndices[i])
			}
			ob, _ := orig.Layer().Block(index)
			gb, _ := got.Layer().Block(index)
			for j := 0; j < ob.NumVoxels(); j++ {
				if *ob.Voxel(j) != *gb.Voxel(j) {
					t.Fatalf("Submap %d block %v voxel %d, expected: %+v, got: %+v",
						id, index, j, *ob.Voxel(j), *gb.Voxel(j))
				}
			}
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.panmap")); err == nil {
		t.Error("Loading a missing file must fail")
	}
}

func TestLoadBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.panmap")
	if err := os.WriteFile(path, []byte("NOTAMAP0junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Loading a file with wrong magic must fail")
	}
}

func TestLoadTruncatedFile(t *testing.T) {
	c := NewCollection()
	s := New(1, testConfig)
	c.Add(s)
	fillLayerBlock(s, tsdf.BlockIndex{0, 0, 0}, 0.1)

	dir := t.TempDir()
	path := filepath.Join(dir, "full.panmap")
	if err := Save(path, c); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	short := filepath.Join(dir, "short.panmap")
	if err := os.WriteFile(short, data[:len(data)/2], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(short); err == nil {
		t.Error("Loading a truncated file must fail")
	}
}

func TestLoadRejectsBadStoredLength(t *testing.T) {
	// Block headers claiming absurd payload sizes must be rejected before
	// any payload buffer is allocated.
	writeMap := func(t *testing.T, bh blockHeader) string {
		t.Helper()
		var buf bytes.Buffer
		buf.WriteString(fileMagic)
		binary.Write(&buf, binary.LittleEndian, uint32(1))
		binary.Write(&buf, binary.LittleEndian, &submapHeader{
			ID:                 1,
			VoxelSize:          testConfig.VoxelSize,
			VoxelsPerSide:      int32(testConfig.VoxelsPerSide),
			TruncationDistance: testConfig.TruncationDistance,
			NumBlocks:          1,
		})
		binary.Write(&buf, binary.LittleEndian, &bh)
		path := filepath.Join(t.TempDir(), "bad.panmap")
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	rawLen := uint32(8 * 8 * 8 * voxelBytes)

	testCases := map[string]blockHeader{
		"CompressedLargerThanRaw": {Encoding: blockEncodingLZF, StoredLen: 1 << 30, RawLen: rawLen},
		"CompressedEmpty":         {Encoding: blockEncodingLZF, StoredLen: 0, RawLen: rawLen},
		"RawSizeMismatch":         {Encoding: blockEncodingRaw, StoredLen: rawLen - 1, RawLen: rawLen},
		"UnknownEncoding":         {Encoding: 9, StoredLen: rawLen, RawLen: rawLen},
	}
	for name, bh := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeMap(t, bh)); err == nil {
				t.Error("Loading a block with an invalid stored size must fail")
			}
		})
	}
}

func TestSaveEmptyCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.panmap")
	if err := Save(path, NewCollection()); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 0 {
		t.Errorf("Expected empty collection, got %d submaps", loaded.Len())
	}
}
