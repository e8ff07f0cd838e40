package objectmeta

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// OpenObjectMeta is an open metadata file: the parsed preamble, an
// in-memory mirror of the coverage bitmap, and the file offset at which the
// on-disk coverage map begins.
//
// A plain *os.File backs this, not mmap: the durability unit here is a
// single byte per mark_covered call, and WriteAt already expresses
// "write, then update memory" directly. mmap earns its keep for a WAL that
// batches many entries per sync; there is no batching win to claim for a
// single-byte write, so mmap would add complexity without changing the
// contract.
type OpenObjectMeta struct {
	mu   sync.Mutex
	file *os.File

	Preamble       Preamble
	CoverageOffset int
	coverage       []bool
}

// Create initializes a new metadata file at path: an all-zero coverage
// bitmap sized from blockCount, written after the serialized preamble.
// The file is created exclusively; it is an error for it to already exist.
func Create(path string, preamble Preamble, blockCount int) (*OpenObjectMeta, error) {
	body, err := Serialize(preamble)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("objectmeta: create %s: %w", path, err)
	}

	coverage := make([]byte, blockCount)
	if _, err := f.Write(body); err != nil {
		f.Close()
		return nil, fmt.Errorf("objectmeta: write preamble: %w", err)
	}
	if _, err := f.Write(coverage); err != nil {
		f.Close()
		return nil, fmt.Errorf("objectmeta: write coverage map: %w", err)
	}

	return &OpenObjectMeta{
		file:           f,
		Preamble:       preamble,
		CoverageOffset: len(body),
		coverage:       make([]bool, blockCount),
	}, nil
}

// Open reads the entire file into memory, parses it, and retains the
// handle for in-place coverage updates.
func Open(path string) (*OpenObjectMeta, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("objectmeta: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("objectmeta: stat %s: %w", path, err)
	}
	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("objectmeta: read %s: %w", path, err)
	}

	preamble, coverageOffset, err := Deserialize(buf)
	if err != nil {
		f.Close()
		return nil, err
	}

	raw := buf[coverageOffset:]
	coverage := make([]bool, len(raw))
	for i, b := range raw {
		coverage[i] = b != 0
	}

	return &OpenObjectMeta{
		file:           f,
		Preamble:       preamble,
		CoverageOffset: coverageOffset,
		coverage:       coverage,
	}, nil
}

// IsCovered reports whether blockNum is present in the in-memory mirror of
// the coverage bitmap. O(1).
func (m *OpenObjectMeta) IsCovered(blockNum int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if blockNum < 0 || blockNum >= len(m.coverage) {
		return false
	}
	return m.coverage[blockNum]
}

// CoverageSnapshot returns a copy of the coverage bitmap for a read-plan
// traversal. The synthesizer owns this snapshot for the duration of one
// plan; it never observes concurrent mark_covered calls mid-traversal.
func (m *OpenObjectMeta) CoverageSnapshot() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make([]bool, len(m.coverage))
	copy(snap, m.coverage)
	return snap
}

// BlockCount returns the number of blocks tracked by the coverage bitmap.
func (m *OpenObjectMeta) BlockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.coverage)
}

// MarkCovered durably records that blockNum is now present: it writes a
// single byte 0x01 at CoverageOffset+blockNum, then sets the in-memory bit.
// Disk write happens first, memory update second, so a crash between the
// two can leave the byte set on disk without the in-memory bit — callers
// never observe a bit set in memory but not on disk.
//
// On I/O error, the write is propagated and the in-memory mirror is left
// unchanged; the caller must retry or abort the fill.
func (m *OpenObjectMeta) MarkCovered(blockNum int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if blockNum < 0 || blockNum >= len(m.coverage) {
		return fmt.Errorf("objectmeta: block %d out of range [0,%d)", blockNum, len(m.coverage))
	}

	if _, err := m.file.WriteAt([]byte{0x01}, int64(m.CoverageOffset+blockNum)); err != nil {
		return fmt.Errorf("objectmeta: mark_covered(%d): %w", blockNum, err)
	}

	m.coverage[blockNum] = true
	return nil
}

// Close releases the underlying file handle.
func (m *OpenObjectMeta) Close() error {
	return m.file.Close()
}

