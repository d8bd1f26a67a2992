// Package device handles the write target: opening a file or block device
// for direct I/O, allocating alignment-safe buffers, and generating
// sector-aligned offsets within the configured arena.
package device

import (
	"math/rand"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/arkilian/iohammer/internal/errors"
)

// SectorSize is the alignment unit for offsets and buffers. Direct I/O is
// only legal when offset, length, and buffer address are all multiples of
// the logical sector size.
const SectorSize = 4096

// Device is the shared write target. The handle is opened once and used
// concurrently by all workers; positioned writes at independent offsets
// need no application-level locking.
type Device struct {
	file *os.File
	path string
}

// Open opens the target read-write without truncation. When direct is set,
// O_DIRECT bypasses the page cache so latency reflects the media. Tests
// run with direct=false because tmpfs rejects O_DIRECT.
func Open(path string, direct bool) (*Device, error) {
	flags := os.O_RDWR
	if direct {
		flags |= unix.O_DIRECT
	}

	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, errors.NewDeviceError(errors.CodeOpenFailed, "failed to open target "+path, err)
	}

	return &Device{file: f, path: path}, nil
}

// WriteAt writes buf at the given offset. The error is classified as a
// recoverable per-write failure; callers log and continue.
func (d *Device) WriteAt(buf []byte, off int64) error {
	if _, err := d.file.WriteAt(buf, off); err != nil {
		return errors.NewDeviceError(errors.CodeWriteFailed, "write failed", err)
	}
	return nil
}

// Sync flushes the target. Used by the fsync latency mode.
func (d *Device) Sync() error {
	if err := d.file.Sync(); err != nil {
		return errors.NewDeviceError(errors.CodeSyncFailed, "fsync failed", err)
	}
	return nil
}

// Path returns the target path.
func (d *Device) Path() string {
	return d.path
}

// Close closes the target handle.
func (d *Device) Close() error {
	return d.file.Close()
}

// AlignedBlock returns a buffer of the given size whose base address is a
// multiple of SectorSize, as required for O_DIRECT writes. It over-allocates
// and slices to the first aligned address.
func AlignedBlock(size int64) []byte {
	raw := make([]byte, size+SectorSize)
	off := alignmentOffset(raw)
	return raw[off : off+size : off+size]
}

// alignmentOffset returns how many bytes into raw the first SectorSize-
// aligned address lies.
func alignmentOffset(raw []byte) int64 {
	addr := int64(uintptr(unsafe.Pointer(&raw[0])))
	rem := addr % SectorSize
	if rem == 0 {
		return 0
	}
	return SectorSize - rem
}

// Arena bounds the randomly addressed byte range of the target.
type Arena struct {
	size int64 // bytes
}

// NewArena returns an arena covering [0, sizeBytes). sizeBytes must be at
// least one sector.
func NewArena(sizeBytes int64) Arena {
	return Arena{size: sizeBytes}
}

// Size returns the arena size in bytes.
func (a Arena) Size() int64 {
	return a.size
}

// RandomOffset returns a uniformly random sector-aligned offset such that
// offset is in [0, size) and offset+blockSize does not run past the arena.
// Each worker passes its own rand.Rand so the global lock is never contended.
func (a Arena) RandomOffset(rng *rand.Rand, blockSize int64) int64 {
	sectors := (a.size - blockSize) / SectorSize
	if sectors <= 0 {
		return 0
	}
	return rng.Int63n(sectors+1) * SectorSize
}
