// Package testing provides fixtures for tests that need a disk image, a
// device, or a whole formatted file system without touching the host file
// system.
package testing

import (
	"io"
	"testing"

	"github.com/dargueta/sectorfs"
	"github.com/dargueta/sectorfs/disk"
	"github.com/dargueta/sectorfs/fs"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// NewImageStream returns an in-memory disk image of `numSectors` blank
// sectors. Writes are bounded by the image size; the stream cannot grow.
func NewImageStream(t *testing.T, numSectors int) io.ReadWriteSeeker {
	t.Helper()
	backing := make([]byte, numSectors*sectorfs.SectorSize)
	return bytesextra.NewReadWriteSeeker(backing)
}

// NewDevice returns a sector device over a blank in-memory image. It either
// succeeds or fails the test.
func NewDevice(t *testing.T, numSectors int) *disk.StreamDevice {
	t.Helper()
	device, err := disk.NewStreamDevice(NewImageStream(t, numSectors), numSectors)
	require.NoErrorf(t, err, "failed to create a %d-sector device", numSectors)
	return device
}

// NewFormattedFS formats a blank in-memory device and mounts a file system
// on it, returning both so tests can also inspect the raw sectors. It either
// succeeds or fails the test.
func NewFormattedFS(t *testing.T, numSectors int) (*fs.FileSystem, *disk.StreamDevice) {
	t.Helper()
	device := NewDevice(t, numSectors)
	fileSystem, err := fs.New(device, true)
	require.NoErrorf(t, err, "failed to format a %d-sector file system", numSectors)
	return fileSystem, device
}
