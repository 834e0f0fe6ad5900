package fs_test

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/dargueta/sectorfs"
	"github.com/dargueta/sectorfs/disk"
	"github.com/dargueta/sectorfs/fs"
	sfstest "github.com/dargueta/sectorfs/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// markedSectors returns the number of in-use sectors recorded in the
// persisted bitmap.
func markedSectors(t *testing.T, device disk.Device) int {
	t.Helper()
	freeMap := loadFreeMap(t, device)
	return freeMap.NumBits() - freeMap.NumClear()
}

func TestFileSystem__FormatBaseline(t *testing.T) {
	_, device := sfstest.NewFormattedFS(t, 1024)

	// Two header sectors, one sector of bitmap data (1024 bits = 128 bytes),
	// and eight sectors of root directory table.
	assert.Equal(t, 11, markedSectors(t, device))

	freeMap := loadFreeMap(t, device)
	assert.True(t, freeMap.Test(sectorfs.FreeMapSector))
	assert.True(t, freeMap.Test(sectorfs.RootDirectorySector))
}

// On a device whose sector count is not a multiple of 8, the bitmap's final
// partial byte must still make it to disk. With a truncated bitmap file the
// last few sectors would reload as free and a remount would hand them out
// again.
func TestFileSystem__BitmapTailBitsPersist(t *testing.T) {
	fileSystem, device := sfstest.NewFormattedFS(t, 20)

	// Metadata takes 11 sectors; this file's header and data take the other
	// nine, pushing allocation into the tail of the bitmap's last byte.
	require.NoError(t, fileSystem.Create("/fill", 8*sectorfs.SectorSize))

	freeMap := loadFreeMap(t, device)
	assert.Equal(t, 0, freeMap.NumClear())
	for sector := 16; sector < 20; sector++ {
		assert.Truef(t, freeMap.Test(sector),
			"sector %d was allocated but its bit was lost on flush", sector)
	}

	// A second mount must see the same allocation state and be able to give
	// the sectors back.
	remounted, err := fs.New(device, false)
	require.NoError(t, err)
	require.NoError(t, remounted.Remove("/fill", false))
	assert.Equal(t, 11, markedSectors(t, device))
}

func TestFileSystem__FormatThenRemountSeesEmptyRoot(t *testing.T) {
	_, device := sfstest.NewFormattedFS(t, 1024)

	remounted, err := fs.New(device, false)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, remounted.List(&out, "", false))
	assert.Equal(t, "The directory is empty\n", out.String())
}

func TestFileSystem__CreateOpenReadWrite(t *testing.T) {
	fileSystem, _ := sfstest.NewFormattedFS(t, 1024)

	size := 1000
	require.NoError(t, fileSystem.Create("/notes", size))

	id, err := fileSystem.Open("/notes")
	require.NoError(t, err)

	payload := patternBytes(size)
	written, err := fileSystem.Write(id, payload)
	require.NoError(t, err)
	assert.Equal(t, size, written)

	_, err = fileSystem.Seek(id, 0, io.SeekStart)
	require.NoError(t, err)

	readBack := make([]byte, size)
	numRead, err := fileSystem.Read(id, readBack)
	require.NoError(t, err)
	assert.Equal(t, size, numRead)
	assert.Equal(t, payload, readBack)

	require.NoError(t, fileSystem.Close(id))
	_, err = fileSystem.Read(id, readBack)
	assert.ErrorIs(t, err, sectorfs.ErrInvalidFileDescriptor)
}

func TestFileSystem__NewFileIsZeroFilled(t *testing.T) {
	fileSystem, _ := sfstest.NewFormattedFS(t, 1024)

	require.NoError(t, fileSystem.Create("/blank", 500))
	id, err := fileSystem.Open("/blank")
	require.NoError(t, err)
	defer fileSystem.Close(id)

	readBack := make([]byte, 500)
	numRead, err := fileSystem.Read(id, readBack)
	require.NoError(t, err)
	assert.Equal(t, 500, numRead)
	assert.Equal(t, make([]byte, 500), readBack)
}

func TestFileSystem__MultipleOpenHandles(t *testing.T) {
	fileSystem, _ := sfstest.NewFormattedFS(t, 1024)

	require.NoError(t, fileSystem.Create("/a", 100))
	require.NoError(t, fileSystem.Create("/b", 100))

	idA, err := fileSystem.Open("/a")
	require.NoError(t, err)
	idB, err := fileSystem.Open("/b")
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)

	// Each handle keeps its own cursor.
	_, err = fileSystem.Write(idA, []byte("aaaa"))
	require.NoError(t, err)
	_, err = fileSystem.Write(idB, []byte("bb"))
	require.NoError(t, err)

	require.NoError(t, fileSystem.Close(idA))
	_, err = fileSystem.Write(idB, []byte("bb"))
	require.NoError(t, err, "closing one handle must not invalidate another")
	require.NoError(t, fileSystem.Close(idB))
}

func TestFileSystem__CreateDuplicateFails(t *testing.T) {
	fileSystem, device := sfstest.NewFormattedFS(t, 1024)

	require.NoError(t, fileSystem.Create("/dup", 100))
	before := markedSectors(t, device)

	assert.ErrorIs(t, fileSystem.Create("/dup", 100), sectorfs.ErrExists)
	assert.Equal(t, before, markedSectors(t, device), "failed create must not leak sectors")
}

func TestFileSystem__CreateWhenDiskFull(t *testing.T) {
	fileSystem, device := sfstest.NewFormattedFS(t, 128)
	before := markedSectors(t, device)

	// 128 sectors can't hold this file's data.
	err := fileSystem.Create("/big", 200*sectorfs.SectorSize)
	assert.ErrorIs(t, err, sectorfs.ErrNoSpaceOnDevice)
	assert.Equal(t, before, markedSectors(t, device),
		"failed allocation must leave the persisted bitmap untouched")

	_, err = fileSystem.Open("/big")
	assert.ErrorIs(t, err, sectorfs.ErrNotFound)
}

func TestFileSystem__DirectoryCapacityCeiling(t *testing.T) {
	fileSystem, _ := sfstest.NewFormattedFS(t, 1024)

	for i := 0; i < sectorfs.NumDirEntries; i++ {
		require.NoErrorf(t, fileSystem.Create(fmt.Sprintf("/f%d", i), 0),
			"create %d of %d should fit", i+1, sectorfs.NumDirEntries)
	}
	err := fileSystem.Create("/straw", 0)
	assert.ErrorIs(t, err, sectorfs.ErrDirectoryFull)
}

func TestFileSystem__NestedDirectories(t *testing.T) {
	fileSystem, _ := sfstest.NewFormattedFS(t, 1024)

	require.NoError(t, fileSystem.CreateDir("/a"))
	require.NoError(t, fileSystem.CreateDir("/a/b"))
	require.NoError(t, fileSystem.Create("/a/b/leaf", 256))

	id, err := fileSystem.Open("/a/b/leaf")
	require.NoError(t, err)
	require.NoError(t, fileSystem.Close(id))

	// The file lives in /a/b, not anywhere else.
	_, err = fileSystem.Open("/leaf")
	assert.ErrorIs(t, err, sectorfs.ErrNotFound)
	_, err = fileSystem.Open("/a/leaf")
	assert.ErrorIs(t, err, sectorfs.ErrNotFound)

	var out bytes.Buffer
	require.NoError(t, fileSystem.List(&out, "/a/b", false))
	assert.Equal(t, "leaf\n", out.String())
}

func TestFileSystem__TraversalThroughFileFails(t *testing.T) {
	fileSystem, _ := sfstest.NewFormattedFS(t, 1024)

	require.NoError(t, fileSystem.Create("/plain", 100))

	assert.ErrorIs(t, fileSystem.Create("/plain/sub/x", 10), sectorfs.ErrNotADirectory)
	assert.ErrorIs(t, fileSystem.List(&bytes.Buffer{}, "/plain", false), sectorfs.ErrNotADirectory)
}

func TestFileSystem__RemoveFileRestoresBitmap(t *testing.T) {
	fileSystem, device := sfstest.NewFormattedFS(t, 1024)
	baseline := markedSectors(t, device)

	require.NoError(t, fileSystem.Create("/victim", 40*sectorfs.SectorSize))
	assert.Greater(t, markedSectors(t, device), baseline)

	require.NoError(t, fileSystem.Remove("/victim", false))
	assert.Equal(t, baseline, markedSectors(t, device))

	_, err := fileSystem.Open("/victim")
	assert.ErrorIs(t, err, sectorfs.ErrNotFound)
}

func TestFileSystem__RemoveMissing(t *testing.T) {
	fileSystem, _ := sfstest.NewFormattedFS(t, 1024)
	assert.ErrorIs(t, fileSystem.Remove("/ghost", false), sectorfs.ErrNotFound)
	assert.ErrorIs(t, fileSystem.Remove("/ghost", true), sectorfs.ErrNotFound)
}

// A non-recursive remove of a directory must fail and leave the image
// byte-for-byte unchanged.
func TestFileSystem__RemoveDirectoryNonRecursiveFails(t *testing.T) {
	numSectors := 1024
	backing := make([]byte, numSectors*sectorfs.SectorSize)
	device, err := disk.NewStreamDevice(bytesextra.NewReadWriteSeeker(backing), numSectors)
	require.NoError(t, err)

	fileSystem, err := fs.New(device, true)
	require.NoError(t, err)
	require.NoError(t, fileSystem.CreateDir("/a"))
	require.NoError(t, fileSystem.CreateDir("/a/b"))

	snapshot := append([]byte{}, backing...)

	assert.ErrorIs(t, fileSystem.Remove("/a/b", false), sectorfs.ErrIsADirectory)
	assert.Equal(t, snapshot, backing, "failed remove must not touch the disk")
}

// Removing a directory tree must return every sector attributable to the
// tree and drop the entry from the root.
func TestFileSystem__RecursiveRemoveCompleteness(t *testing.T) {
	fileSystem, device := sfstest.NewFormattedFS(t, 1024)
	baseline := markedSectors(t, device)

	require.NoError(t, fileSystem.CreateDir("/A"))
	require.NoError(t, fileSystem.CreateDir("/A/B"))
	require.NoError(t, fileSystem.Create("/A/B/F", 1000))
	require.NoError(t, fileSystem.Create("/A/top", 3*sectorfs.SectorSize))
	assert.Greater(t, markedSectors(t, device), baseline)

	require.NoError(t, fileSystem.Remove("/A", true))
	assert.Equal(t, baseline, markedSectors(t, device),
		"recursive removal leaked sectors")

	_, err := fileSystem.Open("/A")
	assert.ErrorIs(t, err, sectorfs.ErrNotFound)

	var out bytes.Buffer
	require.NoError(t, fileSystem.List(&out, "", false))
	assert.Equal(t, "The directory is empty\n", out.String())
}

func TestFileSystem__RecursiveList(t *testing.T) {
	fileSystem, _ := sfstest.NewFormattedFS(t, 1024)

	require.NoError(t, fileSystem.CreateDir("/a"))
	require.NoError(t, fileSystem.Create("/a/f1", 0))
	require.NoError(t, fileSystem.CreateDir("/a/sub"))
	require.NoError(t, fileSystem.Create("/a/sub/f2", 0))
	require.NoError(t, fileSystem.Create("/top", 0))

	var out bytes.Buffer
	require.NoError(t, fileSystem.List(&out, "", true))

	expected := strings.Join([]string{
		"[D] a",
		"    [F] f1",
		"    [D] sub",
		"        [F] f2",
		"[F] top",
	}, "\n") + "\n"
	assert.Equal(t, expected, out.String())
}

func TestFileSystem__PersistsAcrossRemount(t *testing.T) {
	numSectors := 1024
	backing := make([]byte, numSectors*sectorfs.SectorSize)
	device, err := disk.NewStreamDevice(bytesextra.NewReadWriteSeeker(backing), numSectors)
	require.NoError(t, err)

	fileSystem, err := fs.New(device, true)
	require.NoError(t, err)
	require.NoError(t, fileSystem.CreateDir("/docs"))
	require.NoError(t, fileSystem.Create("/docs/hello", 64))

	id, err := fileSystem.Open("/docs/hello")
	require.NoError(t, err)
	_, err = fileSystem.Write(id, []byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, fileSystem.Close(id))

	// Mount a second instance over the same image.
	remounted, err := fs.New(device, false)
	require.NoError(t, err)

	id, err = remounted.Open("/docs/hello")
	require.NoError(t, err)
	buffer := make([]byte, len("persisted"))
	_, err = remounted.Read(id, buffer)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(buffer))
}

func TestFileSystem__Print(t *testing.T) {
	fileSystem, _ := sfstest.NewFormattedFS(t, 256)
	require.NoError(t, fileSystem.Create("/x", 10))

	var out bytes.Buffer
	require.NoError(t, fileSystem.Print(&out))

	dump := out.String()
	assert.Contains(t, dump, "Bit map file header:")
	assert.Contains(t, dump, "Directory file header:")
	assert.Contains(t, dump, "Name: x, Sector:")
}
