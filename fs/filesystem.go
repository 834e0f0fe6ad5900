// Package fs implements the file system core: the free-space bitmap, the
// indexed file header, the directory table, and the orchestrator that
// composes them into create/open/remove/list operations over hierarchical
// paths.
//
// The layer performs no locking of its own. None of the mutating operations
// tolerate concurrent callers; if more than one goroutine needs the file
// system, wrap the public operations in a single external mutex. Within one
// operation the discipline is allocate in memory, mutate in memory, and
// flush to disk only after everything has succeeded, so a failed operation
// leaves the disk exactly as it was.
package fs

import (
	"fmt"
	"io"
	"strings"

	"github.com/dargueta/sectorfs"
	"github.com/dargueta/sectorfs/disk"
	"github.com/sirupsen/logrus"
)

// FileID identifies one open file in a FileSystem's open-file table.
type FileID int

// FileSystem owns the two permanently open files every operation needs: the
// free-sector bitmap (header at sector 0) and the root directory (header at
// sector 1).
type FileSystem struct {
	device      disk.Device
	freeMapFile *OpenFile
	rootDirFile *OpenFile
	openFiles   map[FileID]*OpenFile
	nextFileID  FileID
	log         logrus.FieldLogger
}

// New mounts the file system on `device`. With `format` set, the disk is
// wiped first: an empty root directory and an all-clear bitmap are built,
// sectors 0 and 1 are claimed for their headers, data sectors for both files
// are allocated, the headers are written, and only then are the two files
// opened and the fresh bitmap and empty root flushed through them. Without
// `format`, the two well-known files are simply opened.
func New(device disk.Device, format bool) (*FileSystem, error) {
	fileSystem := &FileSystem{
		device:     device,
		openFiles:  make(map[FileID]*OpenFile),
		nextFileID: 1,
		log:        logrus.StandardLogger().WithField("subsystem", "sectorfs"),
	}

	if format {
		if err := fileSystem.format(); err != nil {
			return nil, err
		}
		return fileSystem, nil
	}

	var err error
	fileSystem.freeMapFile, err = NewOpenFile(device, sectorfs.FreeMapSector)
	if err != nil {
		return nil, err
	}
	fileSystem.rootDirFile, err = NewOpenFile(device, sectorfs.RootDirectorySector)
	if err != nil {
		return nil, err
	}
	return fileSystem, nil
}

// SetLogger replaces the logger used for operation tracing.
func (f *FileSystem) SetLogger(log logrus.FieldLogger) {
	f.log = log
}

func (f *FileSystem) format() error {
	f.log.Debug("formatting the file system")

	freeMap := NewBitmap(f.device.NumSectors())
	directory := NewDirectory(sectorfs.NumDirEntries)
	mapHeader := new(FileHeader)
	dirHeader := new(FileHeader)

	// Claim the well-known header sectors first so the data allocations below
	// can't grab them.
	freeMap.Mark(sectorfs.FreeMapSector)
	freeMap.Mark(sectorfs.RootDirectorySector)

	err := mapHeader.Allocate(
		f.device, freeMap, sectorfs.FreeMapFileSize(f.device.NumSectors()))
	if err != nil {
		return err
	}
	if err := dirHeader.Allocate(f.device, freeMap, sectorfs.DirectoryFileSize); err != nil {
		return err
	}

	// The headers must reach the disk before the files can be opened, since
	// opening reads the header back and the disk still holds garbage.
	if err := mapHeader.WriteBack(f.device, sectorfs.FreeMapSector); err != nil {
		return err
	}
	if err := dirHeader.WriteBack(f.device, sectorfs.RootDirectorySector); err != nil {
		return err
	}

	f.freeMapFile, err = NewOpenFile(f.device, sectorfs.FreeMapSector)
	if err != nil {
		return err
	}
	f.rootDirFile, err = NewOpenFile(f.device, sectorfs.RootDirectorySector)
	if err != nil {
		return err
	}

	// Both metadata files are open now, so the initial versions of their
	// contents can be written through them: the bitmap with the sectors
	// claimed above, and the still-empty root directory.
	if err := freeMap.WriteBack(f.freeMapFile); err != nil {
		return err
	}
	return directory.WriteBack(f.rootDirFile)
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	tokens := parts[:0]
	for _, part := range parts {
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// resolveParent walks `path` from the root down to the parent of its final
// segment and returns that parent directory, its backing file, and the final
// segment. A segment that doesn't resolve ends the walk: the unresolved
// segment becomes the leaf and the directory in hand its parent, which is
// what Create needs to build the new entry. Following a segment that names a
// plain file is an error.
//
// For the root path itself the returned leaf is empty and the parent is the
// root directory.
func (f *FileSystem) resolveParent(path string) (*OpenFile, *Directory, string, error) {
	directoryFile := f.rootDirFile
	directory := NewDirectory(sectorfs.NumDirEntries)
	if err := directory.FetchFrom(directoryFile); err != nil {
		return nil, nil, "", err
	}

	tokens := splitPath(path)
	if len(tokens) == 0 {
		return directoryFile, directory, "", nil
	}

	for _, token := range tokens[:len(tokens)-1] {
		entry, found := directory.Entry(token)
		if !found {
			// First unresolved segment; treat it as the leaf to operate on.
			return directoryFile, directory, token, nil
		}
		if !entry.IsDir {
			return nil, nil, "", sectorfs.ErrNotADirectory.WithMessage(token)
		}

		nextFile, err := NewOpenFile(f.device, entry.Sector)
		if err != nil {
			return nil, nil, "", err
		}
		if err := directory.FetchFrom(nextFile); err != nil {
			return nil, nil, "", err
		}
		directoryFile = nextFile
	}
	return directoryFile, directory, tokens[len(tokens)-1], nil
}

// resolveDirectory walks `path` down to the directory it names, or the root
// for an empty path.
func (f *FileSystem) resolveDirectory(path string) (*OpenFile, *Directory, error) {
	directoryFile := f.rootDirFile
	directory := NewDirectory(sectorfs.NumDirEntries)
	if err := directory.FetchFrom(directoryFile); err != nil {
		return nil, nil, err
	}

	for _, token := range splitPath(path) {
		entry, found := directory.Entry(token)
		if !found {
			return nil, nil, sectorfs.ErrNotFound.WithMessage(token)
		}
		if !entry.IsDir {
			return nil, nil, sectorfs.ErrNotADirectory.WithMessage(token)
		}

		nextFile, err := NewOpenFile(f.device, entry.Sector)
		if err != nil {
			return nil, nil, err
		}
		if err := directory.FetchFrom(nextFile); err != nil {
			return nil, nil, err
		}
		directoryFile = nextFile
	}
	return directoryFile, directory, nil
}

// create covers both Create and CreateDir; the two differ only in the size
// of the new file and the directory flag on its entry.
func (f *FileSystem) create(path string, initialSize int, isDir bool) error {
	parentFile, parent, leaf, err := f.resolveParent(path)
	if err != nil {
		return err
	}
	if leaf == "" {
		return sectorfs.ErrInvalidArgument.WithMessage("empty path")
	}

	if parent.Find(leaf) != -1 {
		return sectorfs.ErrExists.WithMessage(truncateName(leaf))
	}

	freeMap, err := BitmapFromFile(f.freeMapFile, f.device.NumSectors())
	if err != nil {
		return err
	}

	// Find a sector to hold the new file's header.
	sector, ok := freeMap.FindAndSet()
	if !ok {
		return sectorfs.ErrNoSpaceOnDevice.WithMessage("no free sector for a file header")
	}
	if err := parent.Add(leaf, sector, isDir); err != nil {
		return err
	}

	header := new(FileHeader)
	if err := header.Allocate(f.device, freeMap, initialSize); err != nil {
		// The parent table and bitmap were only mutated in memory; dropping
		// them here discards the partial allocation.
		return err
	}

	// Everything worked. Flush the header, the parent directory, and the
	// bitmap, in that order.
	if err := header.WriteBack(f.device, sector); err != nil {
		return err
	}
	if err := parent.WriteBack(parentFile); err != nil {
		return err
	}
	return freeMap.WriteBack(f.freeMapFile)
}

// Create makes a new file of exactly `initialSize` bytes, zero-filled. The
// size is fixed for the life of the file.
func (f *FileSystem) Create(path string, initialSize int) error {
	f.log.WithFields(logrus.Fields{
		"path": path,
		"size": initialSize,
	}).Debug("creating file")
	return f.create(path, initialSize, false)
}

// CreateDir makes a new, empty directory. The backing file is sized for one
// directory table; its zero-filled sectors decode as an all-free table.
func (f *FileSystem) CreateDir(path string) error {
	f.log.WithField("path", path).Debug("creating directory")
	return f.create(path, sectorfs.DirectoryFileSize, true)
}

// Open opens the file or directory at `path` and returns an identifier for
// the open-file table. Callers must Close it when done.
func (f *FileSystem) Open(path string) (FileID, error) {
	_, parent, leaf, err := f.resolveParent(path)
	if err != nil {
		return 0, err
	}
	if leaf == "" {
		return 0, sectorfs.ErrInvalidArgument.WithMessage("cannot open the root directory")
	}

	sector := parent.Find(leaf)
	if sector == -1 {
		return 0, sectorfs.ErrNotFound.WithMessage(truncateName(leaf))
	}

	file, err := NewOpenFile(f.device, sector)
	if err != nil {
		return 0, err
	}

	id := f.nextFileID
	f.nextFileID++
	f.openFiles[id] = file

	f.log.WithFields(logrus.Fields{
		"path": path,
		"fd":   id,
	}).Debug("opened file")
	return id, nil
}

func (f *FileSystem) lookupFile(id FileID) (*OpenFile, error) {
	file, ok := f.openFiles[id]
	if !ok {
		return nil, sectorfs.ErrInvalidFileDescriptor.WithMessage(
			fmt.Sprintf("no open file with id %d", id))
	}
	return file, nil
}

// Read reads from the open file's cursor. It returns io.EOF at the end of
// the file.
func (f *FileSystem) Read(id FileID, buffer []byte) (int, error) {
	file, err := f.lookupFile(id)
	if err != nil {
		return 0, err
	}
	return file.Read(buffer)
}

// Write writes at the open file's cursor. Files never grow, so bytes past
// the fixed size are dropped and the short count returned.
func (f *FileSystem) Write(id FileID, buffer []byte) (int, error) {
	file, err := f.lookupFile(id)
	if err != nil {
		return 0, err
	}
	return file.Write(buffer)
}

// Seek repositions the open file's cursor.
func (f *FileSystem) Seek(id FileID, offset int, whence int) (int, error) {
	file, err := f.lookupFile(id)
	if err != nil {
		return 0, err
	}
	return file.Seek(offset, whence)
}

// Close removes the file from the open-file table.
func (f *FileSystem) Close(id FileID) error {
	if _, err := f.lookupFile(id); err != nil {
		return err
	}
	delete(f.openFiles, id)
	return nil
}

// Remove deletes the file or directory at `path`. Directories can only be
// removed with `recursive` set, which deletes the whole subtree below them,
// returning every owned sector to the bitmap. A non-recursive Remove of a
// directory fails without touching the disk.
func (f *FileSystem) Remove(path string, recursive bool) error {
	f.log.WithFields(logrus.Fields{
		"path":      path,
		"recursive": recursive,
	}).Debug("removing")

	parentFile, parent, leaf, err := f.resolveParent(path)
	if err != nil {
		return err
	}
	if leaf == "" {
		return sectorfs.ErrInvalidArgument.WithMessage("cannot remove the root directory")
	}

	entry, found := parent.Entry(leaf)
	if !found {
		return sectorfs.ErrNotFound.WithMessage(truncateName(leaf))
	}
	if entry.IsDir && !recursive {
		return sectorfs.ErrIsADirectory.WithMessage(
			fmt.Sprintf("%s can only be removed recursively", truncateName(leaf)))
	}

	header := new(FileHeader)
	if err := header.FetchFrom(f.device, entry.Sector); err != nil {
		return err
	}
	freeMap, err := BitmapFromFile(f.freeMapFile, f.device.NumSectors())
	if err != nil {
		return err
	}

	if entry.IsDir {
		targetFile, err := NewOpenFile(f.device, entry.Sector)
		if err != nil {
			return err
		}
		target := NewDirectory(sectorfs.NumDirEntries)
		if err := target.FetchFrom(targetFile); err != nil {
			return err
		}

		if err := header.Deallocate(f.device, freeMap); err != nil {
			return err
		}
		clearAllocated(freeMap, entry.Sector)

		if err := target.RecursiveRemove(f.device, freeMap, f.freeMapFile); err != nil {
			return err
		}
		if err := target.WriteBack(targetFile); err != nil {
			return err
		}
	} else {
		if err := header.Deallocate(f.device, freeMap); err != nil {
			return err
		}
		clearAllocated(freeMap, entry.Sector)
	}

	if err := parent.Remove(leaf); err != nil {
		return err
	}
	if err := parent.WriteBack(parentFile); err != nil {
		return err
	}
	return freeMap.WriteBack(f.freeMapFile)
}

// List writes a listing of the directory at `path` (the root for an empty
// path) to `w`: flat names, or an indented [D]/[F] tree with `recursive`.
func (f *FileSystem) List(w io.Writer, path string, recursive bool) error {
	_, directory, err := f.resolveDirectory(path)
	if err != nil {
		return err
	}
	if recursive {
		return directory.RecursiveList(w, f.device, 0)
	}
	directory.List(w)
	return nil
}

// Print dumps the whole file system to `w`: both well-known file headers,
// the bitmap, and the root directory with every file's header and contents.
func (f *FileSystem) Print(w io.Writer) error {
	mapHeader := new(FileHeader)
	if err := mapHeader.FetchFrom(f.device, sectorfs.FreeMapSector); err != nil {
		return err
	}
	fmt.Fprint(w, "Bit map file header:\n")
	if err := mapHeader.Print(w, f.device); err != nil {
		return err
	}

	dirHeader := new(FileHeader)
	if err := dirHeader.FetchFrom(f.device, sectorfs.RootDirectorySector); err != nil {
		return err
	}
	fmt.Fprint(w, "Directory file header:\n")
	if err := dirHeader.Print(w, f.device); err != nil {
		return err
	}

	freeMap, err := BitmapFromFile(f.freeMapFile, f.device.NumSectors())
	if err != nil {
		return err
	}
	freeMap.Print(w)

	directory := NewDirectory(sectorfs.NumDirEntries)
	if err := directory.FetchFrom(f.rootDirFile); err != nil {
		return err
	}
	return directory.Print(w, f.device)
}
