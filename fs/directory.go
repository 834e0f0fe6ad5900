package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/dargueta/sectorfs"
	"github.com/dargueta/sectorfs/disk"
	"github.com/noxer/bytewriter"
)

// DirectoryEntry is one slot of a directory table, mapping a name to the
// sector holding the named file's header.
type DirectoryEntry struct {
	InUse  bool
	IsDir  bool
	Sector int
	Name   string
}

// rawDirectoryEntry is the serialized form of a slot. Its encoding/binary
// size must equal [sectorfs.DirectoryEntrySize].
type rawDirectoryEntry struct {
	InUse  uint8
	IsDir  uint8
	Sector int32
	Name   [sectorfs.FileNameMaxLen + 1]byte
}

// truncateName clips a name to the longest form a slot can store. Lookups
// clip the probe the same way, so an over-long name finds its truncated
// entry.
func truncateName(name string) string {
	if len(name) > sectorfs.FileNameMaxLen {
		return name[:sectorfs.FileNameMaxLen]
	}
	return name
}

// Directory is a fixed-capacity table of name-to-sector mappings, stored as
// the data of an ordinary file. The table size is set at construction and
// the directory can never hold more entries than that.
//
// A Directory is built in memory for each operation by fetching it from its
// backing file, mutated in memory, and written back only once the operation
// has fully succeeded. A copy mutated by a failed operation is simply
// dropped.
type Directory struct {
	table []DirectoryEntry
}

// NewDirectory creates an empty in-memory directory with `size` slots. Call
// FetchFrom to fill it from disk; a freshly formatted directory is used
// as-is.
func NewDirectory(size int) *Directory {
	return &Directory{table: make([]DirectoryEntry, size)}
}

// FetchFrom reads the directory's table from its backing file.
func (dir *Directory) FetchFrom(file *OpenFile) error {
	buffer := make([]byte, len(dir.table)*sectorfs.DirectoryEntrySize)
	if _, err := file.ReadAt(buffer, 0); err != nil && err != io.EOF {
		return err
	}

	reader := bytes.NewReader(buffer)
	for i := range dir.table {
		var raw rawDirectoryEntry
		if err := binary.Read(reader, binary.LittleEndian, &raw); err != nil {
			return err
		}
		dir.table[i] = DirectoryEntry{
			InUse:  raw.InUse != 0,
			IsDir:  raw.IsDir != 0,
			Sector: int(raw.Sector),
			Name:   string(bytes.TrimRight(raw.Name[:], "\x00")),
		}
	}
	return nil
}

// WriteBack writes the directory's table to its backing file.
func (dir *Directory) WriteBack(file *OpenFile) error {
	buffer := make([]byte, len(dir.table)*sectorfs.DirectoryEntrySize)
	writer := bytewriter.New(buffer)
	for _, entry := range dir.table {
		raw := rawDirectoryEntry{
			Sector: int32(entry.Sector),
		}
		if entry.InUse {
			raw.InUse = 1
		}
		if entry.IsDir {
			raw.IsDir = 1
		}
		copy(raw.Name[:], truncateName(entry.Name))
		if err := binary.Write(writer, binary.LittleEndian, &raw); err != nil {
			return err
		}
	}
	_, err := file.WriteAt(buffer, 0)
	return err
}

// FindIndex returns the table index of the entry for `name`, or -1 if the
// name is not present. Matching is exact and case-sensitive, after
// truncation.
func (dir *Directory) FindIndex(name string) int {
	name = truncateName(name)
	for i, entry := range dir.table {
		if entry.InUse && entry.Name == name {
			return i
		}
	}
	return -1
}

// Find returns the header sector of the entry for `name`, or -1 if the name
// is not present.
func (dir *Directory) Find(name string) int {
	if i := dir.FindIndex(name); i != -1 {
		return dir.table[i].Sector
	}
	return -1
}

// Entry returns a copy of the entry for `name`, if present.
func (dir *Directory) Entry(name string) (DirectoryEntry, bool) {
	if i := dir.FindIndex(name); i != -1 {
		return dir.table[i], true
	}
	return DirectoryEntry{}, false
}

// Add records a new entry in the first free slot. It fails with
// [sectorfs.ErrExists] if the name is already present and with
// [sectorfs.ErrDirectoryFull] if every slot is taken; the table is never
// resized.
func (dir *Directory) Add(name string, sector int, isDir bool) error {
	if dir.FindIndex(name) != -1 {
		return sectorfs.ErrExists.WithMessage(truncateName(name))
	}

	for i := range dir.table {
		if !dir.table[i].InUse {
			dir.table[i] = DirectoryEntry{
				InUse:  true,
				IsDir:  isDir,
				Sector: sector,
				Name:   truncateName(name),
			}
			return nil
		}
	}
	return sectorfs.ErrDirectoryFull.WithMessage(
		fmt.Sprintf("no slot left for %q among %d entries", name, len(dir.table)))
}

// Remove marks the entry for `name` free. The slot's bytes are not erased;
// the space is simply reusable by a later Add.
func (dir *Directory) Remove(name string) error {
	i := dir.FindIndex(name)
	if i == -1 {
		return sectorfs.ErrNotFound.WithMessage(truncateName(name))
	}
	dir.table[i].InUse = false
	return nil
}

// RecursiveRemove deep-deletes everything below this directory. The receiver
// must already be the directory whose children are being purged; the caller
// is responsible for the directory's own header and entry.
//
// For each child directory it deallocates the child's header, clears its
// bitmap bit, recurses into it, writes the emptied child table back, and
// drops the child's entry from this table. Plain files just lose their
// header's sectors and their bit. The bitmap is flushed to its backing file
// after every child so that an interrupted deep deletion loses at most one
// child's worth of bookkeeping, at the cost of one flush per entry.
func (dir *Directory) RecursiveRemove(
	device disk.Device, freeMap *Bitmap, freeMapFile *OpenFile,
) error {
	for index := range dir.table {
		if !dir.table[index].InUse {
			continue
		}
		entry := dir.table[index]

		header := new(FileHeader)
		if err := header.FetchFrom(device, entry.Sector); err != nil {
			return err
		}

		if entry.IsDir {
			childFile, err := NewOpenFile(device, entry.Sector)
			if err != nil {
				return err
			}
			child := NewDirectory(len(dir.table))
			if err := child.FetchFrom(childFile); err != nil {
				return err
			}

			if err := header.Deallocate(device, freeMap); err != nil {
				return err
			}
			clearAllocated(freeMap, entry.Sector)

			if err := child.RecursiveRemove(device, freeMap, freeMapFile); err != nil {
				return err
			}
			if err := child.WriteBack(childFile); err != nil {
				return err
			}
			if err := dir.Remove(entry.Name); err != nil {
				return err
			}
		} else {
			if err := header.Deallocate(device, freeMap); err != nil {
				return err
			}
			clearAllocated(freeMap, entry.Sector)
		}

		if err := freeMap.WriteBack(freeMapFile); err != nil {
			return err
		}
	}
	return nil
}

// List writes the names of all in-use entries to `w`, one per line.
func (dir *Directory) List(w io.Writer) {
	empty := true
	for _, entry := range dir.table {
		if entry.InUse {
			empty = false
			fmt.Fprintln(w, entry.Name)
		}
	}
	if empty {
		fmt.Fprintln(w, "The directory is empty")
	}
}

// RecursiveList writes an indented tree listing to `w`, descending into
// every child directory. Entries are prefixed [D] or [F] and indented four
// spaces per level.
func (dir *Directory) RecursiveList(w io.Writer, device disk.Device, depth int) error {
	indent := strings.Repeat("    ", depth)
	for _, entry := range dir.table {
		if !entry.InUse {
			continue
		}
		if entry.IsDir {
			fmt.Fprintf(w, "%s[D] %s\n", indent, entry.Name)
			childFile, err := NewOpenFile(device, entry.Sector)
			if err != nil {
				return err
			}
			child := NewDirectory(len(dir.table))
			if err := child.FetchFrom(childFile); err != nil {
				return err
			}
			if err := child.RecursiveList(w, device, depth+1); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(w, "%s[F] %s\n", indent, entry.Name)
		}
	}
	return nil
}

// Print dumps every in-use entry and its file header to `w`, for debugging.
func (dir *Directory) Print(w io.Writer, device disk.Device) error {
	fmt.Fprint(w, "Directory contents:\n")
	for _, entry := range dir.table {
		if !entry.InUse {
			continue
		}
		fmt.Fprintf(w, "Name: %s, Sector: %d\n", entry.Name, entry.Sector)
		header := new(FileHeader)
		if err := header.FetchFrom(device, entry.Sector); err != nil {
			return err
		}
		if err := header.Print(w, device); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)
	return nil
}
