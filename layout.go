// Package sectorfs implements a single-disk hierarchical file system over a
// sector-addressed block device. The on-disk format consists of three
// structures: an indexed file header (one per file, exactly one sector), a
// fixed-capacity directory table stored as the data of an ordinary file, and
// a free-sector bitmap, also stored as an ordinary file. The headers of the
// bitmap file and the root directory file live at fixed sectors so both can
// be located without any lookup at mount time.
//
// This package holds the layout constants shared by every component; the
// actual implementation lives in the disk, fs, disks, and cmd subdirectories.
package sectorfs

import "math"

const BitsInByte = 8

// SectorSize is the size of one disk sector in bytes, the atomic unit of all
// I/O in this file system. Nothing on disk spans a partial sector.
const SectorSize = 128

// NumDirect is the number of sector pointers in a file header. The header
// stores two int32 counters followed by the pointer table, and the whole
// record must occupy exactly one sector.
const NumDirect = (SectorSize - 2*4) / 4

// Byte capacities of the indirection levels. A header describing a file of at
// most Bytes1Level points straight at data sectors. Above that, each pointer
// slot refers to a sub-header one level down, so each level multiplies the
// addressable size by NumDirect.
const (
	Bytes1Level = NumDirect * SectorSize
	Bytes2Level = NumDirect * Bytes1Level
	Bytes3Level = NumDirect * Bytes2Level
	Bytes4Level = NumDirect * Bytes3Level
)

// MaxFileSize is the largest file a single header can describe. Four levels
// of indirection could address NumDirect * Bytes4Level bytes, but that is
// more than the header's int32 size field can record, so the field caps the
// limit first.
const MaxFileSize = math.MaxInt32

// FileNameMaxLen is the longest file name a directory entry can store. Names
// are silently truncated to this length, both when stored and when looked up.
const FileNameMaxLen = 9

// DirectoryEntrySize is the size of one serialized directory entry: in-use
// flag, directory flag, header sector, and the fixed-length name field.
const DirectoryEntrySize = 1 + 1 + 4 + (FileNameMaxLen + 1)

// NumDirEntries is the number of slots in every directory table. Directories
// are never resized; once all slots are taken, the directory is full.
const NumDirEntries = 64

// DirectoryFileSize is the size of the file backing a directory table.
const DirectoryFileSize = NumDirEntries * DirectoryEntrySize

// Sectors holding the file headers for the free-sector bitmap and the root
// directory. These are placed at well-known locations so that they can be
// found at mount time without consulting any directory.
const (
	FreeMapSector       = 0
	RootDirectorySector = 1
)

// DefaultNumSectors is the sector count of the default disk geometry, 32
// tracks of 32 sectors.
const DefaultNumSectors = 1024

// FreeMapFileSize gives the size of the bitmap file for a disk with the given
// number of sectors, one bit per sector. The size is rounded up so that a
// sector count that is not a multiple of 8 still gets a byte for its tail
// bits; without the final partial byte those sectors' allocation state would
// be lost on every flush.
func FreeMapFileSize(numSectors int) int {
	return (numSectors + BitsInByte - 1) / BitsInByte
}
