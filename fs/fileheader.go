package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dargueta/sectorfs"
	"github.com/dargueta/sectorfs/disk"
	"github.com/noxer/bytewriter"
)

// FileHeader is the on-disk record describing one file: its length and the
// sectors holding its data. The serialized form is exactly one sector.
//
// Small files (up to [sectorfs.Bytes1Level] bytes) use the pointer table
// directly. Larger files switch to indirection: each pointer slot then
// refers to a sector holding a sub-header, itself a full FileHeader covering
// one slice of the file, nested up to four levels deep. The indirection
// level is implied by NumBytes, never stored.
//
// Headers are fetched from disk on demand by sector number and dropped when
// done; the authoritative record of sector ownership is the free-space
// bitmap, not any in-memory structure.
type FileHeader struct {
	NumBytes    int32
	NumSectors  int32
	DataSectors [sectorfs.NumDirect]int32
}

func divRoundUp(n, d int) int {
	return (n + d - 1) / d
}

// subHeaderCapacity returns the byte capacity of one sub-header for a file
// of `numBytes`, or 0 if the file is small enough to be stored directly.
func subHeaderCapacity(numBytes int) int {
	switch {
	case numBytes > sectorfs.Bytes4Level:
		return sectorfs.Bytes4Level
	case numBytes > sectorfs.Bytes3Level:
		return sectorfs.Bytes3Level
	case numBytes > sectorfs.Bytes2Level:
		return sectorfs.Bytes2Level
	case numBytes > sectorfs.Bytes1Level:
		return sectorfs.Bytes1Level
	default:
		return 0
	}
}

// numEntries returns how many DataSectors slots are occupied.
func (hdr *FileHeader) numEntries() int {
	capacity := subHeaderCapacity(int(hdr.NumBytes))
	if capacity == 0 {
		return int(hdr.NumSectors)
	}
	return divRoundUp(int(hdr.NumBytes), capacity)
}

// Allocate initializes a fresh header for a file of `fileSize` bytes,
// claiming sectors from `freeMap` for the file's data and for any
// sub-headers. Data sectors are zero-filled on the device before Allocate
// returns, so a new file never exposes stale disk content.
//
// On failure nothing is written back to the bitmap file; the caller discards
// the in-memory bitmap along with this header. Allocate may already have
// zero-filled some sectors on the device, but those sectors remain free in
// the persisted bitmap.
func (hdr *FileHeader) Allocate(device disk.Device, freeMap *Bitmap, fileSize int) error {
	if fileSize < 0 {
		return sectorfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("file size must be non-negative, got %d", fileSize))
	}
	if fileSize > sectorfs.MaxFileSize {
		return sectorfs.ErrFileTooLarge.WithMessage(
			fmt.Sprintf("%d exceeds the maximum of %d bytes", fileSize, sectorfs.MaxFileSize))
	}

	hdr.NumBytes = int32(fileSize)
	hdr.NumSectors = int32(divRoundUp(fileSize, sectorfs.SectorSize))

	if freeMap.NumClear() < int(hdr.NumSectors) {
		return sectorfs.ErrNoSpaceOnDevice.WithMessage(
			fmt.Sprintf(
				"%d sectors needed, %d free", hdr.NumSectors, freeMap.NumClear()))
	}

	// The indirection levels are mutually exclusive: the smallest threshold
	// the size exceeds picks the level.
	capacity := subHeaderCapacity(fileSize)
	if capacity == 0 {
		return hdr.allocateDirect(device, freeMap)
	}
	return hdr.allocateIndirect(device, freeMap, fileSize, capacity)
}

func (hdr *FileHeader) allocateDirect(device disk.Device, freeMap *Bitmap) error {
	zeroes := make([]byte, sectorfs.SectorSize)
	for i := 0; i < int(hdr.NumSectors); i++ {
		sector, ok := freeMap.FindAndSet()
		if !ok {
			// NumClear was checked up front, so running dry here means the
			// bitmap changed underneath us.
			return sectorfs.ErrNoSpaceOnDevice.WithMessage("bitmap exhausted mid-allocation")
		}
		hdr.DataSectors[i] = int32(sector)
		if err := device.WriteSector(sector, zeroes); err != nil {
			return err
		}
	}
	return nil
}

func (hdr *FileHeader) allocateIndirect(
	device disk.Device, freeMap *Bitmap, fileSize, capacity int,
) error {
	for i, remaining := 0, fileSize; remaining > 0; i++ {
		sector, ok := freeMap.FindAndSet()
		if !ok {
			return sectorfs.ErrNoSpaceOnDevice.WithMessage("bitmap exhausted mid-allocation")
		}
		hdr.DataSectors[i] = int32(sector)

		subHeader := new(FileHeader)
		subSize := remaining
		if subSize > capacity {
			subSize = capacity
		}
		if err := subHeader.Allocate(device, freeMap, subSize); err != nil {
			return err
		}
		if err := subHeader.WriteBack(device, sector); err != nil {
			return err
		}
		remaining -= capacity
	}
	return nil
}

// Deallocate returns every sector this header owns to `freeMap`: for an
// indirect header, each sub-header's tree followed by the sub-header's own
// sector; for a direct header, each data sector.
//
// Clearing a bit that is not set means the disk structures are already
// corrupt (a double free), which is not locally recoverable; Deallocate
// panics rather than returning an error.
func (hdr *FileHeader) Deallocate(device disk.Device, freeMap *Bitmap) error {
	capacity := subHeaderCapacity(int(hdr.NumBytes))
	if capacity == 0 {
		for i := 0; i < int(hdr.NumSectors); i++ {
			clearAllocated(freeMap, int(hdr.DataSectors[i]))
		}
		return nil
	}

	for i := 0; i < hdr.numEntries(); i++ {
		subHeader := new(FileHeader)
		if err := subHeader.FetchFrom(device, int(hdr.DataSectors[i])); err != nil {
			return err
		}
		if err := subHeader.Deallocate(device, freeMap); err != nil {
			return err
		}
		clearAllocated(freeMap, int(hdr.DataSectors[i]))
	}
	return nil
}

// clearAllocated clears a bit that must currently be set.
func clearAllocated(freeMap *Bitmap, sector int) {
	if !freeMap.Test(sector) {
		panic(fmt.Sprintf(
			"file system corrupted: freeing sector %d, which is not marked in use",
			sector))
	}
	freeMap.Clear(sector)
}

// ByteToSector translates a byte offset within the file into the number of
// the physical sector holding that byte.
func (hdr *FileHeader) ByteToSector(device disk.Device, offset int) (int, error) {
	if offset < 0 || offset >= int(hdr.NumBytes) {
		return -1, sectorfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("offset %d not in range [0, %d)", offset, hdr.NumBytes))
	}

	capacity := subHeaderCapacity(int(hdr.NumBytes))
	if capacity == 0 {
		return int(hdr.DataSectors[offset/sectorfs.SectorSize]), nil
	}

	entry := offset / capacity
	subHeader := new(FileHeader)
	if err := subHeader.FetchFrom(device, int(hdr.DataSectors[entry])); err != nil {
		return -1, err
	}
	return subHeader.ByteToSector(device, offset-entry*capacity)
}

// FileLength returns the number of bytes in the file.
func (hdr *FileHeader) FileLength() int {
	return int(hdr.NumBytes)
}

// FetchFrom reads the header's binary image from the given sector. The
// in-memory structure is the on-disk representation; there is no separate
// serialization step.
func (hdr *FileHeader) FetchFrom(device disk.Device, sector int) error {
	buffer := make([]byte, sectorfs.SectorSize)
	if err := device.ReadSector(sector, buffer); err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(buffer), binary.LittleEndian, hdr)
}

// WriteBack writes the header's binary image to the given sector.
func (hdr *FileHeader) WriteBack(device disk.Device, sector int) error {
	buffer := make([]byte, sectorfs.SectorSize)
	writer := bytewriter.New(buffer)
	if err := binary.Write(writer, binary.LittleEndian, hdr); err != nil {
		return err
	}
	return device.WriteSector(sector, buffer)
}

// Print dumps the header and the contents of every data sector it reaches,
// recursing through sub-headers. Non-printable bytes are escaped as hex.
func (hdr *FileHeader) Print(w io.Writer, device disk.Device) error {
	fmt.Fprintf(w, "FileHeader contents.  File size: %d.  File blocks:\n", hdr.NumBytes)
	for i := 0; i < hdr.numEntries(); i++ {
		fmt.Fprintf(w, "%d ", hdr.DataSectors[i])
	}
	fmt.Fprint(w, "\nFile contents:\n")
	return hdr.printContents(w, device)
}

func (hdr *FileHeader) printContents(w io.Writer, device disk.Device) error {
	if subHeaderCapacity(int(hdr.NumBytes)) > 0 {
		for i := 0; i < hdr.numEntries(); i++ {
			subHeader := new(FileHeader)
			if err := subHeader.FetchFrom(device, int(hdr.DataSectors[i])); err != nil {
				return err
			}
			if err := subHeader.printContents(w, device); err != nil {
				return err
			}
		}
		return nil
	}

	data := make([]byte, sectorfs.SectorSize)
	printed := 0
	for i := 0; i < int(hdr.NumSectors); i++ {
		if err := device.ReadSector(int(hdr.DataSectors[i]), data); err != nil {
			return err
		}
		for j := 0; j < sectorfs.SectorSize && printed < int(hdr.NumBytes); j++ {
			if data[j] >= 0x20 && data[j] <= 0x7e {
				fmt.Fprintf(w, "%c", data[j])
			} else {
				fmt.Fprintf(w, "\\%x", data[j])
			}
			printed++
		}
		fmt.Fprintln(w)
	}
	return nil
}
