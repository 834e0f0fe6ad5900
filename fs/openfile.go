package fs

import (
	"fmt"
	"io"

	"github.com/dargueta/sectorfs"
	"github.com/dargueta/sectorfs/disk"
)

// OpenFile is a byte-addressed view over one file, found by the sector of
// its header. It translates byte ranges to physical sectors through the
// header and handles the read-modify-write needed when a range starts or
// ends inside a sector.
//
// The header is fetched once when the file is opened. Since file sizes are
// fixed at creation, the cached copy can't go stale through this API.
type OpenFile struct {
	device       disk.Device
	header       *FileHeader
	headerSector int
	seekPosition int
}

// NewOpenFile opens the file whose header lives at `sector`.
func NewOpenFile(device disk.Device, sector int) (*OpenFile, error) {
	header := new(FileHeader)
	if err := header.FetchFrom(device, sector); err != nil {
		return nil, err
	}
	return &OpenFile{
		device:       device,
		header:       header,
		headerSector: sector,
	}, nil
}

// Length returns the size of the file in bytes.
func (file *OpenFile) Length() int {
	return file.header.FileLength()
}

// Sector returns the sector holding the file's header.
func (file *OpenFile) Sector() int {
	return file.headerSector
}

// Header returns the file's header.
func (file *OpenFile) Header() *FileHeader {
	return file.header
}

// Seek repositions the implicit read/write cursor used by Read and Write.
func (file *OpenFile) Seek(offset int, whence int) (int, error) {
	var base int
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = file.seekPosition
	case io.SeekEnd:
		base = file.Length()
	default:
		return 0, sectorfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("bad whence value %d", whence))
	}
	position := base + offset
	if position < 0 {
		return 0, sectorfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("seek to %d is before the start of the file", position))
	}
	file.seekPosition = position
	return position, nil
}

// Read reads from the cursor position, advancing it. It returns io.EOF when
// the cursor is at or past the end of the file.
func (file *OpenFile) Read(buffer []byte) (int, error) {
	numRead, err := file.ReadAt(buffer, file.seekPosition)
	file.seekPosition += numRead
	return numRead, err
}

// Write writes at the cursor position, advancing it. A file's size is fixed
// at creation, so writes never extend it; anything past the end is dropped.
func (file *OpenFile) Write(buffer []byte) (int, error) {
	numWritten, err := file.WriteAt(buffer, file.seekPosition)
	file.seekPosition += numWritten
	return numWritten, err
}

// ReadAt reads up to len(buffer) bytes starting at `position`, without
// touching the cursor. Reads that run past the end of the file are clamped
// and return io.EOF along with the bytes read.
func (file *OpenFile) ReadAt(buffer []byte, position int) (int, error) {
	if position < 0 {
		return 0, sectorfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("read at negative offset %d", position))
	}

	length := file.Length()
	if position >= length {
		return 0, io.EOF
	}

	numBytes := len(buffer)
	clamped := false
	if position+numBytes > length {
		numBytes = length - position
		clamped = true
	}
	if numBytes == 0 {
		return 0, nil
	}

	firstSector := position / sectorfs.SectorSize
	lastSector := (position + numBytes - 1) / sectorfs.SectorSize
	sectorBuf := make([]byte, sectorfs.SectorSize)

	copied := 0
	for i := firstSector; i <= lastSector; i++ {
		physical, err := file.header.ByteToSector(file.device, i*sectorfs.SectorSize)
		if err != nil {
			return copied, err
		}
		if err := file.device.ReadSector(physical, sectorBuf); err != nil {
			return copied, err
		}

		start := 0
		if i == firstSector {
			start = position % sectorfs.SectorSize
		}
		end := sectorfs.SectorSize
		if remaining := numBytes - copied; end-start > remaining {
			end = start + remaining
		}
		copy(buffer[copied:], sectorBuf[start:end])
		copied += end - start
	}

	if clamped {
		return copied, io.EOF
	}
	return copied, nil
}

// WriteAt writes len(buffer) bytes starting at `position`, without touching
// the cursor. Writes that run past the fixed end of the file are clamped;
// the clamped byte count is returned with a nil error. Partial first and
// last sectors are read, patched, and written back.
func (file *OpenFile) WriteAt(buffer []byte, position int) (int, error) {
	if position < 0 {
		return 0, sectorfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("write at negative offset %d", position))
	}

	length := file.Length()
	if position >= length {
		if len(buffer) == 0 {
			return 0, nil
		}
		return 0, sectorfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"write at offset %d past the end of a %d-byte file", position, length))
	}

	numBytes := len(buffer)
	if position+numBytes > length {
		numBytes = length - position
	}
	if numBytes == 0 {
		return 0, nil
	}

	firstSector := position / sectorfs.SectorSize
	lastSector := (position + numBytes - 1) / sectorfs.SectorSize
	sectorBuf := make([]byte, sectorfs.SectorSize)

	written := 0
	for i := firstSector; i <= lastSector; i++ {
		physical, err := file.header.ByteToSector(file.device, i*sectorfs.SectorSize)
		if err != nil {
			return written, err
		}

		start := 0
		if i == firstSector {
			start = position % sectorfs.SectorSize
		}
		end := sectorfs.SectorSize
		if remaining := numBytes - written; end-start > remaining {
			end = start + remaining
		}

		if start != 0 || end != sectorfs.SectorSize {
			// Partial sector: preserve the bytes outside the written range.
			if err := file.device.ReadSector(physical, sectorBuf); err != nil {
				return written, err
			}
		}
		copy(sectorBuf[start:end], buffer[written:])
		if err := file.device.WriteSector(physical, sectorBuf); err != nil {
			return written, err
		}
		written += end - start
	}

	return written, nil
}
