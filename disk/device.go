// Package disk provides sector-addressed access to a disk image. A device is
// an array of fixed-size sectors; reads and writes transfer exactly one
// sector and are synchronous. Multi-sector operations are not atomic as a
// group.
package disk

import (
	"fmt"
	"io"

	"github.com/dargueta/sectorfs"
)

// Device is the interface the file system uses to talk to the underlying
// storage. Both transfer methods move exactly [sectorfs.SectorSize] bytes;
// passing a buffer of any other size is an error.
type Device interface {
	// NumSectors returns the total number of sectors on the device.
	NumSectors() int
	// ReadSector reads sector `sector` into `buffer`.
	ReadSector(sector int, buffer []byte) error
	// WriteSector writes `buffer` to sector `sector`.
	WriteSector(sector int, buffer []byte) error
}

// StreamDevice implements [Device] on top of any io.ReadWriteSeeker, such as
// an opened disk image file or an in-memory byte stream.
type StreamDevice struct {
	numSectors int
	stream     io.ReadWriteSeeker
}

// NewStreamDevice wraps a stream as a sector device with `numSectors`
// sectors. The stream must be at least `numSectors * SectorSize` bytes; the
// device never touches anything past that point.
func NewStreamDevice(stream io.ReadWriteSeeker, numSectors int) (*StreamDevice, error) {
	if numSectors < 2 {
		return nil, sectorfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("a device needs at least 2 sectors, got %d", numSectors))
	}
	return &StreamDevice{numSectors: numSectors, stream: stream}, nil
}

func (device *StreamDevice) NumSectors() int {
	return device.numSectors
}

func (device *StreamDevice) checkIOBounds(sector int, buffer []byte) error {
	if sector < 0 || sector >= device.numSectors {
		return sectorfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid sector %d: not in range [0, %d)", sector, device.numSectors))
	}
	if len(buffer) != sectorfs.SectorSize {
		return sectorfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"buffer must be exactly %d bytes, got %d",
				sectorfs.SectorSize,
				len(buffer)))
	}
	return nil
}

func (device *StreamDevice) seekToSector(sector int) error {
	_, err := device.stream.Seek(int64(sector)*sectorfs.SectorSize, io.SeekStart)
	if err != nil {
		return sectorfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

func (device *StreamDevice) ReadSector(sector int, buffer []byte) error {
	if err := device.checkIOBounds(sector, buffer); err != nil {
		return err
	}
	if err := device.seekToSector(sector); err != nil {
		return err
	}
	if _, err := io.ReadFull(device.stream, buffer); err != nil {
		return sectorfs.ErrIOFailed.WithMessage(
			fmt.Sprintf("short read on sector %d", sector)).Wrap(err)
	}
	return nil
}

func (device *StreamDevice) WriteSector(sector int, buffer []byte) error {
	if err := device.checkIOBounds(sector, buffer); err != nil {
		return err
	}
	if err := device.seekToSector(sector); err != nil {
		return err
	}
	n, err := device.stream.Write(buffer)
	if err != nil {
		return sectorfs.ErrIOFailed.Wrap(err)
	}
	if n != sectorfs.SectorSize {
		return sectorfs.ErrIOFailed.WithMessage(
			fmt.Sprintf("short write on sector %d: %d of %d bytes", sector, n, sectorfs.SectorSize))
	}
	return nil
}
