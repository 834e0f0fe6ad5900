package fs

import (
	"fmt"
	"io"

	bitmap "github.com/boljen/go-bitmap"
	"github.com/dargueta/sectorfs"
)

// Bitmap tracks which sectors of the disk are allocated, one bit per sector.
// It is persisted as the data of an ordinary file whose header sits at
// [sectorfs.FreeMapSector].
//
// There is no rollback support. A caller that aborts a multi-step allocation
// must clear any bits it set before discarding its in-memory copy; as long
// as the copy is never written back, the on-disk bitmap is untouched.
type Bitmap struct {
	bits    bitmap.Bitmap
	numBits int
}

// NewBitmap creates an all-clear bitmap with one bit for each of `numBits`
// sectors.
func NewBitmap(numBits int) *Bitmap {
	return &Bitmap{
		bits:    bitmap.New(numBits),
		numBits: numBits,
	}
}

// BitmapFromFile reads a persisted bitmap back from its backing file.
func BitmapFromFile(file *OpenFile, numBits int) (*Bitmap, error) {
	buffer := make([]byte, (numBits+sectorfs.BitsInByte-1)/sectorfs.BitsInByte)
	if _, err := file.ReadAt(buffer, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return &Bitmap{
		bits:    bitmap.Bitmap(buffer),
		numBits: numBits,
	}, nil
}

// Mark sets the bit for `which`.
func (bm *Bitmap) Mark(which int) {
	bm.bits.Set(which, true)
}

// Clear clears the bit for `which`.
func (bm *Bitmap) Clear(which int) {
	bm.bits.Set(which, false)
}

// Test returns true if the bit for `which` is set.
func (bm *Bitmap) Test(which int) bool {
	return bm.bits.Get(which)
}

// FindAndSet finds the lowest-numbered clear bit, sets it, and returns its
// index. The second return value is false if every bit is already set.
func (bm *Bitmap) FindAndSet() (int, bool) {
	for i := 0; i < bm.numBits; i++ {
		if !bm.bits.Get(i) {
			bm.bits.Set(i, true)
			return i, true
		}
	}
	return -1, false
}

// NumClear returns the number of clear bits. Callers use this to check that
// enough space remains before committing to a multi-sector allocation.
func (bm *Bitmap) NumClear() int {
	count := 0
	for i := 0; i < bm.numBits; i++ {
		if !bm.bits.Get(i) {
			count++
		}
	}
	return count
}

// NumBits returns the total number of bits tracked.
func (bm *Bitmap) NumBits() int {
	return bm.numBits
}

// WriteBack flushes the bitmap to its backing file.
func (bm *Bitmap) WriteBack(file *OpenFile) error {
	_, err := file.WriteAt(bm.bits.Data(false), 0)
	return err
}

// Print writes the indices of all set bits to `w`, for debugging.
func (bm *Bitmap) Print(w io.Writer) {
	fmt.Fprintf(w, "Bitmap, %d bits set:\n", bm.numBits-bm.NumClear())
	for i := 0; i < bm.numBits; i++ {
		if bm.bits.Get(i) {
			fmt.Fprintf(w, "%d ", i)
		}
	}
	fmt.Fprintln(w)
}
