package sectorfs_test

import (
	"errors"
	"testing"

	"github.com/dargueta/sectorfs"
	"github.com/stretchr/testify/assert"
)

func TestFSErrorWithMessage(t *testing.T) {
	newErr := sectorfs.ErrNotADirectory.WithMessage("asdfqwerty")
	assert.Equal(
		t, "Not a directory: asdfqwerty", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, sectorfs.ErrNotADirectory)
}

func TestFSErrorWrap(t *testing.T) {
	originalErr := errors.New("original error")
	newErr := sectorfs.ErrExists.Wrap(originalErr)
	expectedMessage := "File exists: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, sectorfs.ErrExists, "sentinel error not set as parent")
}
