package firmware

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// Format is the encoding an image was loaded from.
type Format int

const (
	// FormatBinary is a raw image
	FormatBinary Format = iota

	// FormatIntelHex is an Intel HEX file flattened to binary
	FormatIntelHex
)

func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatIntelHex:
		return "intel-hex"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ErrEmpty is returned for an image without content.
var ErrEmpty = errors.New("firmware: image is empty")

// SizeError indicates an image larger than the allowed maximum.
type SizeError struct {
	Size int
	Max  int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("firmware image is %d bytes, maximum is %d", e.Size, e.Max)
}

// Image is a firmware image ready for upload.
type Image struct {
	// Data is the image content as uploaded
	Data []byte

	// Hash is the SHA-256 digest of Data
	Hash [sha256.Size]byte

	// Format is the encoding the image was loaded from
	Format Format

	// BaseAddress is the lowest address of an Intel HEX image, zero otherwise
	BaseAddress uint32
}

// New returns an Image for raw data.
func New(data []byte) *Image {
	return &Image{
		Data: data,
		Hash: sha256.Sum256(data),
	}
}

// Size returns the image length in bytes.
func (img *Image) Size() int {
	return len(img.Data)
}

// Validate checks that the image has content and, when max > 0, is no
// larger than max bytes.
func (img *Image) Validate(max int) error {
	if img == nil || len(img.Data) == 0 {
		return ErrEmpty
	}
	if max > 0 && len(img.Data) > max {
		return &SizeError{Size: len(img.Data), Max: max}
	}
	if img.Hash != sha256.Sum256(img.Data) {
		return fmt.Errorf("firmware: hash does not match image content")
	}
	return nil
}
