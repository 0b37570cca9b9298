// Package pixel models the pixel data of an image: its geometry, sample
// encoding and frames, and converts between raw frame bytes and per-component
// integer sample planes.
package pixel

import (
	"errors"
	"fmt"

	"github.com/jpfielding/pixeldata.go/pkg/dicom/transfer"
)

// ErrInvalidGeometry reports a buffer whose attributes break the pixel
// module constraints.
var ErrInvalidGeometry = errors.New("invalid pixel geometry")

// Buffer is the pixel data of one image with its describing attributes.
// Frames come from a FrameStore; at most one frame is resident at a time.
type Buffer struct {
	Syntax              transfer.Syntax
	Width               int
	Height              int
	SamplesPerPixel     int
	BitsAllocated       int
	BitsStored          int
	HighBit             int
	PixelRepresentation int // 0 unsigned, 1 signed
	PlanarConfiguration int // 0 interleaved, 1 planar
	Photometric         Photometric

	IsLossy                bool
	LossyCompressionMethod string
	LossyCompressionRatio  string

	store    FrameStore
	resident int
	cached   []byte
}

// NewBuffer returns an empty buffer for the syntax backed by an in-memory store.
func NewBuffer(syntax transfer.Syntax) *Buffer {
	return &Buffer{Syntax: syntax, store: NewMemStore(), resident: -1}
}

// WithStore replaces the frame store and drops any resident frame.
func (b *Buffer) WithStore(s FrameStore) *Buffer {
	b.store = s
	b.resident = -1
	b.cached = nil
	return b
}

// Store returns the frame store backing b.
func (b *Buffer) Store() FrameStore {
	if b.store == nil {
		b.store = NewMemStore()
		b.resident = -1
	}
	return b.store
}

// Shell copies the geometry and lossy bookkeeping of b into a new frame-less
// buffer for the given syntax.
func (b *Buffer) Shell(syntax transfer.Syntax) *Buffer {
	s := *b
	s.Syntax = syntax
	s.store = NewMemStore()
	s.resident = -1
	s.cached = nil
	return &s
}

// NumberOfFrames returns the frame count of the store.
func (b *Buffer) NumberOfFrames() int {
	return b.Store().Len()
}

// BytesAllocated is the storage unit width in bytes.
func (b *Buffer) BytesAllocated() int {
	return (b.BitsAllocated + 7) / 8
}

func (b *Buffer) IsPlanar() bool { return b.PlanarConfiguration == 1 }

func (b *Buffer) IsSigned() bool { return b.PixelRepresentation == 1 }

// PixelCount is Width*Height.
func (b *Buffer) PixelCount() int {
	return b.Width * b.Height
}

// UncompressedFrameSize is the native size of one frame in bytes.
func (b *Buffer) UncompressedFrameSize() int {
	return b.Width * b.Height * b.SamplesPerPixel * b.BytesAllocated()
}

// FrameSize is the stored size of frame i: the native frame size for
// uncompressed syntaxes, the encoded length otherwise.
func (b *Buffer) FrameSize(i int) (int, error) {
	if !b.Syntax.IsEncapsulated() {
		return b.UncompressedFrameSize(), nil
	}
	f, err := b.Store().Frame(i)
	if err != nil {
		return 0, err
	}
	return len(f), nil
}

// GetFrameDataU8 loads frame i. The frame stays resident until Unload or a
// load of another frame.
func (b *Buffer) GetFrameDataU8(i int) ([]byte, error) {
	if b.resident == i && b.cached != nil {
		return b.cached, nil
	}
	b.Unload()
	f, err := b.Store().Frame(i)
	if err != nil {
		return nil, err
	}
	b.resident, b.cached = i, f
	return f, nil
}

// AddFrame appends a frame. Only buffers backed by a MemStore accept frames.
func (b *Buffer) AddFrame(frame []byte) error {
	m, ok := b.Store().(*MemStore)
	if !ok {
		return fmt.Errorf("buffer store %T does not accept frames", b.store)
	}
	m.Append(frame)
	return nil
}

// Unload drops the resident frame and lets the store release it.
func (b *Buffer) Unload() {
	if b.resident >= 0 {
		if r, ok := b.store.(Releaser); ok {
			r.Release(b.resident)
		}
	}
	b.resident = -1
	b.cached = nil
}

// Resident returns the index of the loaded frame, -1 when none is.
func (b *Buffer) Resident() int {
	if b.cached == nil {
		return -1
	}
	return b.resident
}

// Validate checks the pixel module constraints the codecs rely on.
func (b *Buffer) Validate() error {
	switch {
	case b.Width <= 0 || b.Height <= 0:
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, b.Width, b.Height)
	case b.BitsAllocated != 8 && b.BitsAllocated != 16:
		return fmt.Errorf("%w: %w: bits allocated %d", ErrInvalidGeometry, ErrStorageWidth, b.BitsAllocated)
	case b.SamplesPerPixel != 1 && b.SamplesPerPixel != 3:
		return fmt.Errorf("%w: samples per pixel %d", ErrInvalidGeometry, b.SamplesPerPixel)
	case b.BitsStored < 1 || b.BitsStored > b.BitsAllocated:
		return fmt.Errorf("%w: bits stored %d of %d", ErrInvalidGeometry, b.BitsStored, b.BitsAllocated)
	case b.HighBit != b.BitsStored-1:
		return fmt.Errorf("%w: high bit %d for %d bits stored", ErrInvalidGeometry, b.HighBit, b.BitsStored)
	case b.PixelRepresentation != 0 && b.PixelRepresentation != 1:
		return fmt.Errorf("%w: pixel representation %d", ErrInvalidGeometry, b.PixelRepresentation)
	case b.PlanarConfiguration != 0 && b.PlanarConfiguration != 1:
		return fmt.Errorf("%w: planar configuration %d", ErrInvalidGeometry, b.PlanarConfiguration)
	}
	return nil
}
