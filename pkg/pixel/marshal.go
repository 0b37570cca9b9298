package pixel

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrStorageWidth is returned for storage units other than 1 or 2 bytes.
	ErrStorageWidth = errors.New("unsupported sample storage width")
	// ErrShortFrame is returned when raw frame bytes or component planes are
	// smaller than the layout requires.
	ErrShortFrame = errors.New("frame shorter than layout")
)

// Layout describes how samples sit in raw frame bytes.
type Layout struct {
	BytesPerSample  int
	Signed          bool
	BitsStored      int
	HighBit         int
	Planar          bool
	SamplesPerPixel int
	PixelCount      int
}

// LayoutOf derives the sample layout of b's frames.
func LayoutOf(b *Buffer) Layout {
	return Layout{
		BytesPerSample:  b.BytesAllocated(),
		Signed:          b.IsSigned(),
		BitsStored:      b.BitsStored,
		HighBit:         b.HighBit,
		Planar:          b.IsPlanar(),
		SamplesPerPixel: b.SamplesPerPixel,
		PixelCount:      b.PixelCount(),
	}
}

// FrameBytes is the number of raw bytes one frame occupies.
func (l Layout) FrameBytes() int {
	return l.PixelCount * l.SamplesPerPixel * l.BytesPerSample
}

func (l Layout) check() error {
	if l.BytesPerSample != 1 && l.BytesPerSample != 2 {
		return fmt.Errorf("%w: %d bytes", ErrStorageWidth, l.BytesPerSample)
	}
	return nil
}

// offset is the sample index of component c at pixel p.
func (l Layout) offset(c, p int) int {
	if l.Planar {
		return c*l.PixelCount + p
	}
	return p*l.SamplesPerPixel + c
}

// fullWidth reports whether the stored bits fill the storage unit.
func (l Layout) fullWidth() bool {
	return l.BitsStored >= 8*l.BytesPerSample
}

// Pack splits raw frame bytes into one int32 plane per component,
// sign-extending stored values when the layout is signed.
func Pack(raw []byte, l Layout) ([][]int32, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	if len(raw) < l.FrameBytes() {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrShortFrame, len(raw), l.FrameBytes())
	}
	signBit := uint32(1) << l.HighBit
	full := l.fullWidth()
	comps := make([][]int32, l.SamplesPerPixel)
	for c := range comps {
		plane := make([]int32, l.PixelCount)
		for p := range plane {
			o := l.offset(c, p)
			var u uint32
			if l.BytesPerSample == 1 {
				u = uint32(raw[o])
			} else {
				u = uint32(binary.LittleEndian.Uint16(raw[2*o:]))
			}
			switch {
			case !l.Signed:
				plane[p] = int32(u)
			case full && l.BytesPerSample == 1:
				plane[p] = int32(int8(u))
			case full:
				plane[p] = int32(int16(u))
			case u&signBit != 0:
				plane[p] = -int32(u & (signBit - 1))
			default:
				plane[p] = int32(u)
			}
		}
		comps[c] = plane
	}
	return comps, nil
}

// Unpack is the inverse of Pack and allocates the frame.
func Unpack(comps [][]int32, l Layout) ([]byte, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	out := make([]byte, l.FrameBytes())
	if err := UnpackInto(out, comps, l); err != nil {
		return nil, err
	}
	return out, nil
}

// UnpackInto writes component planes into a caller-owned frame.
func UnpackInto(dst []byte, comps [][]int32, l Layout) error {
	if err := l.check(); err != nil {
		return err
	}
	if len(dst) < l.FrameBytes() {
		return fmt.Errorf("%w: destination %d bytes, need %d", ErrShortFrame, len(dst), l.FrameBytes())
	}
	if len(comps) < l.SamplesPerPixel {
		return fmt.Errorf("%w: %d components, need %d", ErrShortFrame, len(comps), l.SamplesPerPixel)
	}
	signBit := uint32(1) << l.HighBit
	full := l.fullWidth()
	for c := 0; c < l.SamplesPerPixel; c++ {
		plane := comps[c]
		if len(plane) < l.PixelCount {
			return fmt.Errorf("%w: component %d has %d samples, need %d", ErrShortFrame, c, len(plane), l.PixelCount)
		}
		for p := 0; p < l.PixelCount; p++ {
			v := plane[p]
			var u uint32
			if v < 0 && l.Signed && !full {
				u = uint32(-v) | signBit
			} else {
				u = uint32(v)
			}
			o := l.offset(c, p)
			if l.BytesPerSample == 1 {
				dst[o] = byte(u)
			} else {
				binary.LittleEndian.PutUint16(dst[2*o:], uint16(u))
			}
		}
	}
	return nil
}
