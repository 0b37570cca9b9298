// Package jpeg is the DCT-family engine: baseline (process 1), extended
// 12-bit sequential (process 2/4) and lossless (process 14). One Codec value
// serves one precision class with its mode, predictor and point transform
// fixed at construction.
package jpeg

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/jpfielding/pixeldata.go/pkg/compress/jpegli"
)

// Mode is the JPEG process a Codec runs.
type Mode int

const (
	ModeBaseline Mode = iota
	ModeSequential
	ModeSpectralSelection
	ModeProgressive
	ModeLossless
)

func (m Mode) String() string {
	switch m {
	case ModeBaseline:
		return "baseline"
	case ModeSequential:
		return "sequential"
	case ModeSpectralSelection:
		return "spectral-selection"
	case ModeProgressive:
		return "progressive"
	case ModeLossless:
		return "lossless"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

var (
	ErrUnsupportedMode      = errors.New("jpeg: unsupported mode")
	ErrUnsupportedPrecision = errors.New("jpeg: unsupported precision")
	ErrInvalidFormat        = errors.New("jpeg: invalid format")
	ErrGeometry             = errors.New("jpeg: invalid image geometry")
)

// ColorSpace of the planes handed to or returned by a Codec.
type ColorSpace int

const (
	Gray ColorSpace = iota
	RGB
	YCbCr
)

// Image is one frame as component planes of Width*Height samples.
type Image struct {
	Width  int
	Height int
	Bits   int // significant bits per sample
	Color  ColorSpace
	Planes [][]int32
}

func (img *Image) validate() error {
	if img.Width < 1 || img.Height < 1 || img.Width > 0xFFFF || img.Height > 0xFFFF {
		return fmt.Errorf("%w: %dx%d", ErrGeometry, img.Width, img.Height)
	}
	if len(img.Planes) != 1 && len(img.Planes) != 3 {
		return fmt.Errorf("%w: %d components", ErrGeometry, len(img.Planes))
	}
	for _, p := range img.Planes {
		if len(p) < img.Width*img.Height {
			return fmt.Errorf("%w: short plane", ErrGeometry)
		}
	}
	return nil
}

// SampleFactor is the chroma subsampling requested for lossy color encodes.
type SampleFactor int

const (
	SF444 SampleFactor = iota
	SF422
)

// EncodeOptions carries the per-call lossy settings.
type EncodeOptions struct {
	Quality      int // 1..100
	Smoothing    int // 0..100
	SampleFactor SampleFactor
}

// Codec encodes and decodes one precision class.
type Codec struct {
	mode           Mode
	bits           int
	predictor      int
	pointTransform int
}

// New returns a codec for the class bits (8, 12 or 16). Baseline only runs
// 8-bit data and sequential 8- or 12-bit data.
func New(mode Mode, bits, predictor, pointTransform int) (*Codec, error) {
	switch mode {
	case ModeBaseline:
		if bits != 8 {
			return nil, fmt.Errorf("%w: baseline %d bits", ErrUnsupportedPrecision, bits)
		}
	case ModeSequential:
		if bits != 8 && bits != 12 {
			return nil, fmt.Errorf("%w: sequential %d bits", ErrUnsupportedPrecision, bits)
		}
	case ModeLossless:
		if bits != 8 && bits != 12 && bits != 16 {
			return nil, fmt.Errorf("%w: lossless %d bits", ErrUnsupportedPrecision, bits)
		}
		if predictor < 1 || predictor > 7 {
			return nil, fmt.Errorf("%w: predictor %d", ErrUnsupportedMode, predictor)
		}
		if pointTransform < 0 || pointTransform > 15 {
			return nil, fmt.Errorf("%w: point transform %d", ErrUnsupportedMode, pointTransform)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
	return &Codec{mode: mode, bits: bits, predictor: predictor, pointTransform: pointTransform}, nil
}

func (c *Codec) Mode() Mode          { return c.mode }
func (c *Codec) Bits() int           { return c.bits }
func (c *Codec) Predictor() int      { return c.predictor }
func (c *Codec) PointTransform() int { return c.pointTransform }

// Encode compresses img into w.
func (c *Codec) Encode(w io.Writer, img *Image, opts EncodeOptions) error {
	if err := img.validate(); err != nil {
		return err
	}
	if img.Bits < 1 || img.Bits > c.bits {
		return fmt.Errorf("%w: %d bits in a %d-bit codec", ErrUnsupportedPrecision, img.Bits, c.bits)
	}
	if c.mode == ModeLossless {
		f := &jpegli.Frame{
			Width:     img.Width,
			Height:    img.Height,
			Precision: max(2, img.Bits),
			Planes:    img.Planes,
		}
		pt := c.pointTransform
		if pt >= f.Precision {
			pt = f.Precision - 1
		}
		return jpegli.Encode(w, f, &jpegli.Encoder{Predictor: c.predictor, PointTransform: pt})
	}
	return c.encodeLossy(w, img, opts)
}

// Decode decompresses data. out selects RGB or YCbCr planes for lossy
// three-component frames; lossless frames are returned as stored.
func (c *Codec) Decode(data []byte, out ColorSpace) (*Image, error) {
	if c.mode == ModeLossless {
		f, err := jpegli.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Join(ErrInvalidFormat, err)
		}
		img := &Image{Width: f.Width, Height: f.Height, Bits: f.Precision, Planes: f.Planes, Color: Gray}
		if len(f.Planes) == 3 {
			img.Color = out
		}
		return img, nil
	}
	return c.decodeLossy(data, out)
}
