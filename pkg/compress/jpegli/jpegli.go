// Package jpegli implements the JPEG lossless process (ITU-T T.81 Annex H,
// process 14) for up to four components of 2 to 16 bits.
package jpegli

import "errors"

// JPEG markers
const (
	MarkerSOI  = 0xFFD8 // Start of Image
	MarkerEOI  = 0xFFD9 // End of Image
	MarkerSOF3 = 0xFFC3 // Lossless (Huffman)
	MarkerDHT  = 0xFFC4 // Define Huffman Table
	MarkerRST0 = 0xFFD0 // Restart 0, through RST7 0xFFD7
	MarkerSOS  = 0xFFDA // Start of Scan
	MarkerDQT  = 0xFFDB // Define Quantization Table (not used in lossless)
	MarkerDRI  = 0xFFDD // Define Restart Interval
	MarkerAPP0 = 0xFFE0 // JFIF APP0
	MarkerCOM  = 0xFFFE // Comment
)

var (
	ErrInvalidFormat = errors.New("jpegli: invalid format")
	ErrUnsupported   = errors.New("jpegli: unsupported feature")
	ErrTruncated     = errors.New("jpegli: truncated scan data")
)

// Frame is one image as component planes. Each plane holds Width*Height
// samples in row order.
type Frame struct {
	Width     int
	Height    int
	Precision int // bits per sample, 2..16
	Planes    [][]int32

	// scan parameters, filled by Decode
	Predictor      int
	PointTransform int
}

// Components is the number of planes.
func (f *Frame) Components() int { return len(f.Planes) }

func (f *Frame) validate() error {
	switch {
	case f.Width < 1 || f.Width > 0xFFFF || f.Height < 1 || f.Height > 0xFFFF:
		return errors.Join(ErrInvalidFormat, errors.New("dimensions out of range"))
	case f.Precision < 2 || f.Precision > 16:
		return errors.Join(ErrUnsupported, errors.New("precision out of range"))
	case len(f.Planes) < 1 || len(f.Planes) > 4:
		return errors.Join(ErrUnsupported, errors.New("component count out of range"))
	}
	for _, p := range f.Planes {
		if len(p) < f.Width*f.Height {
			return errors.Join(ErrInvalidFormat, errors.New("short component plane"))
		}
	}
	return nil
}
