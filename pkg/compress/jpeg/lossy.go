package jpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	stdjpeg "image/jpeg"
	"io"
	"log/slog"
)

// encodeLossy runs the 8-bit DCT coder. 12-bit samples are scaled to 8 bits
// and the frame header is rewritten to SOF1 with precision 12.
func (c *Codec) encodeLossy(w io.Writer, img *Image, opts EncodeOptions) error {
	quality := opts.Quality
	if quality < 1 || quality > 100 {
		return fmt.Errorf("%w: quality %d", ErrUnsupportedMode, quality)
	}
	if opts.Smoothing != 0 || (opts.SampleFactor != SF444 && len(img.Planes) == 3) {
		slog.Debug("jpeg: smoothing and sample factor are not applied by the DCT coder",
			slog.Int("smoothing", opts.Smoothing),
			slog.Int("sampleFactor", int(opts.SampleFactor)))
	}

	scale := func(v int32) uint8 { return uint8(v) }
	if c.bits == 12 {
		scale = func(v int32) uint8 { return uint8((int(v&0xFFF)*255 + 2047) / 4095) }
	}

	var m image.Image
	n := img.Width * img.Height
	rect := image.Rect(0, 0, img.Width, img.Height)
	switch {
	case len(img.Planes) == 1:
		g := image.NewGray(rect)
		for i := 0; i < n; i++ {
			g.Pix[i] = scale(img.Planes[0][i])
		}
		m = g
	case img.Color == YCbCr:
		y := image.NewYCbCr(rect, image.YCbCrSubsampleRatio444)
		for i := 0; i < n; i++ {
			y.Y[i] = scale(img.Planes[0][i])
			y.Cb[i] = scale(img.Planes[1][i])
			y.Cr[i] = scale(img.Planes[2][i])
		}
		m = y
	default:
		rgba := image.NewRGBA(rect)
		for i := 0; i < n; i++ {
			rgba.Pix[4*i+0] = scale(img.Planes[0][i])
			rgba.Pix[4*i+1] = scale(img.Planes[1][i])
			rgba.Pix[4*i+2] = scale(img.Planes[2][i])
			rgba.Pix[4*i+3] = 0xFF
		}
		m = rgba
	}

	var buf bytes.Buffer
	if err := stdjpeg.Encode(&buf, m, &stdjpeg.Options{Quality: quality}); err != nil {
		return err
	}
	data := buf.Bytes()
	if c.mode == ModeSequential {
		if err := rewriteSOF(data, 0xC1, byte(c.bits)); err != nil {
			return err
		}
	}
	_, err := w.Write(data)
	return err
}

func (c *Codec) decodeLossy(data []byte, out ColorSpace) (*Image, error) {
	precision, err := ScanPrecision(data)
	if err != nil {
		return nil, err
	}
	if precision != 8 && precision != 12 {
		return nil, fmt.Errorf("%w: %d-bit DCT data", ErrUnsupportedPrecision, precision)
	}
	if precision == 12 {
		data = bytes.Clone(data)
		if err := rewriteSOF(data, 0xC0, 8); err != nil {
			return nil, err
		}
	}
	m, err := stdjpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Join(ErrInvalidFormat, err)
	}

	expand := func(v uint8) int32 { return int32(v) }
	if precision == 12 {
		expand = func(v uint8) int32 { return int32((int(v)*4095 + 127) / 255) }
	}

	b := m.Bounds()
	img := &Image{Width: b.Dx(), Height: b.Dy(), Bits: precision}
	n := img.Width * img.Height
	if g, ok := m.(*image.Gray); ok {
		img.Color = Gray
		plane := make([]int32, n)
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				plane[y*img.Width+x] = expand(g.Pix[y*g.Stride+x])
			}
		}
		img.Planes = [][]int32{plane}
		return img, nil
	}

	img.Color = out
	img.Planes = [][]int32{make([]int32, n), make([]int32, n), make([]int32, n)}
	set := func(i int, s0, s1, s2 uint8) {
		img.Planes[0][i] = expand(s0)
		img.Planes[1][i] = expand(s1)
		img.Planes[2][i] = expand(s2)
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := y*img.Width + x
			var yy, cb, cr uint8
			switch src := m.(type) {
			case *image.YCbCr:
				yy = src.Y[src.YOffset(b.Min.X+x, b.Min.Y+y)]
				co := src.COffset(b.Min.X+x, b.Min.Y+y)
				cb, cr = src.Cb[co], src.Cr[co]
			default:
				r, g, bl, _ := m.At(b.Min.X+x, b.Min.Y+y).RGBA()
				if out == RGB {
					set(i, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
					continue
				}
				yy, cb, cr = color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			}
			if out == RGB {
				r, g, bl := color.YCbCrToRGB(yy, cb, cr)
				set(i, r, g, bl)
			} else {
				set(i, yy, cb, cr)
			}
		}
	}
	return img, nil
}
