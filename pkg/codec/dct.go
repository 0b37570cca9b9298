package codec

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jpfielding/pixeldata.go/pkg/compress/jpeg"
	"github.com/jpfielding/pixeldata.go/pkg/pixel"
)

// dctAdapter drives one jpeg.Codec precision instance.
type dctAdapter struct {
	codec  *jpeg.Codec
	params JPEGParams
}

func jpegColor(p pixel.Photometric) jpeg.ColorSpace {
	switch {
	case p.IsMonochrome() || p == pixel.PaletteColor:
		return jpeg.Gray
	case p == pixel.YBRFull:
		return jpeg.YCbCr
	}
	return jpeg.RGB
}

func (a *dctAdapter) encode(ctx context.Context, g geometry, planes [][]int32, limit int) ([]byte, error) {
	img := &jpeg.Image{
		Width:  g.Width,
		Height: g.Height,
		Bits:   g.Bits,
		Color:  jpegColor(g.Photometric),
		Planes: planes,
	}
	opts := jpeg.EncodeOptions{
		Quality:      max(1, a.params.Quality),
		Smoothing:    a.params.SmoothingFactor,
		SampleFactor: a.params.SampleFactor,
	}
	w := newBoundedWriter(limit)
	if err := a.codec.Encode(w, img, opts); err != nil {
		if errors.Is(err, errFrameOverflow) {
			return nil, overflowError()
		}
		return nil, dctError(err)
	}
	return w.data, nil
}

func (a *dctAdapter) decode(ctx context.Context, g geometry, data []byte) ([][]int32, bool, error) {
	out := jpeg.RGB
	if g.Photometric.IsSubsampled() || g.Photometric == pixel.YBRFull {
		if !a.params.ConvertColorspaceToRGB {
			out = jpeg.YCbCr
		}
	}
	img, err := a.codec.Decode(data, out)
	if err != nil {
		return nil, false, dctError(err)
	}
	if img.Bits > a.codec.Bits() {
		g.logger().WarnContext(ctx, "jpeg precision above codec class",
			slog.Int("precision", img.Bits),
			slog.Int("class", a.codec.Bits()))
	}
	if err := checkPlanes(g, img.Width, img.Height, img.Planes); err != nil {
		return nil, false, err
	}
	return img.Planes, false, nil
}

func dctError(err error) *Error {
	switch {
	case errors.Is(err, jpeg.ErrUnsupportedMode), errors.Is(err, jpeg.ErrGeometry):
		return newError(ErrCodecParameter, "", err)
	case errors.Is(err, jpeg.ErrUnsupportedPrecision):
		return newError(ErrUnsupportedPrecision, "", err)
	}
	return newError(ErrCodecEngine, "", err)
}
