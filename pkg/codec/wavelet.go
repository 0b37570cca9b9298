package codec

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	"github.com/jpfielding/pixeldata.go/pkg/compress/jpeg2k"
	"github.com/jpfielding/pixeldata.go/pkg/pixel"
)

const resolutions = 6

// waveletAdapter drives the JPEG 2000 engine. Every engine handle it acquires
// is released before the call returns.
type waveletAdapter struct {
	params       J2KParams
	irreversible bool
	rates        []float64
}

func j2kColorSpace(p pixel.Photometric) jpeg2k.ColorSpace {
	switch p {
	case pixel.RGB:
		return jpeg2k.ColorSRGB
	case pixel.Monochrome1, pixel.Monochrome2, pixel.PaletteColor:
		return jpeg2k.ColorGray
	case pixel.YBRFull, pixel.YBRFull422, pixel.YBRPartial422:
		return jpeg2k.ColorSYCC
	}
	return jpeg2k.ColorUnknown
}

// events forwards engine diagnostics to log. Errors always go through;
// warnings and info only when verbose.
func (a *waveletAdapter) events(ctx context.Context, log *slog.Logger) jpeg2k.EventManager {
	em := jpeg2k.EventManager{
		Error: func(msg string) {
			log.ErrorContext(ctx, "jpeg2k", slog.String("event", msg))
		},
	}
	if a.params.IsVerbose {
		em.Warning = func(msg string) {
			log.WarnContext(ctx, "jpeg2k", slog.String("event", msg))
		}
		em.Info = func(msg string) {
			log.InfoContext(ctx, "jpeg2k", slog.String("event", msg))
		}
	}
	return em
}

func (a *waveletAdapter) encode(ctx context.Context, g geometry, planes [][]int32, limit int) ([]byte, error) {
	comps := make([]jpeg2k.ComponentParams, g.Components)
	for i := range comps {
		comps[i] = jpeg2k.ComponentParams{Width: g.Width, Height: g.Height, Precision: g.Bits, Signed: g.Signed}
	}
	img, err := jpeg2k.NewImage(comps, j2kColorSpace(g.Photometric))
	if err != nil {
		return nil, newError(ErrCodecParameter, "", err)
	}
	defer img.Release()
	for i := range img.Components {
		copy(img.Components[i].Data, planes[i])
	}

	enc := jpeg2k.NewCompressor()
	defer enc.Release()
	enc.SetEventManager(a.events(ctx, g.logger()))
	p := jpeg2k.EncoderParams{
		Irreversible: a.irreversible,
		Rates:        a.rates,
		MCT:          g.Photometric == pixel.RGB && a.params.AllowMCT && g.Components >= 3,
		Resolutions:  resolutions,
		Progression:  jpeg2k.ProgressionLRCP,
	}
	if err := enc.Setup(p, img); err != nil {
		return nil, newError(ErrCodecParameter, "", err)
	}

	out := jpeg2k.NewOutputStream(limit)
	defer out.Release()
	if err := enc.Encode(img, out); err != nil {
		if errors.Is(err, jpeg2k.ErrStreamFull) {
			return nil, overflowError()
		}
		return nil, newError(ErrCodecEngine, "Unable to JPEG 2000 encode image", err)
	}
	return bytes.Clone(out.Bytes()), nil
}

func (a *waveletAdapter) decode(ctx context.Context, g geometry, data []byte) ([][]int32, bool, error) {
	dec := jpeg2k.NewDecompressor()
	defer dec.Release()
	dec.SetEventManager(a.events(ctx, g.logger()))
	if err := dec.Setup(jpeg2k.DecoderParams{}); err != nil {
		return nil, false, newError(ErrCodecParameter, "", err)
	}

	in := jpeg2k.NewInputStream(data)
	defer in.Release()
	img, err := dec.ReadHeader(in)
	if err != nil {
		return nil, false, newError(ErrCodecEngine, "Error in JPEG 2000 code stream", err)
	}
	defer img.Release()
	if err := dec.Decode(in, img); err != nil {
		return nil, false, newError(ErrCodecEngine, "Error in JPEG 2000 code stream", err)
	}

	planes := make([][]int32, len(img.Components))
	for i, c := range img.Components {
		planes[i] = c.Data
	}
	if err := checkPlanes(g, img.Width, img.Height, planes); err != nil {
		return nil, false, err
	}
	return planes, img.Components[0].Signed, nil
}
