package codec

import (
	"context"

	"github.com/jpfielding/pixeldata.go/pkg/compress/jpegls"
	"github.com/jpfielding/pixeldata.go/pkg/pixel"
)

var jlsMessages = map[jpegls.ErrorCode]string{
	jpegls.InvalidJlsParameters:            "Invalid JPEG-LS parameters",
	jpegls.ParameterValueNotSupported:      "Parameter value not supported",
	jpegls.UncompressedBufferTooSmall:      "Uncompressed buffer too small",
	jpegls.CompressedBufferTooSmall:        "Compressed buffer too small",
	jpegls.InvalidCompressedData:           "Invalid compressed data",
	jpegls.TooMuchCompressedData:           "Too much compressed data",
	jpegls.ImageTypeNotSupported:           "Image type not supported",
	jpegls.UnsupportedBitDepthForTransform: "Unsupported bit depth for transform",
	jpegls.UnsupportedColorTransform:       "Unsupported color transform",
}

// jlsError maps an engine code to the domain error. Codes describing the
// request are parameter errors; codes describing the data are engine errors.
func jlsError(code jpegls.ErrorCode) *Error {
	msg, ok := jlsMessages[code]
	if !ok {
		msg = "Unknown error"
	}
	kind := ErrCodecEngine
	switch code {
	case jpegls.InvalidJlsParameters,
		jpegls.ParameterValueNotSupported,
		jpegls.ImageTypeNotSupported,
		jpegls.UnsupportedBitDepthForTransform,
		jpegls.UnsupportedColorTransform:
		kind = ErrCodecParameter
	}
	e := newError(kind, msg, nil)
	e.Code = int(code)
	return e
}

// predictiveAdapter runs the one-shot JPEG-LS entry points.
type predictiveAdapter struct {
	params JPEGLSParams
}

func (a *predictiveAdapter) record(g geometry) jpegls.Params {
	p := jpegls.Params{
		Width:             g.Width,
		Height:            g.Height,
		Components:        g.Components,
		BitsPerSample:     g.Bits,
		ILV:               a.params.InterleaveMode,
		AllowedLossyError: a.params.AllowedError,
	}
	// the HP transforms need two bits and are only reversible without
	// quantisation
	if g.Components == 3 && g.Photometric == pixel.RGB && g.Bits >= 2 && p.AllowedLossyError == 0 {
		p.ColorTransform = a.params.ColorTransform
	}
	return p
}

func (a *predictiveAdapter) encode(ctx context.Context, g geometry, planes [][]int32, limit int) ([]byte, error) {
	dst := make([]byte, limit)
	n, code := jpegls.Encode(dst, planes, a.record(g))
	if code == jpegls.CompressedBufferTooSmall {
		e := overflowError()
		e.Code = int(code)
		return nil, e
	}
	if code != jpegls.OK {
		return nil, jlsError(code)
	}
	return dst[:n], nil
}

func (a *predictiveAdapter) decode(ctx context.Context, g geometry, data []byte) ([][]int32, bool, error) {
	n := g.Width * g.Height
	planes := make([][]int32, g.Components)
	for c := range planes {
		planes[c] = make([]int32, n)
	}
	hdr, code := jpegls.Decode(data, planes, 0)
	if code != jpegls.OK {
		return nil, false, jlsError(code)
	}
	if hdr.Components != g.Components {
		return nil, false, newError(ErrCodecEngine, "decoded frame geometry does not match the pixel data", nil)
	}
	if err := checkPlanes(g, hdr.Width, hdr.Height, planes); err != nil {
		return nil, false, err
	}
	return planes, false, nil
}
