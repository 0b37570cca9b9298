package codec

import (
	"testing"

	"github.com/jpfielding/pixeldata.go/pkg/dicom/transfer"
	"github.com/jpfielding/pixeldata.go/pkg/pixel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRatio(t *testing.T) {
	assert.Equal(t, "4.000", FormatRatio(65536, 16384))
	assert.Equal(t, "2.667", FormatRatio(8, 3))
	assert.Equal(t, "0.000", FormatRatio(8, 0))
}

func TestReconcileDecode(t *testing.T) {
	tests := []struct {
		name       string
		syntax     transfer.Syntax
		params     Params
		spp        int
		photo      pixel.Photometric
		planar     int
		wantPhoto  pixel.Photometric
		wantPlanar int
	}{
		{"rct", transfer.JPEG2000Lossless, nil, 3, pixel.YBRRCT, 0, pixel.RGB, 0},
		{"ict", transfer.JPEG2000, nil, 3, pixel.YBRICT, 1, pixel.RGB, 1},
		{"422 to full", transfer.JPEG2000, nil, 3, pixel.YBRFull422, 0, pixel.YBRFull, 1},
		{"partial 422 to full", transfer.JPEGBaseline, nil, 3, pixel.YBRPartial422, 0, pixel.YBRFull, 1},
		{"full planar", transfer.JPEGLSLossless, nil, 3, pixel.YBRFull, 0, pixel.YBRFull, 1},
		{"rgb untouched", transfer.JPEGBaseline, nil, 3, pixel.RGB, 0, pixel.RGB, 0},
		{"mono untouched", transfer.JPEGLossless, nil, 1, pixel.Monochrome1, 0, pixel.Monochrome1, 0},
		{"convert full", transfer.JPEGBaseline, NewJPEGParams().WithConvertColorspaceToRGB(true), 3, pixel.YBRFull, 1, pixel.RGB, 0},
		{"convert 422", transfer.JPEGExtended, NewJPEGParams().WithConvertColorspaceToRGB(true), 3, pixel.YBRFull422, 1, pixel.RGB, 0},
		{"convert ignored by wavelet", transfer.JPEG2000, NewJPEGParams().WithConvertColorspaceToRGB(true), 3, pixel.YBRFull, 0, pixel.YBRFull, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bits := 8
			if tt.syntax == transfer.JPEGExtended {
				bits = 12
			}
			b, err := Select(variant(t, tt.syntax), bits, tt.params)
			require.NoError(t, err)
			dst := pixel.NewBuffer(transfer.ExplicitVRLittleEndian)
			dst.SamplesPerPixel = tt.spp
			dst.Photometric = tt.photo
			dst.PlanarConfiguration = tt.planar
			reconcileDecode(b, dst)
			assert.Equal(t, tt.wantPhoto, dst.Photometric)
			assert.Equal(t, tt.wantPlanar, dst.PlanarConfiguration)
		})
	}
}

func TestReconcileEncodeWithoutFrames(t *testing.T) {
	b, err := Select(variant(t, transfer.JPEG2000), 8, nil)
	require.NoError(t, err)
	src := pixel.NewBuffer(transfer.ExplicitVRLittleEndian)
	src.Photometric = pixel.RGB
	dst := src.Shell(transfer.JPEG2000)
	require.NoError(t, reconcileEncode(b, src, dst))
	assert.Equal(t, pixel.YBRICT, dst.Photometric)
	assert.False(t, dst.IsLossy)
	assert.Empty(t, dst.LossyCompressionRatio)
}
