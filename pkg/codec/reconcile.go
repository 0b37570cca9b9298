package codec

import (
	"fmt"

	"github.com/jpfielding/pixeldata.go/pkg/pixel"
)

// FormatRatio renders oldSize/newSize with three decimals, the form written
// to LossyImageCompressionRatio.
func FormatRatio(oldSize, newSize int) string {
	if newSize <= 0 {
		return "0.000"
	}
	return fmt.Sprintf("%.3f", float64(oldSize)/float64(newSize))
}

// reconcileEncode updates dst after every frame of src was encoded.
func reconcileEncode(b *Binding, src, dst *pixel.Buffer) error {
	v := b.variant
	if jp, ok := b.params.(*J2KParams); ok && src.Photometric == pixel.RGB && jp.AllowMCT && jp.UpdatePhotometricInterpretation {
		if v.Tag == JPEG2000Lossy && jp.Irreversible {
			dst.Photometric = pixel.YBRICT
		} else {
			dst.Photometric = pixel.YBRRCT
		}
	}
	if !v.Lossy || dst.NumberOfFrames() == 0 {
		return nil
	}
	oldSize, err := src.FrameSize(0)
	if err != nil {
		return err
	}
	newSize, err := dst.FrameSize(0)
	if err != nil {
		return err
	}
	dst.IsLossy = true
	dst.LossyCompressionMethod = v.LossyMethod
	dst.LossyCompressionRatio = FormatRatio(oldSize, newSize)
	return nil
}

// reconcileDecode rewrites the destination colour attributes. It runs before
// the first frame is unpacked since the planar configuration it settles
// decides the output layout.
func reconcileDecode(b *Binding, dst *pixel.Buffer) {
	if jp, ok := b.params.(*JPEGParams); ok && jp.ConvertColorspaceToRGB && dst.SamplesPerPixel == 3 {
		switch dst.Photometric {
		case pixel.YBRFull, pixel.YBRFull422, pixel.YBRPartial422:
			dst.Photometric = pixel.RGB
			dst.PlanarConfiguration = 0
			return
		}
	}
	switch dst.Photometric {
	case pixel.YBRRCT, pixel.YBRICT:
		dst.Photometric = pixel.RGB
	case pixel.YBRFull422, pixel.YBRPartial422:
		dst.Photometric = pixel.YBRFull
	}
	if dst.Photometric == pixel.YBRFull {
		dst.PlanarConfiguration = 1
	}
}
