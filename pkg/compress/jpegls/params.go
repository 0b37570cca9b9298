// Package jpegls implements the JPEG-LS (ISO/IEC 14495-1) lossless and
// near-lossless coder with the HP colour transform extension.
package jpegls

// InterleaveMode selects how components share a scan.
type InterleaveMode int

const (
	InterleaveNone   InterleaveMode = 0 // one scan per component
	InterleaveLine   InterleaveMode = 1 // components alternate line by line
	InterleaveSample InterleaveMode = 2 // components alternate sample by sample
)

// ColorTransform is the HP colour transform signalled in the APP8 "mrfx" segment.
type ColorTransform int

const (
	TransformNone ColorTransform = 0
	TransformHP1  ColorTransform = 1
	TransformHP2  ColorTransform = 2
	TransformHP3  ColorTransform = 3
)

// Params describes one image for Encode, and is filled from the stream by
// Decode and ReadHeader.
type Params struct {
	Width             int
	Height            int
	Stride            int // samples per row in each plane, 0 means Width
	Components        int
	BitsPerSample     int
	ILV               InterleaveMode
	AllowedLossyError int // NEAR, 0 is lossless
	ColorTransform    ColorTransform
}

// ErrorCode is the result of an engine call.
type ErrorCode int

const (
	OK ErrorCode = iota
	InvalidJlsParameters
	ParameterValueNotSupported
	UncompressedBufferTooSmall
	CompressedBufferTooSmall
	InvalidCompressedData
	TooMuchCompressedData
	ImageTypeNotSupported
	UnsupportedBitDepthForTransform
	UnsupportedColorTransform
)

func (c ErrorCode) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidJlsParameters:
		return "InvalidJlsParameters"
	case ParameterValueNotSupported:
		return "ParameterValueNotSupported"
	case UncompressedBufferTooSmall:
		return "UncompressedBufferTooSmall"
	case CompressedBufferTooSmall:
		return "CompressedBufferTooSmall"
	case InvalidCompressedData:
		return "InvalidCompressedData"
	case TooMuchCompressedData:
		return "TooMuchCompressedData"
	case ImageTypeNotSupported:
		return "ImageTypeNotSupported"
	case UnsupportedBitDepthForTransform:
		return "UnsupportedBitDepthForTransform"
	case UnsupportedColorTransform:
		return "UnsupportedColorTransform"
	}
	return "ErrorCode(?)"
}

func (p Params) stride() int {
	if p.Stride == 0 {
		return p.Width
	}
	return p.Stride
}

func (p Params) maxVal() int {
	return 1<<p.BitsPerSample - 1
}

// check validates the record against the engine limits.
func (p Params) check() ErrorCode {
	switch {
	case p.Width < 1 || p.Width > 0xFFFF || p.Height < 1 || p.Height > 0xFFFF:
		return InvalidJlsParameters
	case p.Stride != 0 && p.Stride < p.Width:
		return InvalidJlsParameters
	case p.Components < 1 || p.Components > 4:
		return ImageTypeNotSupported
	case p.BitsPerSample < 1 || p.BitsPerSample > 16:
		return ParameterValueNotSupported
	case p.ILV < InterleaveNone || p.ILV > InterleaveSample:
		return InvalidJlsParameters
	case p.AllowedLossyError < 0 || p.AllowedLossyError > 255 || p.AllowedLossyError > p.maxVal()/2:
		return ParameterValueNotSupported
	case p.ColorTransform < TransformNone || p.ColorTransform > TransformHP3:
		return UnsupportedColorTransform
	case p.ColorTransform != TransformNone && p.Components != 3:
		return UnsupportedColorTransform
	case p.ColorTransform != TransformNone && p.BitsPerSample < 2:
		return UnsupportedBitDepthForTransform
	}
	return OK
}

// planesFit reports whether each plane holds Height rows of stride samples.
func (p Params) planesFit(planes [][]int32) bool {
	if len(planes) < p.Components {
		return false
	}
	need := p.stride()*(p.Height-1) + p.Width
	for c := 0; c < p.Components; c++ {
		if len(planes[c]) < need {
			return false
		}
	}
	return true
}

// coding parameters derived from MAXVAL and NEAR (ISO 14495-1 A.2, C.2.4.1.1)
type derived struct {
	maxVal, near int
	rangeVal     int
	qbpp, limit  int
	t1, t2, t3   int
	reset        int
}

const (
	basicT1      = 3
	basicT2      = 7
	basicT3      = 21
	defaultReset = 64
)

func derive(maxVal, near int) derived {
	d := derived{maxVal: maxVal, near: near, reset: defaultReset}
	d.rangeVal = (maxVal+2*near)/(2*near+1) + 1
	d.qbpp = bitLength(d.rangeVal - 1)
	bpp := max(2, bitLength(maxVal))
	d.limit = 2 * (bpp + max(8, bpp))

	if maxVal >= 128 {
		factor := (min(maxVal, 4095) + 128) >> 8
		d.t1 = clip(factor*(basicT1-2)+2+3*near, near+1, maxVal)
		d.t2 = clip(factor*(basicT2-3)+3+5*near, d.t1, maxVal)
		d.t3 = clip(factor*(basicT3-4)+4+7*near, d.t2, maxVal)
	} else {
		factor := 256 / (maxVal + 1)
		d.t1 = clip(max(2, basicT1/factor+3*near), near+1, maxVal)
		d.t2 = clip(max(3, basicT2/factor+5*near), d.t1, maxVal)
		d.t3 = clip(max(4, basicT3/factor+7*near), d.t2, maxVal)
	}
	return d
}

// bitLength is the number of bits needed to represent v (ceil(log2(v+1))).
func bitLength(v int) int {
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}
