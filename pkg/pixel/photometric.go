package pixel

// Photometric is the Photometric Interpretation (0028,0004) of a pixel buffer.
type Photometric string

// Photometric interpretations understood by the codecs
const (
	Monochrome1   Photometric = "MONOCHROME1"
	Monochrome2   Photometric = "MONOCHROME2"
	PaletteColor  Photometric = "PALETTE COLOR"
	RGB           Photometric = "RGB"
	YBRFull       Photometric = "YBR_FULL"
	YBRFull422    Photometric = "YBR_FULL_422"
	YBRPartial422 Photometric = "YBR_PARTIAL_422"
	YBRPartial420 Photometric = "YBR_PARTIAL_420"
	YBRICT        Photometric = "YBR_ICT"
	YBRRCT        Photometric = "YBR_RCT"
)

// IsSubsampled reports whether chroma is stored at reduced resolution.
func (p Photometric) IsSubsampled() bool {
	switch p {
	case YBRFull422, YBRPartial422, YBRPartial420:
		return true
	}
	return false
}

// IsColorTransformed reports whether the samples carry a JPEG 2000
// multi-component transform.
func (p Photometric) IsColorTransformed() bool {
	return p == YBRICT || p == YBRRCT
}

// IsMonochrome reports MONOCHROME1 or MONOCHROME2.
func (p Photometric) IsMonochrome() bool {
	return p == Monochrome1 || p == Monochrome2
}

func (p Photometric) String() string {
	return string(p)
}

// ParsePhotometric trims DICOM padding from a code string value.
func ParsePhotometric(s string) Photometric {
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == 0) {
		s = s[:len(s)-1]
	}
	return Photometric(s)
}
