// Package transfer defines the DICOM transfer syntaxes the container and the
// codecs understand.
package transfer

// Syntax is a transfer syntax UID.
type Syntax string

// Native encodings
const (
	ImplicitVRLittleEndian Syntax = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian Syntax = "1.2.840.10008.1.2.1"
	DeflatedExplicitVR     Syntax = "1.2.840.10008.1.2.1.99"
	ExplicitVRBigEndian    Syntax = "1.2.840.10008.1.2.2" // retired
)

// Encapsulated encodings
const (
	JPEGBaseline           Syntax = "1.2.840.10008.1.2.4.50" // process 1
	JPEGExtended           Syntax = "1.2.840.10008.1.2.4.51" // process 2 & 4
	JPEGLossless           Syntax = "1.2.840.10008.1.2.4.57" // process 14
	JPEGLosslessFirstOrder Syntax = "1.2.840.10008.1.2.4.70" // process 14, selection value 1
	JPEGLSLossless         Syntax = "1.2.840.10008.1.2.4.80"
	JPEGLSNearLossless     Syntax = "1.2.840.10008.1.2.4.81"
	JPEG2000Lossless       Syntax = "1.2.840.10008.1.2.4.90"
	JPEG2000               Syntax = "1.2.840.10008.1.2.4.91"
	RLELossless            Syntax = "1.2.840.10008.1.2.5"
)

// IsExplicitVR reports whether data set elements carry their VR.
func (s Syntax) IsExplicitVR() bool {
	return s != ImplicitVRLittleEndian
}

// IsLittleEndian reports the byte order of the data set.
func (s Syntax) IsLittleEndian() bool {
	return s != ExplicitVRBigEndian
}

// IsDeflated reports whether the data set following the file meta group is
// deflate compressed.
func (s Syntax) IsDeflated() bool {
	return s == DeflatedExplicitVR
}

// IsEncapsulated reports whether pixel data is stored as encapsulated fragments.
func (s Syntax) IsEncapsulated() bool {
	switch s {
	case ImplicitVRLittleEndian, ExplicitVRLittleEndian, DeflatedExplicitVR, ExplicitVRBigEndian:
		return false
	default:
		return true
	}
}

// IsLossy reports whether the encoding may discard information.
func (s Syntax) IsLossy() bool {
	switch s {
	case JPEGBaseline, JPEGExtended, JPEGLSNearLossless, JPEG2000:
		return true
	}
	return false
}

// IsJPEGLS reports whether s is one of the JPEG-LS syntaxes.
func (s Syntax) IsJPEGLS() bool {
	return s == JPEGLSLossless || s == JPEGLSNearLossless
}

// IsJPEG2000 reports whether s is one of the JPEG 2000 syntaxes.
func (s Syntax) IsJPEG2000() bool {
	return s == JPEG2000Lossless || s == JPEG2000
}

// IsJPEG reports whether s belongs to the ISO 10918 (DCT/lossless JPEG) family.
func (s Syntax) IsJPEG() bool {
	switch s {
	case JPEGBaseline, JPEGExtended, JPEGLossless, JPEGLosslessFirstOrder:
		return true
	}
	return false
}

// Known reports whether s is one of the constants above.
func (s Syntax) Known() bool {
	for _, k := range All() {
		if k == s {
			return true
		}
	}
	return false
}

// Name returns a human-readable name for the transfer syntax
func (s Syntax) Name() string {
	switch s {
	case ImplicitVRLittleEndian:
		return "Implicit VR Little Endian"
	case ExplicitVRLittleEndian:
		return "Explicit VR Little Endian"
	case DeflatedExplicitVR:
		return "Deflated Explicit VR Little Endian"
	case ExplicitVRBigEndian:
		return "Explicit VR Big Endian (Retired)"
	case JPEGBaseline:
		return "JPEG Baseline (Process 1)"
	case JPEGExtended:
		return "JPEG Extended (Process 2 & 4)"
	case JPEGLossless:
		return "JPEG Lossless (Process 14)"
	case JPEGLosslessFirstOrder:
		return "JPEG Lossless First-Order (Process 14, SV1)"
	case JPEGLSLossless:
		return "JPEG-LS Lossless"
	case JPEGLSNearLossless:
		return "JPEG-LS Near-Lossless"
	case JPEG2000Lossless:
		return "JPEG 2000 Lossless"
	case JPEG2000:
		return "JPEG 2000"
	case RLELossless:
		return "RLE Lossless"
	default:
		return string(s)
	}
}

// String implements fmt.Stringer.
func (s Syntax) String() string {
	return string(s)
}

// All lists every syntax this package names.
func All() []Syntax {
	return []Syntax{
		ImplicitVRLittleEndian, ExplicitVRLittleEndian, DeflatedExplicitVR, ExplicitVRBigEndian,
		JPEGBaseline, JPEGExtended, JPEGLossless, JPEGLosslessFirstOrder,
		JPEGLSLossless, JPEGLSNearLossless, JPEG2000Lossless, JPEG2000, RLELossless,
	}
}

// FromUID converts a UID string to a Syntax, trimming the NUL/space padding
// DICOM strings carry.
func FromUID(uid string) Syntax {
	for len(uid) > 0 && (uid[len(uid)-1] == 0 || uid[len(uid)-1] == ' ') {
		uid = uid[:len(uid)-1]
	}
	return Syntax(uid)
}
