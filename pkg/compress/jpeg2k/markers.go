// Package jpeg2k implements a wavelet codec laid out as a JPEG 2000 Part-1
// codestream (SOC, SIZ, COD, QCD, SOT, SOD, EOC). Samples are transformed with
// the reversible 5/3 or irreversible 9/7 DWT, optionally decorrelated with the
// RCT/ICT colour transforms, and packed into rate-controlled quality layers.
//
// The API follows the lifecycle of the usual C libraries: a Compressor or
// Decompressor, an Image and a Stream are acquired, configured, used and
// released. LiveHandles reports how many handles are outstanding.
package jpeg2k

// JPEG 2000 marker codes (ITU-T T.800 Table A.1)
const (
	MarkerSOC = 0xFF4F // Start of codestream
	MarkerSOT = 0xFF90 // Start of tile-part
	MarkerSOD = 0xFFD3 // Start of data
	MarkerEOC = 0xFFD9 // End of codestream

	MarkerSIZ = 0xFF51 // Image and tile size
	MarkerCOD = 0xFF52 // Coding style default
	MarkerCOC = 0xFF53 // Coding style component
	MarkerQCD = 0xFF5C // Quantization default
	MarkerQCC = 0xFF5D // Quantization component
	MarkerCOM = 0xFF64 // Comment
)

// ProgressionOrder defines the progression order for JPEG 2000 codestream
type ProgressionOrder byte

const (
	ProgressionLRCP ProgressionOrder = 0 // Layer-Resolution-Component-Position
	ProgressionRLCP ProgressionOrder = 1 // Resolution-Layer-Component-Position
	ProgressionRPCL ProgressionOrder = 2 // Resolution-Position-Component-Layer
	ProgressionPCRL ProgressionOrder = 3 // Position-Component-Resolution-Layer
	ProgressionCPRL ProgressionOrder = 4 // Component-Position-Resolution-Layer
)

// String returns the progression order name
func (p ProgressionOrder) String() string {
	switch p {
	case ProgressionLRCP:
		return "LRCP"
	case ProgressionRLCP:
		return "RLCP"
	case ProgressionRPCL:
		return "RPCL"
	case ProgressionPCRL:
		return "PCRL"
	case ProgressionCPRL:
		return "CPRL"
	default:
		return "Unknown"
	}
}

// TransformType identifies the wavelet transform type
type TransformType byte

const (
	TransformIrreversible97 TransformType = 0 // 9/7 irreversible (lossy)
	TransformReversible53   TransformType = 1 // 5/3 reversible (lossless)
)

func (t TransformType) String() string {
	if t == TransformIrreversible97 {
		return "9/7"
	}
	return "5/3"
}

// Quantization styles carried in the low five bits of Sqcd.
const (
	QuantizationNone          = 0
	QuantizationScalarDerived = 1
	QuantizationScalarExpound = 2
)

// ComponentInfo holds component-specific information from SIZ marker
type ComponentInfo struct {
	Precision int  // Bit depth (1-38)
	Signed    bool // True if signed samples
	XRsiz     int  // Horizontal sample separation
	YRsiz     int  // Vertical sample separation
}

// SIZMarker holds image and tile size parameters (ITU-T T.800 A.5.1)
type SIZMarker struct {
	Rsiz       uint16
	XSiz       uint32 // Reference grid width
	YSiz       uint32 // Reference grid height
	XOsiz      uint32
	YOsiz      uint32
	XTsiz      uint32 // Tile width
	YTsiz      uint32 // Tile height
	XTOsiz     uint32
	YTOsiz     uint32
	Components []ComponentInfo
}

// NumXTiles returns the number of tiles horizontally
func (s *SIZMarker) NumXTiles() int {
	if s.XTsiz == 0 {
		return 0
	}
	return int((s.XSiz - s.XTOsiz + s.XTsiz - 1) / s.XTsiz)
}

// NumYTiles returns the number of tiles vertically
func (s *SIZMarker) NumYTiles() int {
	if s.YTsiz == 0 {
		return 0
	}
	return int((s.YSiz - s.YTOsiz + s.YTsiz - 1) / s.YTsiz)
}

// NumTiles returns the total number of tiles
func (s *SIZMarker) NumTiles() int {
	return s.NumXTiles() * s.NumYTiles()
}

// CODMarker holds coding style default parameters (ITU-T T.800 A.6.1)
type CODMarker struct {
	Scod               byte
	Progression        ProgressionOrder
	NumLayers          uint16
	MCT                byte // 0 none, 1 RCT or ICT depending on Transform
	DecompLevels       byte
	CodeBlockWidthExp  byte // add 2
	CodeBlockHeightExp byte
	CodeBlockStyle     byte
	Transform          TransformType
}

// CodeBlockWidth returns the actual code-block width
func (c *CODMarker) CodeBlockWidth() int {
	return 1 << (c.CodeBlockWidthExp + 2)
}

// CodeBlockHeight returns the actual code-block height
func (c *CODMarker) CodeBlockHeight() int {
	return 1 << (c.CodeBlockHeightExp + 2)
}

// QCDMarker holds quantization default parameters (ITU-T T.800 A.6.4).
// Reversible entries are exponents; scalar entries are eps<<11 | mu.
type QCDMarker struct {
	Sqcd      byte
	GuardBits byte
	StepSizes []uint16
}

// Style returns the quantization style.
func (q *QCDMarker) Style() int {
	return int(q.Sqcd & 0x1F)
}

// SOTMarker holds tile-part header parameters (ITU-T T.800 A.4.2)
type SOTMarker struct {
	TileIndex    uint16
	TilePartLen  uint32 // SOT marker through end of tile-part data, 0 = runs to EOC
	TilePartIdx  byte
	NumTileParts byte
}

// COMMarker holds comment data (ITU-T T.800 A.9.2)
type COMMarker struct {
	Registration uint16 // 0 binary, 1 Latin-1
	Data         []byte
}

// Subband identifies a subband in the DWT decomposition
type Subband int

const (
	SubbandLL Subband = 0 // Low-Low (approximation)
	SubbandHL Subband = 1 // High-Low (horizontal detail)
	SubbandLH Subband = 2 // Low-High (vertical detail)
	SubbandHH Subband = 3 // High-High (diagonal detail)
)

// String returns the subband name
func (s Subband) String() string {
	switch s {
	case SubbandLL:
		return "LL"
	case SubbandHL:
		return "HL"
	case SubbandLH:
		return "LH"
	case SubbandHH:
		return "HH"
	default:
		return "Unknown"
	}
}
