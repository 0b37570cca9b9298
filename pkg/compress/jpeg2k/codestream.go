package jpeg2k

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// CodestreamWriter writes JPEG 2000 codestream structure
type CodestreamWriter struct {
	w   *bufio.Writer
	seg []byte
}

// NewCodestreamWriter creates a new codestream writer
func NewCodestreamWriter(w io.Writer) *CodestreamWriter {
	return &CodestreamWriter{w: bufio.NewWriter(w)}
}

func (c *CodestreamWriter) marker(m uint16) error {
	_, err := c.w.Write([]byte{byte(m >> 8), byte(m)})
	return err
}

// segment writes marker m followed by Lxxx and body.
func (c *CodestreamWriter) segment(m uint16, body []byte) error {
	if len(body)+2 > 0xFFFF {
		return fmt.Errorf("%w: marker 0x%04X segment of %d bytes", ErrInvalidParams, m, len(body))
	}
	if err := c.marker(m); err != nil {
		return err
	}
	if _, err := c.w.Write(binary.BigEndian.AppendUint16(nil, uint16(len(body)+2))); err != nil {
		return err
	}
	_, err := c.w.Write(body)
	return err
}

// WriteSOC writes the Start of Codestream marker
func (c *CodestreamWriter) WriteSOC() error {
	return c.marker(MarkerSOC)
}

// WriteSIZ writes the SIZ marker segment
func (c *CodestreamWriter) WriteSIZ(siz *SIZMarker) error {
	b := c.seg[:0]
	b = binary.BigEndian.AppendUint16(b, siz.Rsiz)
	for _, v := range []uint32{siz.XSiz, siz.YSiz, siz.XOsiz, siz.YOsiz, siz.XTsiz, siz.YTsiz, siz.XTOsiz, siz.YTOsiz} {
		b = binary.BigEndian.AppendUint32(b, v)
	}
	b = binary.BigEndian.AppendUint16(b, uint16(len(siz.Components)))
	for _, comp := range siz.Components {
		ssiz := byte(comp.Precision - 1)
		if comp.Signed {
			ssiz |= 0x80
		}
		b = append(b, ssiz, byte(comp.XRsiz), byte(comp.YRsiz))
	}
	c.seg = b
	return c.segment(MarkerSIZ, b)
}

// WriteCOD writes the COD marker segment
func (c *CodestreamWriter) WriteCOD(cod *CODMarker) error {
	b := append(c.seg[:0], cod.Scod, byte(cod.Progression))
	b = binary.BigEndian.AppendUint16(b, cod.NumLayers)
	b = append(b, cod.MCT, cod.DecompLevels, cod.CodeBlockWidthExp, cod.CodeBlockHeightExp,
		cod.CodeBlockStyle, byte(cod.Transform))
	c.seg = b
	return c.segment(MarkerCOD, b)
}

// WriteQCD writes the QCD marker segment. Reversible entries take one byte,
// scalar entries two.
func (c *CodestreamWriter) WriteQCD(qcd *QCDMarker) error {
	b := append(c.seg[:0], qcd.GuardBits<<5|qcd.Sqcd&0x1F)
	for _, step := range qcd.StepSizes {
		if qcd.Style() == QuantizationNone {
			b = append(b, byte(step<<3))
		} else {
			b = binary.BigEndian.AppendUint16(b, step)
		}
	}
	c.seg = b
	return c.segment(MarkerQCD, b)
}

// WriteCOM writes a comment segment.
func (c *CodestreamWriter) WriteCOM(com *COMMarker) error {
	b := binary.BigEndian.AppendUint16(c.seg[:0], com.Registration)
	b = append(b, com.Data...)
	c.seg = b
	return c.segment(MarkerCOM, b)
}

// WriteSOT writes a tile-part header
func (c *CodestreamWriter) WriteSOT(sot *SOTMarker) error {
	b := binary.BigEndian.AppendUint16(c.seg[:0], sot.TileIndex)
	b = binary.BigEndian.AppendUint32(b, sot.TilePartLen)
	b = append(b, sot.TilePartIdx, sot.NumTileParts)
	c.seg = b
	return c.segment(MarkerSOT, b)
}

// WriteSOD writes the Start of Data marker
func (c *CodestreamWriter) WriteSOD() error {
	return c.marker(MarkerSOD)
}

// WriteEOC writes the End of Codestream marker
func (c *CodestreamWriter) WriteEOC() error {
	return c.marker(MarkerEOC)
}

// WriteBytes writes raw bytes
func (c *CodestreamWriter) WriteBytes(data []byte) error {
	_, err := c.w.Write(data)
	return err
}

// Flush flushes the underlying buffer
func (c *CodestreamWriter) Flush() error {
	return c.w.Flush()
}

// BuildDefaultCOD creates a COD marker for a single-tile LRCP codestream.
func BuildDefaultCOD(decompLevels int, numLayers int, progression ProgressionOrder, useMCT bool) *CODMarker {
	cod := &CODMarker{
		Progression:        progression,
		NumLayers:          uint16(numLayers),
		DecompLevels:       byte(decompLevels),
		CodeBlockWidthExp:  4, // 64x64 code-blocks
		CodeBlockHeightExp: 4,
		Transform:          TransformReversible53,
	}
	if useMCT {
		cod.MCT = 1
	}
	return cod
}

// BuildDefaultQCD creates a QCD marker for reversible coding: one exponent
// per subband.
func BuildDefaultQCD(decompLevels int, guardBits int, precision int) *QCDMarker {
	qcd := &QCDMarker{
		Sqcd:      QuantizationNone,
		GuardBits: byte(guardBits),
		StepSizes: make([]uint16, 3*decompLevels+1),
	}
	for i := range qcd.StepSizes {
		qcd.StepSizes[i] = uint16(precision)
	}
	return qcd
}

// BuildScalarQCD creates a scalar-derived QCD marker for step size
// 2^(precision-eps) * (1 + mu/2048).
func BuildScalarQCD(guardBits int, eps, mu int) *QCDMarker {
	return &QCDMarker{
		Sqcd:      QuantizationScalarDerived,
		GuardBits: byte(guardBits),
		StepSizes: []uint16{uint16(eps&0x1F)<<11 | uint16(mu&0x7FF)},
	}
}

// StepSize returns the quantization step of a scalar QCD for a component
// of the given precision. Reversible markers return 1.
func (q *QCDMarker) StepSize(precision int) float64 {
	if q.Style() == QuantizationNone || len(q.StepSizes) == 0 {
		return 1
	}
	eps := int(q.StepSizes[0] >> 11)
	mu := float64(q.StepSizes[0] & 0x7FF)
	step := 1 + mu/2048
	for e := precision - eps; e > 0; e-- {
		step *= 2
	}
	for e := precision - eps; e < 0; e++ {
		step /= 2
	}
	return step
}

// BuildSIZ creates a SIZ marker from image parameters
func BuildSIZ(width, height int, components []ComponentInfo, tileWidth, tileHeight int) *SIZMarker {
	if tileWidth == 0 {
		tileWidth = width
	}
	if tileHeight == 0 {
		tileHeight = height
	}

	return &SIZMarker{
		XSiz:       uint32(width),
		YSiz:       uint32(height),
		XTsiz:      uint32(tileWidth),
		YTsiz:      uint32(tileHeight),
		Components: components,
	}
}

// Codestream is a parsed single-layout codestream: main header and the
// concatenated data of each tile.
type Codestream struct {
	SIZ      SIZMarker
	COD      CODMarker
	QCD      QCDMarker
	Comments []COMMarker
	Tiles    map[uint16][]byte
}

// ParseCodestreamHeader parses the main header of a codestream.
func ParseCodestreamHeader(data []byte) (*SIZMarker, *CODMarker, *QCDMarker, error) {
	cs, _, err := parseMainHeader(data)
	if err != nil {
		return nil, nil, nil, err
	}
	return &cs.SIZ, &cs.COD, &cs.QCD, nil
}

// ParseCodestream parses the main header and collects every tile-part.
func ParseCodestream(data []byte) (*Codestream, error) {
	cs, pos, err := parseMainHeader(data)
	if err != nil {
		return nil, err
	}
	cs.Tiles = map[uint16][]byte{}
	for {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("%w: missing EOC", ErrInvalidFormat)
		}
		m := binary.BigEndian.Uint16(data[pos:])
		if m == MarkerEOC {
			return cs, nil
		}
		if m != MarkerSOT {
			return nil, fmt.Errorf("%w: expected SOT, got 0x%04X", ErrInvalidFormat, m)
		}
		start := pos
		seg, next, err := readSegment(data, pos+2)
		if err != nil {
			return nil, err
		}
		// Lsot is 10: the length field plus Isot, Psot, TPsot and TNsot
		if len(seg) != 8 {
			return nil, fmt.Errorf("%w: SOT length %d", ErrInvalidFormat, len(seg)+2)
		}
		sot := SOTMarker{
			TileIndex:    binary.BigEndian.Uint16(seg[0:]),
			TilePartLen:  binary.BigEndian.Uint32(seg[2:]),
			TilePartIdx:  seg[6],
			NumTileParts: seg[7],
		}
		pos = next
		// tile-part header segments up to SOD
		for {
			if pos+2 > len(data) {
				return nil, fmt.Errorf("%w: missing SOD", ErrInvalidFormat)
			}
			m := binary.BigEndian.Uint16(data[pos:])
			if m == MarkerSOD {
				pos += 2
				break
			}
			_, pos, err = readSegment(data, pos+2)
			if err != nil {
				return nil, err
			}
		}
		end := len(data) - 2
		if sot.TilePartLen != 0 {
			end = start + int(sot.TilePartLen)
		}
		if end < pos || end > len(data) {
			return nil, fmt.Errorf("%w: tile-part length %d", ErrInvalidFormat, sot.TilePartLen)
		}
		cs.Tiles[sot.TileIndex] = append(cs.Tiles[sot.TileIndex], data[pos:end]...)
		pos = end
	}
}

// readSegment returns the body of the segment whose length field is at pos
// and the offset after it.
func readSegment(data []byte, pos int) ([]byte, int, error) {
	if pos+2 > len(data) {
		return nil, 0, fmt.Errorf("%w: truncated segment", ErrInvalidFormat)
	}
	length := int(binary.BigEndian.Uint16(data[pos:]))
	if length < 2 || pos+length > len(data) {
		return nil, 0, fmt.Errorf("%w: segment length %d", ErrInvalidFormat, length)
	}
	return data[pos+2 : pos+length], pos + length, nil
}

func parseMainHeader(data []byte) (*Codestream, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("%w: codestream too short", ErrInvalidFormat)
	}
	if binary.BigEndian.Uint16(data) != MarkerSOC {
		return nil, 0, fmt.Errorf("%w: missing SOC", ErrInvalidFormat)
	}
	cs := &Codestream{}
	var haveSIZ, haveCOD, haveQCD bool
	pos := 2
	for {
		if pos+2 > len(data) {
			return nil, 0, fmt.Errorf("%w: truncated main header", ErrInvalidFormat)
		}
		marker := binary.BigEndian.Uint16(data[pos:])
		if marker == MarkerSOT {
			break
		}
		if marker>>8 != 0xFF {
			return nil, 0, fmt.Errorf("%w: expected marker at %d", ErrInvalidFormat, pos)
		}
		seg, next, err := readSegment(data, pos+2)
		if err != nil {
			return nil, 0, err
		}
		pos = next

		switch marker {
		case MarkerSIZ:
			if err := parseSIZSegment(seg, &cs.SIZ); err != nil {
				return nil, 0, err
			}
			haveSIZ = true
		case MarkerCOD:
			if err := parseCODSegment(seg, &cs.COD); err != nil {
				return nil, 0, err
			}
			haveCOD = true
		case MarkerQCD:
			if err := parseQCDSegment(seg, &cs.QCD); err != nil {
				return nil, 0, err
			}
			haveQCD = true
		case MarkerCOM:
			if len(seg) >= 2 {
				cs.Comments = append(cs.Comments, COMMarker{
					Registration: binary.BigEndian.Uint16(seg),
					Data:         seg[2:],
				})
			}
		case MarkerCOC, MarkerQCC:
			return nil, 0, fmt.Errorf("%w: component-specific marker 0x%04X", ErrUnsupported, marker)
		}
	}
	if !haveSIZ || !haveCOD || !haveQCD {
		return nil, 0, fmt.Errorf("%w: main header lacks SIZ, COD or QCD", ErrInvalidFormat)
	}
	return cs, pos, nil
}

func parseSIZSegment(data []byte, siz *SIZMarker) error {
	if len(data) < 36 {
		return fmt.Errorf("%w: SIZ length %d", ErrInvalidFormat, len(data)+2)
	}
	siz.Rsiz = binary.BigEndian.Uint16(data[0:2])
	siz.XSiz = binary.BigEndian.Uint32(data[2:6])
	siz.YSiz = binary.BigEndian.Uint32(data[6:10])
	siz.XOsiz = binary.BigEndian.Uint32(data[10:14])
	siz.YOsiz = binary.BigEndian.Uint32(data[14:18])
	siz.XTsiz = binary.BigEndian.Uint32(data[18:22])
	siz.YTsiz = binary.BigEndian.Uint32(data[22:26])
	siz.XTOsiz = binary.BigEndian.Uint32(data[26:30])
	siz.YTOsiz = binary.BigEndian.Uint32(data[30:34])
	numComps := int(binary.BigEndian.Uint16(data[34:36]))
	if numComps == 0 || len(data) < 36+3*numComps {
		return fmt.Errorf("%w: SIZ declares %d components", ErrInvalidFormat, numComps)
	}

	siz.Components = make([]ComponentInfo, numComps)
	for i := range siz.Components {
		p := data[36+3*i:]
		siz.Components[i].Signed = p[0]&0x80 != 0
		siz.Components[i].Precision = int(p[0]&0x7F) + 1
		siz.Components[i].XRsiz = int(p[1])
		siz.Components[i].YRsiz = int(p[2])
	}
	return nil
}

func parseCODSegment(data []byte, cod *CODMarker) error {
	if len(data) < 10 {
		return fmt.Errorf("%w: COD length %d", ErrInvalidFormat, len(data)+2)
	}
	cod.Scod = data[0]
	cod.Progression = ProgressionOrder(data[1])
	cod.NumLayers = binary.BigEndian.Uint16(data[2:4])
	cod.MCT = data[4]
	cod.DecompLevels = data[5]
	cod.CodeBlockWidthExp = data[6]
	cod.CodeBlockHeightExp = data[7]
	cod.CodeBlockStyle = data[8]
	cod.Transform = TransformType(data[9])
	return nil
}

func parseQCDSegment(data []byte, qcd *QCDMarker) error {
	if len(data) < 1 {
		return fmt.Errorf("%w: empty QCD", ErrInvalidFormat)
	}
	qcd.Sqcd = data[0] & 0x1F
	qcd.GuardBits = data[0] >> 5
	rest := data[1:]
	qcd.StepSizes = qcd.StepSizes[:0]
	switch qcd.Style() {
	case QuantizationNone:
		for _, b := range rest {
			qcd.StepSizes = append(qcd.StepSizes, uint16(b>>3))
		}
	case QuantizationScalarDerived, QuantizationScalarExpound:
		if len(rest) < 2 {
			return fmt.Errorf("%w: QCD has no step size", ErrInvalidFormat)
		}
		for i := 0; i+1 < len(rest); i += 2 {
			qcd.StepSizes = append(qcd.StepSizes, binary.BigEndian.Uint16(rest[i:]))
		}
	default:
		return fmt.Errorf("%w: quantization style %d", ErrInvalidFormat, qcd.Style())
	}
	return nil
}
