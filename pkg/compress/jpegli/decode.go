package jpegli

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
)

// Decoder decodes JPEG Lossless images.
type Decoder struct {
	data []byte
	pos  int

	// Frame parameters
	precision int // bits per sample (typically 8, 12, or 16)
	height    int
	width     int

	// Component info
	compInfo []componentInfo

	// Huffman tables, class 0 (DC) only
	dcTables [4]*huffmanTable

	// Scan parameters
	predictor  int // 1-7
	pointTrans int // point transform (right shift)

	// Restart interval
	restartInterval int

	planes     [][]int32
	decoded    []bool
	scanTables []int
}

type componentInfo struct {
	id        int
	hSampling int
	vSampling int
}

// Header is the frame and first-scan description of a lossless stream.
type Header struct {
	Width          int
	Height         int
	Precision      int
	Components     int
	Predictor      int
	PointTransform int
}

// Decode reads a JPEG Lossless image from r.
func Decode(r io.Reader) (*Frame, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	d := &Decoder{data: data}
	return d.decode()
}

// DecodeHeader parses markers up to the first scan header.
func DecodeHeader(data []byte) (Header, error) {
	d := &Decoder{data: data}
	if err := d.expectMarker(MarkerSOI); err != nil {
		return Header{}, err
	}
	for {
		marker, err := d.readMarker()
		if err != nil {
			return Header{}, err
		}
		if marker == MarkerSOS {
			seg, err := d.segment()
			if err != nil {
				return Header{}, err
			}
			if _, err := d.parseSOS(seg); err != nil {
				return Header{}, err
			}
			return d.header(), nil
		}
		if marker == MarkerEOI {
			return Header{}, fmt.Errorf("%w: EOI before scan", ErrInvalidFormat)
		}
		if err := d.handle(marker); err != nil {
			return Header{}, err
		}
	}
}

func (d *Decoder) header() Header {
	return Header{
		Width:          d.width,
		Height:         d.height,
		Precision:      d.precision,
		Components:     len(d.compInfo),
		Predictor:      d.predictor,
		PointTransform: d.pointTrans,
	}
}

func (d *Decoder) decode() (*Frame, error) {
	if err := d.expectMarker(MarkerSOI); err != nil {
		return nil, fmt.Errorf("expected SOI: %w", err)
	}
	for {
		marker, err := d.readMarker()
		if err != nil {
			if d.complete() {
				// missing EOI after the last scan
				return d.frame(), nil
			}
			return nil, err
		}
		switch marker {
		case MarkerEOI:
			if !d.complete() {
				return nil, fmt.Errorf("%w: EOI before all components decoded", ErrInvalidFormat)
			}
			return d.frame(), nil
		case MarkerSOS:
			if err := d.decodeScan(); err != nil {
				return nil, err
			}
		default:
			if err := d.handle(marker); err != nil {
				return nil, err
			}
		}
	}
}

// handle processes every marker other than SOS and EOI.
func (d *Decoder) handle(marker int) error {
	switch {
	case marker == MarkerSOF3:
		return d.readSOF()
	case marker == MarkerDHT:
		return d.readDHT()
	case marker == MarkerDRI:
		return d.readDRI()
	case marker >= 0xFFC0 && marker <= 0xFFCF && marker != 0xFFC8 && marker != 0xFFCC:
		return fmt.Errorf("%w: SOF marker 0x%04X", ErrUnsupported, marker)
	}
	// APPn, COM, DQT and anything else carrying a length
	_, err := d.segment()
	return err
}

func (d *Decoder) complete() bool {
	if d.planes == nil {
		return false
	}
	for _, ok := range d.decoded {
		if !ok {
			return false
		}
	}
	return true
}

func (d *Decoder) frame() *Frame {
	return &Frame{
		Width:          d.width,
		Height:         d.height,
		Precision:      d.precision,
		Planes:         d.planes,
		Predictor:      d.predictor,
		PointTransform: d.pointTrans,
	}
}

func (d *Decoder) expectMarker(expected int) error {
	marker, err := d.readMarker()
	if err != nil {
		return err
	}
	if marker != expected {
		return fmt.Errorf("%w: expected marker 0x%04X, got 0x%04X", ErrInvalidFormat, expected, marker)
	}
	return nil
}

func (d *Decoder) readMarker() (int, error) {
	if d.pos+2 > len(d.data) {
		return 0, io.ErrUnexpectedEOF
	}
	if d.data[d.pos] != 0xFF {
		return 0, fmt.Errorf("%w: expected marker, got 0x%02X", ErrInvalidFormat, d.data[d.pos])
	}
	d.pos++
	// Skip fill bytes
	for d.pos < len(d.data) && d.data[d.pos] == 0xFF {
		d.pos++
	}
	if d.pos >= len(d.data) {
		return 0, io.ErrUnexpectedEOF
	}
	m := 0xFF00 | int(d.data[d.pos])
	d.pos++
	return m, nil
}

// segment returns the payload of a length-prefixed marker segment.
func (d *Decoder) segment() ([]byte, error) {
	if d.pos+2 > len(d.data) {
		return nil, io.ErrUnexpectedEOF
	}
	length := int(binary.BigEndian.Uint16(d.data[d.pos:]))
	if length < 2 || d.pos+length > len(d.data) {
		return nil, fmt.Errorf("%w: segment length %d", ErrInvalidFormat, length)
	}
	seg := d.data[d.pos+2 : d.pos+length]
	d.pos += length
	return seg, nil
}

func (d *Decoder) readSOF() error {
	data, err := d.segment()
	if err != nil {
		return err
	}
	if d.compInfo != nil {
		return fmt.Errorf("%w: second frame header", ErrInvalidFormat)
	}
	if len(data) < 6 {
		return fmt.Errorf("%w: short SOF", ErrInvalidFormat)
	}
	d.precision = int(data[0])
	d.height = int(binary.BigEndian.Uint16(data[1:]))
	d.width = int(binary.BigEndian.Uint16(data[3:]))
	components := int(data[5])
	if len(data) < 6+3*components {
		return fmt.Errorf("%w: short SOF", ErrInvalidFormat)
	}
	if d.precision < 2 || d.precision > 16 {
		return fmt.Errorf("%w: precision %d", ErrUnsupported, d.precision)
	}
	if d.height == 0 || d.width == 0 {
		return fmt.Errorf("%w: DNL defined height", ErrUnsupported)
	}
	if components < 1 || components > 4 {
		return fmt.Errorf("%w: %d components", ErrUnsupported, components)
	}

	d.compInfo = make([]componentInfo, components)
	for i := 0; i < components; i++ {
		offset := 6 + i*3
		d.compInfo[i] = componentInfo{
			id:        int(data[offset]),
			hSampling: int(data[offset+1]) >> 4,
			vSampling: int(data[offset+1]) & 0x0F,
		}
		if d.compInfo[i].hSampling != 1 || d.compInfo[i].vSampling != 1 {
			return fmt.Errorf("%w: subsampled component", ErrUnsupported)
		}
	}

	slog.Debug("jpegli: SOF3 parsed",
		slog.Int("precision", d.precision),
		slog.Int("width", d.width),
		slog.Int("height", d.height),
		slog.Int("components", components))
	return nil
}

func (d *Decoder) readDHT() error {
	data, err := d.segment()
	if err != nil {
		return err
	}
	offset := 0
	for offset < len(data) {
		if offset+17 > len(data) {
			return fmt.Errorf("%w: short DHT", ErrInvalidFormat)
		}
		tableInfo := data[offset]
		tableClass := int(tableInfo >> 4) // 0 = DC, 1 = AC
		tableID := int(tableInfo & 0x0F)
		offset++

		var totalCodes int
		for i := 0; i < 16; i++ {
			totalCodes += int(data[offset+i])
		}
		if offset+16+totalCodes > len(data) {
			return fmt.Errorf("%w: short DHT", ErrInvalidFormat)
		}
		if tableClass != 0 {
			// lossless scans only use DC tables
			offset += 16 + totalCodes
			continue
		}
		if tableID >= 4 {
			return fmt.Errorf("%w: Huffman table ID %d", ErrInvalidFormat, tableID)
		}

		ht := &huffmanTable{}
		for i := 0; i < 16; i++ {
			ht.bits[i+1] = int(data[offset+i])
		}
		offset += 16
		ht.values = append([]byte(nil), data[offset:offset+totalCodes]...)
		offset += totalCodes
		ht.generate()

		slog.Debug("jpegli: DHT parsed",
			slog.Int("tableID", tableID),
			slog.Int("totalCodes", totalCodes))
		d.dcTables[tableID] = ht
	}
	return nil
}

func (d *Decoder) readDRI() error {
	data, err := d.segment()
	if err != nil {
		return err
	}
	if len(data) < 2 {
		return fmt.Errorf("%w: short DRI", ErrInvalidFormat)
	}
	d.restartInterval = int(binary.BigEndian.Uint16(data))
	return nil
}

// parseSOS reads the scan header and returns the indexes of its components.
func (d *Decoder) parseSOS(data []byte) ([]int, error) {
	if d.compInfo == nil {
		return nil, fmt.Errorf("%w: SOS before SOF", ErrInvalidFormat)
	}
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: short SOS", ErrInvalidFormat)
	}
	numComponents := int(data[0])
	if numComponents < 1 || numComponents > len(d.compInfo) || len(data) < 4+2*numComponents {
		return nil, fmt.Errorf("%w: SOS with %d components", ErrInvalidFormat, numComponents)
	}

	idx := make([]int, numComponents)
	tables := make([]int, numComponents)
	offset := 1
	for i := 0; i < numComponents; i++ {
		selector := int(data[offset])
		idx[i] = -1
		for j := range d.compInfo {
			if d.compInfo[j].id == selector {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("%w: unknown component %d in scan", ErrInvalidFormat, selector)
		}
		tables[i] = int(data[offset+1]) >> 4
		offset += 2
	}

	// Ss is the predictor, Se is unused, Al is the point transform
	d.predictor = int(data[offset])
	d.pointTrans = int(data[offset+2]) & 0x0F
	if d.predictor < 1 || d.predictor > 7 {
		return nil, fmt.Errorf("%w: predictor %d", ErrUnsupported, d.predictor)
	}
	if d.pointTrans >= d.precision {
		return nil, fmt.Errorf("%w: point transform %d", ErrInvalidFormat, d.pointTrans)
	}
	for _, t := range tables {
		if t >= len(d.dcTables) || d.dcTables[t] == nil {
			return nil, fmt.Errorf("%w: missing Huffman table %d", ErrInvalidFormat, t)
		}
	}
	d.scanTables = tables
	return idx, nil
}

// decodeScan decodes the compressed scan data
func (d *Decoder) decodeScan() error {
	seg, err := d.segment()
	if err != nil {
		return err
	}
	idx, err := d.parseSOS(seg)
	if err != nil {
		return err
	}

	if d.planes == nil {
		d.planes = make([][]int32, len(d.compInfo))
		for c := range d.planes {
			d.planes[c] = make([]int32, d.width*d.height)
		}
		d.decoded = make([]bool, len(d.compInfo))
	}

	s := &scan{
		width:      d.width,
		height:     d.height,
		predictor:  d.predictor,
		pointTrans: d.pointTrans,
		precision:  d.precision,
		restart:    d.restartInterval,
	}
	for i, c := range idx {
		s.comps = append(s.comps, &scanComponent{plane: d.planes[c], table: d.dcTables[d.scanTables[i]]})
	}

	br := newBitReader(d.data[d.pos:])
	if err := s.decode(br); err != nil {
		return err
	}
	for _, c := range idx {
		d.decoded[c] = true
	}

	// resume at the marker that ends the scan
	d.pos += br.pos
	for d.pos+1 < len(d.data) {
		if d.data[d.pos] == 0xFF && d.data[d.pos+1] != 0x00 && d.data[d.pos+1]&0xF8 != 0xD0 {
			break
		}
		d.pos++
	}
	slog.Debug("jpegli: scan decoded",
		slog.Int("predictor", d.predictor),
		slog.Int("pointTrans", d.pointTrans),
		slog.Int("components", len(idx)))
	return nil
}
