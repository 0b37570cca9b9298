package jpegls

import "encoding/binary"

// presets carried by an LSE type 1 segment; zero means default
type presets struct {
	maxVal, t1, t2, t3, reset int
}

type parser struct {
	src     []byte
	pos     int
	p       Params
	ids     []byte
	presets presets
	haveSOF bool
}

func (ps *parser) u8() (int, bool) {
	if ps.pos >= len(ps.src) {
		return 0, false
	}
	v := ps.src[ps.pos]
	ps.pos++
	return int(v), true
}

func (ps *parser) u16() (int, bool) {
	if ps.pos+2 > len(ps.src) {
		return 0, false
	}
	v := binary.BigEndian.Uint16(ps.src[ps.pos:])
	ps.pos += 2
	return int(v), true
}

// nextMarker skips fill bytes and returns the marker code.
func (ps *parser) nextMarker() (byte, ErrorCode) {
	b, ok := ps.u8()
	if !ok {
		return 0, InvalidCompressedData
	}
	if b != 0xFF {
		return 0, InvalidCompressedData
	}
	for {
		b, ok = ps.u8()
		if !ok {
			return 0, InvalidCompressedData
		}
		if b != 0xFF {
			return byte(b), OK
		}
	}
}

// segment returns the payload of a length-prefixed marker segment.
func (ps *parser) segment() ([]byte, ErrorCode) {
	n, ok := ps.u16()
	if !ok || n < 2 || ps.pos+n-2 > len(ps.src) {
		return nil, InvalidCompressedData
	}
	seg := ps.src[ps.pos : ps.pos+n-2]
	ps.pos += n - 2
	return seg, OK
}

func (ps *parser) readSOF(seg []byte) ErrorCode {
	if ps.haveSOF {
		return InvalidCompressedData
	}
	if len(seg) < 6 {
		return InvalidCompressedData
	}
	ps.p.BitsPerSample = int(seg[0])
	ps.p.Height = int(binary.BigEndian.Uint16(seg[1:]))
	ps.p.Width = int(binary.BigEndian.Uint16(seg[3:]))
	ps.p.Components = int(seg[5])
	if len(seg) < 6+3*ps.p.Components {
		return InvalidCompressedData
	}
	if ps.p.Height == 0 {
		// height defined by a DNL marker
		return ParameterValueNotSupported
	}
	if ps.p.Components < 1 || ps.p.Components > 4 {
		return ImageTypeNotSupported
	}
	if ps.p.BitsPerSample < 1 || ps.p.BitsPerSample > 16 {
		return ParameterValueNotSupported
	}
	ps.ids = make([]byte, ps.p.Components)
	for c := range ps.ids {
		ps.ids[c] = seg[6+3*c]
	}
	ps.haveSOF = true
	return OK
}

func (ps *parser) readLSE(seg []byte) ErrorCode {
	if len(seg) < 1 {
		return InvalidCompressedData
	}
	if seg[0] != 1 {
		// mapping tables and oversize dimensions
		return ParameterValueNotSupported
	}
	if len(seg) < 11 {
		return InvalidCompressedData
	}
	ps.presets = presets{
		maxVal: int(binary.BigEndian.Uint16(seg[1:])),
		t1:     int(binary.BigEndian.Uint16(seg[3:])),
		t2:     int(binary.BigEndian.Uint16(seg[5:])),
		t3:     int(binary.BigEndian.Uint16(seg[7:])),
		reset:  int(binary.BigEndian.Uint16(seg[9:])),
	}
	return OK
}

func (ps *parser) readAPP8(seg []byte) ErrorCode {
	if len(seg) == 5 && [4]byte(seg[:4]) == mrfx {
		t := ColorTransform(seg[4])
		if t > TransformHP3 {
			return UnsupportedColorTransform
		}
		ps.p.ColorTransform = t
	}
	return OK
}

// scan header: component indexes, NEAR and interleave mode
func (ps *parser) readSOS(seg []byte) ([]int, ErrorCode) {
	if !ps.haveSOF {
		return nil, InvalidCompressedData
	}
	if len(seg) < 1 {
		return nil, InvalidCompressedData
	}
	ns := int(seg[0])
	if ns < 1 || ns > ps.p.Components || len(seg) < 1+2*ns+3 {
		return nil, InvalidCompressedData
	}
	comps := make([]int, ns)
	for i := range comps {
		id := seg[1+2*i]
		comps[i] = -1
		for c, cid := range ps.ids {
			if cid == id {
				comps[i] = c
			}
		}
		if comps[i] < 0 {
			return nil, InvalidCompressedData
		}
		if seg[2+2*i] != 0 {
			// mapping table selector
			return nil, ParameterValueNotSupported
		}
	}
	tail := seg[1+2*ns:]
	ps.p.AllowedLossyError = int(tail[0])
	ps.p.ILV = InterleaveMode(tail[1])
	if tail[2] != 0 {
		// point transform
		return nil, ParameterValueNotSupported
	}
	if ps.p.ILV > InterleaveSample || (ns > 1 && ps.p.ILV == InterleaveNone) {
		return nil, InvalidCompressedData
	}
	if ps.p.AllowedLossyError > ps.maxVal()/2 {
		return nil, InvalidCompressedData
	}
	return comps, OK
}

func (ps *parser) maxVal() int {
	if ps.presets.maxVal > 0 {
		return ps.presets.maxVal
	}
	return ps.p.maxVal()
}

// scanEnd finds the first marker after the entropy-coded data at pos.
func scanEnd(src []byte, pos int) int {
	for i := pos; i+1 < len(src); i++ {
		if src[i] == 0xFF && src[i+1] >= 0x80 {
			return i
		}
	}
	return len(src)
}

// ReadHeader parses the stream up to its first scan header.
func ReadHeader(src []byte) (Params, ErrorCode) {
	ps := &parser{src: src}
	if m, code := ps.nextMarker(); code != OK || m != MarkerSOI {
		return Params{}, InvalidCompressedData
	}
	for {
		m, code := ps.nextMarker()
		if code != OK {
			return Params{}, code
		}
		if m == MarkerEOI {
			return Params{}, InvalidCompressedData
		}
		seg, code := ps.segment()
		if code != OK {
			return Params{}, code
		}
		if m == MarkerSOS {
			if _, code = ps.readSOS(seg); code != OK {
				return Params{}, code
			}
			return ps.p, OK
		}
		if code = ps.header(m, seg); code != OK {
			return Params{}, code
		}
	}
}

// header handles every segment other than SOS and EOI.
func (ps *parser) header(m byte, seg []byte) ErrorCode {
	switch {
	case m == MarkerSOF55:
		return ps.readSOF(seg)
	case m == MarkerLSE:
		return ps.readLSE(seg)
	case m == MarkerAPP8:
		return ps.readAPP8(seg)
	case m == MarkerDRI:
		return ParameterValueNotSupported
	case m >= 0xC0 && m <= 0xCF && m != 0xC4 && m != 0xC8 && m != 0xCC:
		// another JPEG process
		return InvalidCompressedData
	}
	return OK
}

// Decode decompresses src into planes, one per component, each holding
// Height rows of stride samples (0 means Width). It returns the stream
// parameters.
func Decode(src []byte, planes [][]int32, stride int) (Params, ErrorCode) {
	ps := &parser{src: src}
	if m, code := ps.nextMarker(); code != OK || m != MarkerSOI {
		return Params{}, InvalidCompressedData
	}

	var img [][]int
	decoded := make([]bool, 4)
	for {
		m, code := ps.nextMarker()
		if code != OK {
			return Params{}, code
		}
		if m == MarkerEOI {
			break
		}
		seg, code := ps.segment()
		if code != OK {
			return Params{}, code
		}
		if m != MarkerSOS {
			if code = ps.header(m, seg); code != OK {
				return Params{}, code
			}
			continue
		}

		comps, code := ps.readSOS(seg)
		if code != OK {
			return Params{}, code
		}
		p := ps.p
		if img == nil {
			p.Stride = stride
			if code = p.check(); code != OK {
				return Params{}, code
			}
			if !p.planesFit(planes) {
				return Params{}, UncompressedBufferTooSmall
			}
			img = make([][]int, p.Components)
			for c := range img {
				img[c] = make([]int, p.Width*p.Height)
			}
		}

		end := scanEnd(src, ps.pos)
		br := NewBitReader(src[ps.pos:end])
		cm := NewContextModel(ps.maxVal(), p.AllowedLossyError, ps.presets.reset)
		cm.withThresholds(ps.presets.t1, ps.presets.t2, ps.presets.t3)
		sc := newScanCoder(cm, p.Width, len(comps))
		sc.br = br
		sc.codeScan(img, comps, p.ILV, p.Height)
		if sc.failed || br.Exhausted() {
			return Params{}, InvalidCompressedData
		}
		for _, c := range comps {
			decoded[c] = true
		}
		ps.pos = end
	}

	for _, b := range src[ps.pos:] {
		if b != 0 {
			return Params{}, TooMuchCompressedData
		}
	}
	if img == nil {
		return Params{}, InvalidCompressedData
	}
	p := ps.p
	p.Stride = stride
	for c := 0; c < p.Components; c++ {
		if !decoded[c] {
			return Params{}, InvalidCompressedData
		}
	}
	if p.ColorTransform != TransformNone {
		if p.Components != 3 {
			return Params{}, UnsupportedColorTransform
		}
		inverseTransform(img, p.ColorTransform, p.BitsPerSample)
	}

	s := p.stride()
	for c := 0; c < p.Components; c++ {
		for y := 0; y < p.Height; y++ {
			dst := planes[c][y*s : y*s+p.Width]
			for x, v := range img[c][y*p.Width : (y+1)*p.Width] {
				dst[x] = int32(v)
			}
		}
	}
	return p, OK
}
