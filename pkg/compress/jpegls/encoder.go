package jpegls

// Markers
const (
	MarkerSOI   = 0xD8 // Start of Image
	MarkerEOI   = 0xD9 // End of Image
	MarkerSOS   = 0xDA // Start of Scan
	MarkerDRI   = 0xDD // Define Restart Interval
	MarkerAPP8  = 0xE8 // HP colour transform ("mrfx")
	MarkerSOF55 = 0xF7 // Start of Frame (JPEG-LS)
	MarkerLSE   = 0xF8 // JPEG-LS Extension (Parameters)
)

var mrfx = [4]byte{'m', 'r', 'f', 'x'}

// sink writes marker segments into a fixed-capacity buffer.
type sink struct {
	buf      []byte
	pos      int
	overflow bool
}

func (s *sink) byte(b byte) {
	if s.pos >= len(s.buf) {
		s.overflow = true
		return
	}
	s.buf[s.pos] = b
	s.pos++
}

func (s *sink) word(v int) {
	s.byte(byte(v >> 8))
	s.byte(byte(v))
}

func (s *sink) marker(m byte) {
	s.byte(0xFF)
	s.byte(m)
}

// Encode compresses the component planes described by p into dst and
// returns the number of bytes written. dst's length is the output limit;
// running past it yields CompressedBufferTooSmall.
func Encode(dst []byte, planes [][]int32, p Params) (int, ErrorCode) {
	if code := p.check(); code != OK {
		return 0, code
	}
	if !p.planesFit(planes) {
		return 0, UncompressedBufferTooSmall
	}
	ilv := p.ILV
	if p.Components == 1 {
		ilv = InterleaveNone
	}

	maxVal := p.maxVal()
	stride := p.stride()
	img := make([][]int, p.Components)
	for c := range img {
		plane := make([]int, p.Width*p.Height)
		for y := 0; y < p.Height; y++ {
			src := planes[c][y*stride : y*stride+p.Width]
			row := plane[y*p.Width:]
			for x, v := range src {
				row[x] = int(v) & maxVal
			}
		}
		img[c] = plane
	}
	if p.ColorTransform != TransformNone {
		forwardTransform(img, p.ColorTransform, p.BitsPerSample)
	}

	out := &sink{buf: dst}
	out.marker(MarkerSOI)
	if p.ColorTransform != TransformNone {
		out.marker(MarkerAPP8)
		out.word(7)
		for _, b := range mrfx {
			out.byte(b)
		}
		out.byte(byte(p.ColorTransform))
	}
	writeSOF(out, p)

	if ilv == InterleaveNone {
		for c := 0; c < p.Components; c++ {
			encodeScan(out, img, []int{c}, ilv, p)
		}
	} else {
		all := make([]int, p.Components)
		for c := range all {
			all[c] = c
		}
		encodeScan(out, img, all, ilv, p)
	}
	out.marker(MarkerEOI)

	if out.overflow {
		return 0, CompressedBufferTooSmall
	}
	return out.pos, OK
}

func writeSOF(out *sink, p Params) {
	out.marker(MarkerSOF55)
	out.word(8 + p.Components*3)
	out.byte(byte(p.BitsPerSample))
	out.word(p.Height)
	out.word(p.Width)
	out.byte(byte(p.Components))
	for c := 0; c < p.Components; c++ {
		out.byte(byte(c + 1)) // ID
		out.byte(0x11)        // H=1 V=1
		out.byte(0x00)        // Tq
	}
}

func encodeScan(out *sink, img [][]int, comps []int, ilv InterleaveMode, p Params) {
	out.marker(MarkerSOS)
	out.word(6 + len(comps)*2)
	out.byte(byte(len(comps)))
	for _, c := range comps {
		out.byte(byte(c + 1))
		out.byte(0x00) // mapping table
	}
	out.byte(byte(p.AllowedLossyError))
	out.byte(byte(ilv))
	out.byte(0x00) // point transform

	if out.overflow {
		return
	}
	bw := NewBitWriter(out.buf, out.pos)
	sc := newScanCoder(NewContextModel(p.maxVal(), p.AllowedLossyError, 0), p.Width, len(comps))
	sc.bw = bw
	sc.codeScan(img, comps, ilv, p.Height)
	bw.Flush()
	out.pos = bw.Pos()
	out.overflow = out.overflow || bw.Overflow()
}
