package jpegli

import "io"

// predict computes the prediction for sample x of a row (T.81 H.1.2.1).
// The first row of a restart interval uses Ra, the first column uses Rb and
// the first sample uses 2^(P-Pt-1).
func predict(predictor int, cur, prev []int, x int, firstRow bool, initial int) int {
	if firstRow {
		if x == 0 {
			return initial
		}
		return cur[x-1]
	}
	if x == 0 {
		return prev[0]
	}
	ra, rb, rc := cur[x-1], prev[x], prev[x-1]
	switch predictor {
	case 1:
		return ra // Left
	case 2:
		return rb // Above
	case 3:
		return rc // Above-left
	case 4:
		return ra + rb - rc
	case 5:
		return ra + ((rb - rc) >> 1)
	case 6:
		return rb + ((ra - rc) >> 1)
	case 7:
		return (ra + rb) >> 1
	}
	return ra
}

// difference is taken modulo 2^16 (T.81 H.1.2.2)
func difference(v, pred int) int {
	d := (v - pred) & 0xFFFF
	if d >= 0x8000 {
		d -= 0x10000
	}
	return d
}

// bitWriter writes bits to an io.Writer with byte stuffing
type bitWriter struct {
	w    io.Writer
	buf  uint32
	bits int
	out  []byte
	err  error
}

func newBitWriter(w io.Writer) *bitWriter {
	return &bitWriter{w: w, out: make([]byte, 0, 4096)}
}

func (b *bitWriter) writeBits(val, n int) {
	if n == 0 {
		return
	}
	b.buf = (b.buf << n) | uint32(val&((1<<n)-1))
	b.bits += n

	for b.bits >= 8 {
		b.bits -= 8
		byteVal := byte(b.buf >> b.bits)
		b.out = append(b.out, byteVal)
		if byteVal == 0xFF {
			b.out = append(b.out, 0x00) // Byte stuffing
		}
	}
	if len(b.out) >= 4000 {
		b.drain()
	}
}

func (b *bitWriter) drain() {
	if b.err == nil && len(b.out) > 0 {
		_, b.err = b.w.Write(b.out)
	}
	b.out = b.out[:0]
}

// flush pads the final byte with 1s.
func (b *bitWriter) flush() error {
	if b.bits > 0 {
		b.writeBits(1<<(8-b.bits)-1, 8-b.bits)
	}
	b.drain()
	return b.err
}

// bitReader reads entropy-coded bytes, removing stuffed zeros. It stops at
// the first marker and supplies zero bits past it.
type bitReader struct {
	data   []byte
	pos    int
	buf    uint32
	bits   int
	marker bool
	pad    int // zero bits supplied past the data
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (b *bitReader) fillBits() {
	for b.bits <= 24 {
		if b.marker || b.pos >= len(b.data) {
			b.buf <<= 8
			b.bits += 8
			b.pad += 8
			continue
		}
		c := b.data[b.pos]
		if c == 0xFF {
			if b.pos+1 >= len(b.data) || b.data[b.pos+1] != 0x00 {
				b.marker = true
				continue
			}
			b.pos += 2
		} else {
			b.pos++
		}
		b.buf = b.buf<<8 | uint32(c)
		b.bits += 8
	}
}

func (b *bitReader) readBit() int {
	return b.readBits(1)
}

func (b *bitReader) readBits(n int) int {
	if n == 0 {
		return 0
	}
	if b.bits < n {
		b.fillBits()
	}
	b.bits -= n
	return int((b.buf >> b.bits) & (1<<n - 1))
}

func (b *bitReader) peekBits(n int) int {
	if b.bits < n {
		b.fillBits()
	}
	return int((b.buf >> (b.bits - n)) & (1<<n - 1))
}

func (b *bitReader) consumeBits(n int) {
	b.bits -= n
}

// overrun reports whether padding bits were consumed.
func (b *bitReader) overrun() bool {
	return b.pad > b.bits
}

// restart discards the partial byte and the RSTn marker that follows.
func (b *bitReader) restart() error {
	if b.overrun() {
		return ErrTruncated
	}
	b.buf, b.bits, b.pad, b.marker = 0, 0, 0, false
	for ; b.pos+1 < len(b.data); b.pos++ {
		if b.data[b.pos] == 0xFF && b.data[b.pos+1]&0xF8 == 0xD0 {
			b.pos += 2
			return nil
		}
	}
	return ErrInvalidFormat
}

// decodeHuffman decodes a single Huffman symbol
func (b *bitReader) decodeHuffman(ht *huffmanTable) (int, error) {
	peek := b.peekBits(8)
	if lookup := ht.lookup[peek]; lookup >= 0 {
		b.consumeBits(int(lookup >> 8))
		return int(lookup & 0xFF), nil
	}
	// Slow path: decode bit by bit
	code := 0
	for l := 1; l <= 16; l++ {
		code = code<<1 | b.readBit()
		if ht.maxcode[l] >= 0 && code <= ht.maxcode[l] {
			idx := ht.valptr[l] + code - int(ht.codes[ht.valptr[l]])
			return int(ht.values[idx]), nil
		}
	}
	return 0, ErrInvalidFormat
}

// scanComponent is one component taking part in a scan.
type scanComponent struct {
	plane []int32
	table *huffmanTable
	prev  []int
	cur   []int
}

// scan codes Ns components sample-interleaved with one predictor.
type scan struct {
	width, height int
	predictor     int
	pointTrans    int
	precision     int
	restart       int // MCUs per restart interval, 0 for none
	comps         []*scanComponent
}

func (s *scan) initial() int {
	return 1 << (s.precision - s.pointTrans - 1)
}

func (s *scan) alloc() {
	for _, c := range s.comps {
		c.prev = make([]int, s.width)
		c.cur = make([]int, s.width)
	}
}

// counts gathers SSSS frequencies of the source for table optimization.
func (s *scan) counts() [17]int {
	var counts [17]int
	s.alloc()
	initial := s.initial()
	for y := 0; y < s.height; y++ {
		for _, c := range s.comps {
			row := c.plane[y*s.width:]
			for x := 0; x < s.width; x++ {
				c.cur[x] = int(row[x]) >> s.pointTrans
			}
			for x := 0; x < s.width; x++ {
				pred := predict(s.predictor, c.cur, c.prev, x, y == 0, initial)
				counts[categorize(difference(c.cur[x], pred))]++
			}
			c.prev, c.cur = c.cur, c.prev
		}
	}
	return counts
}

func (s *scan) encode(bw *bitWriter) {
	s.alloc()
	initial := s.initial()
	for y := 0; y < s.height; y++ {
		for _, c := range s.comps {
			row := c.plane[y*s.width:]
			for x := 0; x < s.width; x++ {
				c.cur[x] = int(row[x]) >> s.pointTrans
			}
		}
		for x := 0; x < s.width; x++ {
			for _, c := range s.comps {
				pred := predict(s.predictor, c.cur, c.prev, x, y == 0, initial)
				diff := difference(c.cur[x], pred)
				ssss := categorize(diff)
				bw.writeBits(int(c.table.ehufco[ssss]), c.table.ehufsi[ssss])
				if ssss > 0 && ssss < 16 {
					if diff < 0 {
						diff += 1<<ssss - 1
					}
					bw.writeBits(diff, ssss)
				}
			}
		}
		for _, c := range s.comps {
			c.prev, c.cur = c.cur, c.prev
		}
	}
}

func (s *scan) decode(br *bitReader) error {
	s.alloc()
	initial := s.initial()
	rowsPerInterval := 0
	if s.restart > 0 {
		if s.restart%s.width != 0 {
			return ErrUnsupported
		}
		rowsPerInterval = s.restart / s.width
	}
	for y := 0; y < s.height; y++ {
		firstRow := y == 0
		if rowsPerInterval > 0 && y > 0 && y%rowsPerInterval == 0 {
			if err := br.restart(); err != nil {
				return err
			}
			firstRow = true
		}
		for x := 0; x < s.width; x++ {
			for _, c := range s.comps {
				ssss, err := br.decodeHuffman(c.table)
				if err != nil {
					return err
				}
				var diff int
				switch {
				case ssss == 16:
					diff = 32768
				case ssss > 16:
					return ErrInvalidFormat
				case ssss > 0:
					diff = extend(br.readBits(ssss), ssss)
				}
				pred := predict(s.predictor, c.cur, c.prev, x, firstRow, initial)
				c.cur[x] = (pred + diff) & 0xFFFF
			}
		}
		for _, c := range s.comps {
			row := c.plane[y*s.width:]
			for x := 0; x < s.width; x++ {
				row[x] = int32(c.cur[x] << s.pointTrans)
			}
			c.prev, c.cur = c.cur, c.prev
		}
	}
	if br.overrun() {
		return ErrTruncated
	}
	return nil
}
