package jpegls

// BitWriter appends bits to a fixed-capacity buffer. After a 0xFF byte the
// next byte carries only seven bits so that no marker can appear in scan data.
type BitWriter struct {
	buf      []byte
	pos      int
	bits     uint64
	nBits    int
	lastFF   bool
	overflow bool
}

// NewBitWriter writes into dst starting at pos.
func NewBitWriter(dst []byte, pos int) *BitWriter {
	return &BitWriter{buf: dst, pos: pos}
}

func (bw *BitWriter) emit(b byte) {
	if bw.pos >= len(bw.buf) {
		bw.overflow = true
		return
	}
	bw.buf[bw.pos] = b
	bw.pos++
}

// WriteBits writes the n low bits of val, n <= 32.
func (bw *BitWriter) WriteBits(val uint32, n int) {
	if n == 0 {
		return
	}
	bw.bits = (bw.bits << n) | (uint64(val) & (1<<n - 1))
	bw.nBits += n
	for {
		width, mask := 8, byte(0xFF)
		if bw.lastFF {
			width, mask = 7, 0x7F
		}
		if bw.nBits < width {
			return
		}
		bw.nBits -= width
		b := byte(bw.bits>>bw.nBits) & mask
		bw.emit(b)
		bw.lastFF = b == 0xFF
	}
}

// WriteBit writes a single bit.
func (bw *BitWriter) WriteBit(bit uint32) {
	bw.WriteBits(bit, 1)
}

// WriteZeros writes n zero bits.
func (bw *BitWriter) WriteZeros(n int) {
	for n > 32 {
		bw.WriteBits(0, 32)
		n -= 32
	}
	bw.WriteBits(0, n)
}

// Flush pads the last byte with zero bits. A trailing 0xFF gets a zero byte
// so the following marker is unambiguous.
func (bw *BitWriter) Flush() {
	width := 8
	if bw.lastFF {
		width = 7
	}
	if bw.nBits > 0 {
		bw.WriteBits(0, width-bw.nBits)
	}
	if bw.lastFF {
		bw.emit(0)
		bw.lastFF = false
	}
}

// Pos is the byte offset after the last complete byte.
func (bw *BitWriter) Pos() int { return bw.pos }

// Overflow reports whether any byte fell outside the buffer.
func (bw *BitWriter) Overflow() bool { return bw.overflow }

// WriteGolomb writes mapped value val with Golomb parameter k, escaping to
// a qbpp-bit literal once the unary prefix reaches limit-qbpp-1.
func (bw *BitWriter) WriteGolomb(k int, val uint32, limit, qbpp int) {
	q := int(val >> k)
	if q < limit-qbpp-1 {
		bw.WriteZeros(q)
		bw.WriteBit(1)
		bw.WriteBits(val&(1<<k-1), k)
		return
	}
	bw.WriteZeros(limit - qbpp - 1)
	bw.WriteBit(1)
	bw.WriteBits((val-1)&(1<<qbpp-1), qbpp)
}

// BitReader reads scan data written by BitWriter. Reading past the end
// yields zero bits.
type BitReader struct {
	data   []byte
	pos    int
	bits   uint64
	nBits  int
	lastFF bool
}

// NewBitReader reads the scan data in data.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

func (br *BitReader) fill() {
	for br.nBits <= 56 {
		var b byte
		if br.pos < len(br.data) {
			b = br.data[br.pos]
		}
		br.pos++
		if br.lastFF {
			br.bits = br.bits<<7 | uint64(b&0x7F)
			br.nBits += 7
		} else {
			br.bits = br.bits<<8 | uint64(b)
			br.nBits += 8
		}
		br.lastFF = b == 0xFF
	}
}

// ReadBits reads n bits, n <= 32.
func (br *BitReader) ReadBits(n int) uint32 {
	if n == 0 {
		return 0
	}
	if br.nBits < n {
		br.fill()
	}
	br.nBits -= n
	return uint32(br.bits>>br.nBits) & uint32(1<<n-1)
}

// ReadBit reads a single bit.
func (br *BitReader) ReadBit() uint32 {
	return br.ReadBits(1)
}

// Exhausted reports whether more bytes were consumed than were supplied.
func (br *BitReader) Exhausted() bool {
	return br.pos-br.nBits/8 > len(br.data)+1
}

// ReadGolomb reads a value written by WriteGolomb. ok is false when the
// unary prefix exceeds limit.
func (br *BitReader) ReadGolomb(k, limit, qbpp int) (uint32, bool) {
	q := 0
	for br.ReadBit() == 0 {
		q++
		if q > limit {
			return 0, false
		}
	}
	if q >= limit-qbpp-1 {
		return br.ReadBits(qbpp) + 1, true
	}
	return uint32(q)<<k | br.ReadBits(k), true
}
