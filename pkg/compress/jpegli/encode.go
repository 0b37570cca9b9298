package jpegli

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Encoder holds the lossless scan options.
type Encoder struct {
	// Predictor selection (1-7, default 1)
	Predictor int
	// Point transform (0 for lossless)
	PointTransform int
}

// Encode writes f to w as a single interleaved lossless scan with an
// optimized Huffman table.
func Encode(w io.Writer, f *Frame, opts *Encoder) error {
	enc := &encoder{predictor: 1}
	if opts != nil {
		if opts.Predictor < 0 || opts.Predictor > 7 {
			return fmt.Errorf("%w: predictor %d", ErrUnsupported, opts.Predictor)
		}
		if opts.Predictor > 0 {
			enc.predictor = opts.Predictor
		}
		enc.pointTrans = opts.PointTransform
	}
	if err := f.validate(); err != nil {
		return err
	}
	if enc.pointTrans < 0 || enc.pointTrans >= f.Precision {
		return fmt.Errorf("%w: point transform %d for precision %d", ErrUnsupported, enc.pointTrans, f.Precision)
	}
	enc.f = f
	bw := bufio.NewWriter(w)
	enc.w = bw
	if err := enc.encode(); err != nil {
		return err
	}
	return bw.Flush()
}

type encoder struct {
	w          *bufio.Writer
	f          *Frame
	predictor  int
	pointTrans int
}

func (e *encoder) scan() *scan {
	s := &scan{
		width:      e.f.Width,
		height:     e.f.Height,
		predictor:  e.predictor,
		pointTrans: e.pointTrans,
		precision:  e.f.Precision,
	}
	mask := int32(1)<<e.f.Precision - 1
	for _, p := range e.f.Planes {
		plane := make([]int32, e.f.Width*e.f.Height)
		for i := range plane {
			plane[i] = p[i] & mask
		}
		s.comps = append(s.comps, &scanComponent{plane: plane})
	}
	return s
}

func (e *encoder) encode() error {
	s := e.scan()
	ht := buildOptimalTable(s.counts())
	for _, c := range s.comps {
		c.table = ht
	}

	e.writeMarker(MarkerSOI)
	e.writeSOF3()
	e.writeDHT(ht)
	e.writeSOS()
	if err := e.w.Flush(); err != nil {
		return err
	}

	bw := newBitWriter(e.w)
	s.encode(bw)
	if err := bw.flush(); err != nil {
		return err
	}
	e.writeMarker(MarkerEOI)
	return nil
}

func (e *encoder) writeMarker(marker int) {
	_ = binary.Write(e.w, binary.BigEndian, uint16(marker))
}

func (e *encoder) writeSOF3() {
	e.writeMarker(MarkerSOF3)
	n := len(e.f.Planes)
	length := 8 + 3*n
	data := make([]byte, length)
	binary.BigEndian.PutUint16(data[0:], uint16(length))
	data[2] = byte(e.f.Precision)
	binary.BigEndian.PutUint16(data[3:], uint16(e.f.Height))
	binary.BigEndian.PutUint16(data[5:], uint16(e.f.Width))
	data[7] = byte(n)
	for c := 0; c < n; c++ {
		data[8+3*c] = byte(c + 1) // Component ID
		data[9+3*c] = 0x11        // Sampling: H=1, V=1
		data[10+3*c] = 0          // Quantization table (not used in lossless)
	}
	e.w.Write(data)
}

func (e *encoder) writeDHT(ht *huffmanTable) {
	e.writeMarker(MarkerDHT)
	length := 2 + 1 + 16 + len(ht.values)
	data := make([]byte, length)
	binary.BigEndian.PutUint16(data[0:], uint16(length))
	data[2] = 0 // Table class 0 (DC), Table ID 0
	for i := 1; i <= 16; i++ {
		data[2+i] = byte(ht.bits[i])
	}
	copy(data[19:], ht.values)
	e.w.Write(data)
}

func (e *encoder) writeSOS() {
	e.writeMarker(MarkerSOS)
	n := len(e.f.Planes)
	length := 6 + 2*n
	header := make([]byte, length)
	binary.BigEndian.PutUint16(header[0:], uint16(length))
	header[2] = byte(n)
	for c := 0; c < n; c++ {
		header[3+2*c] = byte(c + 1) // Component ID
		header[4+2*c] = 0           // DC table 0
	}
	header[3+2*n] = byte(e.predictor)  // Ss
	header[4+2*n] = 0                  // Se
	header[5+2*n] = byte(e.pointTrans) // Ah=0, Al
	e.w.Write(header)
}
