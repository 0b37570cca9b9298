package jpegli

import (
	"bytes"
	"errors"
	"testing"
)

func gradientFrame(width, height, comps, precision int) *Frame {
	mask := int32(1)<<precision - 1
	f := &Frame{Width: width, Height: height, Precision: precision}
	seed := uint32(7)
	for c := 0; c < comps; c++ {
		plane := make([]int32, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				seed = seed*1103515245 + 12345
				v := int32(x*3+y*5+c*17) + int32(seed>>16)%5
				if y == height/2 {
					v = mask // a row at full scale forces large differences
				}
				plane[y*width+x] = v & mask
			}
		}
		f.Planes = append(f.Planes, plane)
	}
	return f
}

func roundTrip(t *testing.T, f *Frame, opts *Encoder) *Frame {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(&buf, f, opts); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	t.Logf("Encoded size: %d bytes", buf.Len())
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Width != f.Width || decoded.Height != f.Height || decoded.Precision != f.Precision {
		t.Fatalf("Dimension mismatch: got %dx%d/%d", decoded.Width, decoded.Height, decoded.Precision)
	}
	if decoded.Components() != f.Components() {
		t.Fatalf("component mismatch: got %d, want %d", decoded.Components(), f.Components())
	}
	return decoded
}

func countMismatches(t *testing.T, got, want *Frame, shift int) {
	t.Helper()
	mismatchCount := 0
	for c := range want.Planes {
		for i, v := range want.Planes[c] {
			w := v >> shift << shift
			if got.Planes[c][i] != w {
				if mismatchCount == 0 {
					t.Errorf("First mismatch at component %d sample %d: orig=%d, dec=%d", c, i, w, got.Planes[c][i])
				}
				mismatchCount++
			}
		}
	}
	if mismatchCount > 0 {
		t.Errorf("Total mismatches: %d", mismatchCount)
	}
}

func TestRoundTripPrecisions(t *testing.T) {
	for _, precision := range []int{2, 8, 12, 16} {
		f := gradientFrame(64, 48, 1, precision)
		decoded := roundTrip(t, f, nil)
		countMismatches(t, decoded, f, 0)
	}
}

func TestRoundTripPredictors(t *testing.T) {
	for predictor := 1; predictor <= 7; predictor++ {
		f := gradientFrame(33, 17, 1, 12)
		decoded := roundTrip(t, f, &Encoder{Predictor: predictor})
		if decoded.Predictor != predictor {
			t.Errorf("predictor = %d, want %d", decoded.Predictor, predictor)
		}
		countMismatches(t, decoded, f, 0)
	}
}

func TestRoundTripColor(t *testing.T) {
	f := gradientFrame(40, 30, 3, 8)
	decoded := roundTrip(t, f, &Encoder{Predictor: 6})
	countMismatches(t, decoded, f, 0)
}

func TestRoundTripPointTransform(t *testing.T) {
	f := gradientFrame(32, 32, 1, 16)
	decoded := roundTrip(t, f, &Encoder{Predictor: 1, PointTransform: 3})
	if decoded.PointTransform != 3 {
		t.Errorf("point transform = %d", decoded.PointTransform)
	}
	countMismatches(t, decoded, f, 3)
}

// TestRoundTrip16Wrap covers differences of exactly 32768 (SSSS 16).
func TestRoundTrip16Wrap(t *testing.T) {
	f := &Frame{Width: 4, Height: 2, Precision: 16, Planes: [][]int32{{0, 32768, 0, 65535, 65535, 0, 32768, 1}}}
	decoded := roundTrip(t, f, nil)
	countMismatches(t, decoded, f, 0)
}

func TestDecodeHeader(t *testing.T) {
	f := gradientFrame(20, 10, 3, 12)
	var buf bytes.Buffer
	if err := Encode(&buf, f, &Encoder{Predictor: 7}); err != nil {
		t.Fatal(err)
	}
	h, err := DecodeHeader(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	want := Header{Width: 20, Height: 10, Precision: 12, Components: 3, Predictor: 7}
	if h != want {
		t.Errorf("header = %+v, want %+v", h, want)
	}
}

func TestEncodeRejects(t *testing.T) {
	f := gradientFrame(8, 8, 1, 8)
	if err := Encode(&bytes.Buffer{}, f, &Encoder{Predictor: 9}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("predictor 9: %v", err)
	}
	if err := Encode(&bytes.Buffer{}, f, &Encoder{PointTransform: 8}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("point transform 8: %v", err)
	}
	bad := &Frame{Width: 8, Height: 8, Precision: 17, Planes: f.Planes}
	if err := Encode(&bytes.Buffer{}, bad, nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("precision 17: %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	f := gradientFrame(64, 64, 1, 16)
	var buf bytes.Buffer
	if err := Encode(&buf, f, nil); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	if _, err := Decode(bytes.NewReader(data[:len(data)/2])); err == nil {
		t.Errorf("expected error for truncated stream")
	}
	if _, err := Decode(bytes.NewReader([]byte{0x00, 0x01})); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("garbage: %v", err)
	}
}

func TestDecodeRestartIntervals(t *testing.T) {
	// hand-built stream: one component, 2x2, 8 bits, restart every row
	f := &Frame{Width: 2, Height: 2, Precision: 8, Planes: [][]int32{{10, 12, 20, 21}}}
	ht := buildOptimalTable([17]int{1, 1, 1, 1, 1, 1, 1, 1, 1})

	var buf bytes.Buffer
	w := func(b ...byte) { buf.Write(b) }
	w(0xFF, 0xD8)
	w(0xFF, 0xC3, 0x00, 0x0B, 8, 0, 2, 0, 2, 1, 1, 0x11, 0)
	dht := []byte{0x00}
	for i := 1; i <= 16; i++ {
		dht = append(dht, byte(ht.bits[i]))
	}
	dht = append(dht, ht.values...)
	w(0xFF, 0xC4, 0, byte(len(dht)+2))
	w(dht...)
	w(0xFF, 0xDD, 0, 4, 0, 2)
	w(0xFF, 0xDA, 0, 8, 1, 1, 0, 1, 0, 0)

	row := func(a, b int) {
		bw := newBitWriter(&buf)
		for _, d := range []int{a - 128, b - a} {
			s := categorize(d)
			bw.writeBits(int(ht.ehufco[s]), ht.ehufsi[s])
			if s > 0 {
				if d < 0 {
					d += 1<<s - 1
				}
				bw.writeBits(d, s)
			}
		}
		if err := bw.flush(); err != nil {
			t.Fatal(err)
		}
	}
	row(10, 12)
	w(0xFF, 0xD0)
	row(20, 21)
	w(0xFF, 0xD9)

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	countMismatches(t, decoded, f, 0)
}
