package jpegli

import (
	"bytes"
	"testing"
)

func TestBitReader_ReadBits_Truncated(t *testing.T) {
	// 1 byte of data: 0xAA (1010 1010) - no stuffing needed
	br := newBitReader([]byte{0xAA})

	if val := br.readBits(4); val != 10 {
		t.Errorf("expected 10, got %d", val)
	}
	// 4 bits left, the rest is zero padding
	if val := br.readBits(8); val != 0xA0 {
		t.Errorf("Expected 0xA0 (padded), got %X", val)
	}
	if !br.overrun() {
		t.Errorf("expected overrun after reading padding")
	}
}

func TestBitReader_PeekBits_Truncated(t *testing.T) {
	br := newBitReader([]byte{0xAA})
	br.readBits(4)

	if val := br.peekBits(8); val != 0xA0 {
		t.Errorf("Expected 0xA0 (padded), got %X", val)
	}
	if br.overrun() {
		t.Errorf("peek must not consume padding")
	}
}

func TestBitReader_Stuffing(t *testing.T) {
	// FF 00 is a data byte, FF D9 ends the data
	br := newBitReader([]byte{0xFF, 0x00, 0x12, 0xFF, 0xD9})
	if val := br.readBits(16); val != 0xFF12 {
		t.Errorf("expected 0xFF12, got %X", val)
	}
	if br.overrun() {
		t.Errorf("unexpected overrun")
	}
	br.readBits(1)
	if !br.overrun() {
		t.Errorf("reading into the marker must overrun")
	}
	if br.pos != 3 {
		t.Errorf("reader should stop at the marker, pos=%d", br.pos)
	}
}

func TestBitWriter_StuffingAndPadding(t *testing.T) {
	var buf bytes.Buffer
	bw := newBitWriter(&buf)
	bw.writeBits(0xFF, 8)
	bw.writeBits(0x2, 3)
	if err := bw.flush(); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xFF, 0x00, 0x5F}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("got % X, want % X", buf.Bytes(), want)
	}
}

func TestOptimalTable(t *testing.T) {
	counts := [17]int{100, 50, 25, 12, 6, 3, 1}
	ht := buildOptimalTable(counts)
	// every used symbol gets a code, frequent symbols get shorter ones
	for sym, n := range counts {
		if n > 0 && ht.ehufsi[sym] == 0 {
			t.Errorf("symbol %d has no code", sym)
		}
	}
	if ht.ehufsi[0] > ht.ehufsi[6] {
		t.Errorf("frequent symbol longer than rare one: %d > %d", ht.ehufsi[0], ht.ehufsi[6])
	}
	for _, size := range ht.sizes {
		if size > 16 {
			t.Errorf("code longer than 16 bits")
		}
	}
	// no code may be all ones
	for k, code := range ht.codes {
		if int(code) == 1<<ht.sizes[k]-1 {
			t.Errorf("all-ones code for symbol %d", ht.values[k])
		}
	}
}

func TestOptimalTableSingleSymbol(t *testing.T) {
	ht := buildOptimalTable([17]int{0, 0, 0, 0, 0, 42})
	if ht.ehufsi[5] != 1 || ht.ehufco[5] != 0 {
		t.Errorf("single symbol: size %d code %d", ht.ehufsi[5], ht.ehufco[5])
	}
}
