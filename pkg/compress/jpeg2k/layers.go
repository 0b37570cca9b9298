package jpeg2k

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Tile data layout:
//
//	top:u8 { shift:u8 length:u32 zstd[length] } per layer
//
// top is the magnitude bit length of the largest quantized coefficient.
// Layer i carries bits [shift_i, shift_{i-1}) of every coefficient magnitude,
// with shift_{-1} = top. A coefficient that is still zero before the layer is
// written as a signed varint so its sign travels with its first set bit;
// significant coefficients carry unsigned refinement bits.

type layer struct {
	shift   int
	payload []byte // zstd frame, empty when the layer adds nothing
}

func mustNewZstdEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(
		nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		zstd.WithLowerEncoderMem(true),
	)
	if err != nil {
		panic(err)
	}
	return enc
}

func mustNewZstdDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(
		nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
	)
	if err != nil {
		panic(err)
	}
	return dec
}

var zstdEncPool = sync.Pool{
	New: func() any {
		return mustNewZstdEncoder()
	},
}

var zstdDecPool = sync.Pool{
	New: func() any {
		return mustNewZstdDecoder()
	},
}

func compressZstd(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	enc := zstdEncPool.Get().(*zstd.Encoder)
	out := enc.EncodeAll(data, nil)
	zstdEncPool.Put(enc)
	return out
}

func decompressZstd(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := zstdDecPool.Get().(*zstd.Decoder)
	out, err := dec.DecodeAll(data, nil)
	zstdDecPool.Put(dec)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

func abs32(v int32) uint32 {
	if v < 0 {
		return uint32(-v)
	}
	return uint32(v)
}

// magnitudeBits returns the bit length of the largest coefficient magnitude.
func magnitudeBits(planes [][]int32) int {
	var m uint32
	for _, p := range planes {
		for _, v := range p {
			m = max(m, abs32(v))
		}
	}
	return bits.Len32(m)
}

// appendLayer appends the varint refinement of bits [shift, prev).
func appendLayer(dst []byte, planes [][]int32, prev, shift int) []byte {
	mask := uint32(1)<<uint(prev-shift) - 1
	for _, p := range planes {
		for _, q := range p {
			m := abs32(q)
			r := (m >> uint(shift)) & mask
			if m>>uint(prev) != 0 {
				dst = binary.AppendUvarint(dst, uint64(r))
				continue
			}
			v := int64(r)
			if q < 0 {
				v = -v
			}
			dst = binary.AppendVarint(dst, v)
		}
	}
	return dst
}

// packLayers splits quantized planes into one layer per rate. A rate is a
// compression ratio against rawBytes; each layer takes the lowest shift whose
// cumulative size meets its target. A zero rate takes every remaining bit.
func packLayers(planes [][]int32, rates []float64, rawBytes int, em EventManager) (int, []layer) {
	top := magnitudeBits(planes)
	prev, total := top, 0
	layers := make([]layer, 0, len(rates))
	var buf []byte
	for i, rate := range rates {
		best := layer{shift: prev}
		switch {
		case prev == 0:
		case rate == 0:
			buf = appendLayer(buf[:0], planes, prev, 0)
			best = layer{shift: 0, payload: compressZstd(buf)}
		default:
			target := int(float64(rawBytes) / rate)
			for s := prev - 1; s >= 0; s-- {
				buf = appendLayer(buf[:0], planes, prev, s)
				z := compressZstd(buf)
				if total+len(z) > target {
					break
				}
				best = layer{shift: s, payload: z}
			}
			if best.shift == prev {
				em.warnf("layer %d: rate %.1f leaves no room for additional precision", i, rate)
			}
		}
		total += len(best.payload)
		em.infof("layer %d: rate %.1f, shift %d, %d bytes", i, rate, best.shift, total)
		prev = best.shift
		layers = append(layers, best)
	}
	return top, layers
}

func appendTile(dst []byte, top int, layers []layer) []byte {
	dst = append(dst, byte(top))
	for _, l := range layers {
		dst = append(dst, byte(l.shift))
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(l.payload)))
		dst = append(dst, l.payload...)
	}
	return dst
}

func parseTile(data []byte, numLayers int) (int, []layer, error) {
	if len(data) < 1 {
		return 0, nil, fmt.Errorf("%w: empty tile", ErrInvalidFormat)
	}
	top := int(data[0])
	if top > 31 {
		return 0, nil, fmt.Errorf("%w: magnitude of %d bits", ErrInvalidFormat, top)
	}
	pos := 1
	layers := make([]layer, 0, numLayers)
	for i := 0; i < numLayers; i++ {
		if pos+5 > len(data) {
			return 0, nil, fmt.Errorf("%w: layer %d truncated", ErrInvalidFormat, i)
		}
		l := layer{shift: int(data[pos])}
		n := int(binary.BigEndian.Uint32(data[pos+1:]))
		pos += 5
		if n > len(data)-pos {
			return 0, nil, fmt.Errorf("%w: layer %d length %d", ErrInvalidFormat, i, n)
		}
		l.payload = data[pos : pos+n]
		pos += n
		layers = append(layers, l)
	}
	return top, layers, nil
}

// unpackLayers accumulates layers into zeroed planes and returns the shift
// still missing from every magnitude.
func unpackLayers(planes [][]int32, top int, layers []layer) (int, error) {
	prev := top
	for li, l := range layers {
		if l.shift > prev || l.shift < 0 {
			return 0, fmt.Errorf("%w: layer %d shift %d after %d", ErrInvalidFormat, li, l.shift, prev)
		}
		if l.shift == prev {
			continue
		}
		raw, err := decompressZstd(l.payload)
		if err != nil {
			return 0, fmt.Errorf("%w: layer %d: %v", ErrInvalidFormat, li, err)
		}
		k := uint(prev - l.shift)
		limit := int64(1) << k
		pos := 0
		for _, p := range planes {
			for i, v := range p {
				if v != 0 {
					r, n := binary.Uvarint(raw[pos:])
					if n <= 0 || r >= uint64(limit) {
						return 0, fmt.Errorf("%w: layer %d refinement", ErrInvalidFormat, li)
					}
					pos += n
					m := int64(abs32(v))<<k | int64(r)
					if v < 0 {
						m = -m
					}
					p[i] = int32(m)
					continue
				}
				r, n := binary.Varint(raw[pos:])
				if n <= 0 || r >= limit || r <= -limit {
					return 0, fmt.Errorf("%w: layer %d significance", ErrInvalidFormat, li)
				}
				pos += n
				p[i] = int32(r)
			}
		}
		if pos != len(raw) {
			return 0, fmt.Errorf("%w: layer %d has %d trailing bytes", ErrInvalidFormat, li, len(raw)-pos)
		}
		prev = l.shift
	}
	return prev, nil
}

// reconstruct returns the midpoint of the magnitude interval of v with shift
// low bits missing, in quantizer units.
func reconstruct(v int32, shift int, midpoint bool) float64 {
	if v == 0 {
		return 0
	}
	m := float64(abs32(v))
	if midpoint || shift > 0 {
		m += 0.5
	}
	m = math.Ldexp(m, shift)
	if v < 0 {
		return -m
	}
	return m
}
