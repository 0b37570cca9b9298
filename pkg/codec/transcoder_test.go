package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/jpfielding/pixeldata.go/pkg/compress/jpeg2k"
	"github.com/jpfielding/pixeldata.go/pkg/dicom/transfer"
	"github.com/jpfielding/pixeldata.go/pkg/logging"
	"github.com/jpfielding/pixeldata.go/pkg/pixel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type imageSpec struct {
	w, h   int
	spp    int
	ba, bs int
	signed bool
	planar bool
	photo  pixel.Photometric
}

func mono(ba, bs int) imageSpec {
	return imageSpec{w: 64, h: 64, spp: 1, ba: ba, bs: bs, photo: pixel.Monochrome2}
}

func rgb(ba, bs int, planar bool) imageSpec {
	return imageSpec{w: 64, h: 64, spp: 3, ba: ba, bs: bs, planar: planar, photo: pixel.RGB}
}

func (s imageSpec) String() string {
	sign := "u"
	if s.signed {
		sign = "s"
	}
	layout := "interleaved"
	if s.planar {
		layout = "planar"
	}
	return fmt.Sprintf("%s/%d%s/%d/%s", s.photo, s.bs, sign, s.ba, layout)
}

func (s imageSpec) layout() pixel.Layout {
	return pixel.Layout{
		BytesPerSample:  s.ba / 8,
		Signed:          s.signed,
		BitsStored:      s.bs,
		HighBit:         s.bs - 1,
		Planar:          s.planar,
		SamplesPerPixel: s.spp,
		PixelCount:      s.w * s.h,
	}
}

// rawFrame fills a frame with a smooth field of stored units plus a little
// noise, so every lossless engine stays well under the native size.
func rawFrame(s imageSpec, seed uint32) []byte {
	l := s.layout()
	out := make([]byte, l.FrameBytes())
	mask := uint32(1)<<s.bs - 1
	step := max(1, (1<<s.bs)/256)
	x := seed*2654435761 | 1
	for c := 0; c < s.spp; c++ {
		for p := 0; p < l.PixelCount; p++ {
			px, py := p%s.w, p/s.w
			x ^= x << 13
			x ^= x >> 17
			x ^= x << 5
			var v uint32
			if s.bs == 1 {
				v = uint32((px/8 + py/8 + c) & 1)
			} else {
				v = uint32((px+2*py+16*c)*step) + x%4
			}
			v &= mask
			o := p*s.spp + c
			if s.planar {
				o = c*l.PixelCount + p
			}
			if s.ba == 8 {
				out[o] = byte(v)
			} else {
				binary.LittleEndian.PutUint16(out[2*o:], uint16(v))
			}
		}
	}
	return out
}

func newNative(t *testing.T, s imageSpec, frames ...[]byte) *pixel.Buffer {
	t.Helper()
	b := pixel.NewBuffer(transfer.ExplicitVRLittleEndian)
	b.Width, b.Height = s.w, s.h
	b.SamplesPerPixel = s.spp
	b.BitsAllocated, b.BitsStored, b.HighBit = s.ba, s.bs, s.bs-1
	if s.signed {
		b.PixelRepresentation = 1
	}
	if s.planar {
		b.PlanarConfiguration = 1
	}
	b.Photometric = s.photo
	for _, f := range frames {
		require.NoError(t, b.AddFrame(f))
	}
	return b
}

func encode(t *testing.T, src *pixel.Buffer, syntax transfer.Syntax, p Params) *pixel.Buffer {
	t.Helper()
	dst := src.Shell(syntax)
	require.NoError(t, NewTranscoder(nil).Encode(context.Background(), src, dst, p))
	return dst
}

func decode(t *testing.T, src *pixel.Buffer, p Params) *pixel.Buffer {
	t.Helper()
	dst := src.Shell(transfer.ExplicitVRLittleEndian)
	require.NoError(t, NewTranscoder(nil).Decode(context.Background(), src, dst, p))
	return dst
}

func frames(t *testing.T, b *pixel.Buffer) [][]byte {
	t.Helper()
	var out [][]byte
	for i := 0; i < b.NumberOfFrames(); i++ {
		f, err := b.GetFrameDataU8(i)
		require.NoError(t, err)
		out = append(out, f)
	}
	b.Unload()
	return out
}

func TestRoundTripLossless(t *testing.T) {
	syntaxes := []transfer.Syntax{
		transfer.JPEGLossless,
		transfer.JPEGLosslessFirstOrder,
		transfer.JPEGLSLossless,
		transfer.JPEG2000Lossless,
	}
	var specs []imageSpec
	for _, bits := range []int{1, 8, 12, 16} {
		ba := 8
		if bits > 8 {
			ba = 16
		}
		for _, signed := range []bool{false, true} {
			for _, s := range []imageSpec{mono(ba, bits), rgb(ba, bits, false), rgb(ba, bits, true)} {
				s.signed = signed
				specs = append(specs, s)
			}
		}
	}

	for _, syntax := range syntaxes {
		for _, s := range specs {
			t.Run(syntax.Name()+"/"+s.String(), func(t *testing.T) {
				want := [][]byte{rawFrame(s, 1), rawFrame(s, 2)}
				src := newNative(t, s, want...)

				enc := encode(t, src, syntax, nil)
				require.Equal(t, 2, enc.NumberOfFrames())
				assert.False(t, enc.IsLossy)
				for i := 0; i < 2; i++ {
					size, err := enc.FrameSize(i)
					require.NoError(t, err)
					assert.Less(t, size, src.UncompressedFrameSize())
				}

				dec := decode(t, enc, nil)
				assert.Equal(t, s.photo, dec.Photometric)
				assert.Equal(t, s.ba, dec.BitsAllocated)
				assert.Equal(t, want, frames(t, dec))
			})
		}
	}
}

func TestRoundTripJ2KSigned(t *testing.T) {
	s := mono(16, 12)
	s.signed = true
	l := s.layout()
	plane := make([]int32, l.PixelCount)
	for p := range plane {
		plane[p] = int32((p%s.w)*60 - 2000 + p/s.w)
	}
	raw, err := pixel.Unpack([][]int32{plane}, l)
	require.NoError(t, err)
	src := newNative(t, s, raw)

	p := NewJ2KParams().WithEncodeSignedPixelValuesAsUnsigned(false)
	enc := encode(t, src, transfer.JPEG2000Lossless, p)
	f, err := enc.GetFrameDataU8(0)
	require.NoError(t, err)
	h, err := jpeg2k.DecodeHeader(f)
	require.NoError(t, err)
	assert.True(t, h.Components[0].Signed)
	assert.Equal(t, 12, h.Precision())

	dec := decode(t, enc, p)
	assert.Equal(t, [][]byte{raw}, frames(t, dec))

	// unsigned marshaling keeps the stored units as they are
	enc = encode(t, src, transfer.JPEG2000Lossless, nil)
	f, err = enc.GetFrameDataU8(0)
	require.NoError(t, err)
	h, err = jpeg2k.DecodeHeader(f)
	require.NoError(t, err)
	assert.False(t, h.Components[0].Signed)
	assert.Equal(t, [][]byte{raw}, frames(t, decode(t, enc, nil)))
}

func TestLayoutEquivalence(t *testing.T) {
	inter := rgb(8, 8, false)
	planar := rgb(8, 8, true)
	rawInter := rawFrame(inter, 7)
	comps, err := pixel.Pack(rawInter, inter.layout())
	require.NoError(t, err)
	rawPlanar, err := pixel.Unpack(comps, planar.layout())
	require.NoError(t, err)

	for _, syntax := range []transfer.Syntax{transfer.JPEGLSLossless, transfer.JPEGLossless, transfer.JPEG2000Lossless} {
		a := encode(t, newNative(t, inter, rawInter), syntax, nil)
		b := encode(t, newNative(t, planar, rawPlanar), syntax, nil)
		assert.Equal(t, frames(t, a), frames(t, b), syntax.Name())
	}
}

func TestNearLossless(t *testing.T) {
	for _, s := range []imageSpec{mono(8, 8), rgb(16, 12, false)} {
		t.Run(s.String(), func(t *testing.T) {
			raw := rawFrame(s, 3)
			src := newNative(t, s, raw)
			enc := encode(t, src, transfer.JPEGLSNearLossless, nil)
			assert.True(t, enc.IsLossy)
			assert.Equal(t, "ISO_14495_1", enc.LossyCompressionMethod)

			got := frames(t, decode(t, enc, nil))[0]
			want, err := pixel.Pack(raw, s.layout())
			require.NoError(t, err)
			have, err := pixel.Pack(got, s.layout())
			require.NoError(t, err)
			for c := range want {
				for i := range want[c] {
					d := want[c][i] - have[c][i]
					require.LessOrEqual(t, max(d, -d), int32(3), "component %d sample %d", c, i)
				}
			}
		})
	}
}

func TestWaveletPhotometric(t *testing.T) {
	s := rgb(8, 8, false)
	raw := rawFrame(s, 4)
	tests := []struct {
		name   string
		syntax transfer.Syntax
		params *J2KParams
		want   pixel.Photometric
	}{
		{"lossless rct", transfer.JPEG2000Lossless, NewJ2KParams(), pixel.YBRRCT},
		{"lossy ict", transfer.JPEG2000, NewJ2KParams(), pixel.YBRICT},
		{"lossy reversible", transfer.JPEG2000, NewJ2KParams().WithIrreversible(false), pixel.YBRRCT},
		{"no mct", transfer.JPEG2000Lossless, NewJ2KParams().WithAllowMCT(false), pixel.RGB},
		{"no update", transfer.JPEG2000Lossless, NewJ2KParams().WithUpdatePhotometricInterpretation(false), pixel.RGB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := encode(t, newNative(t, s, raw), tt.syntax, tt.params)
			assert.Equal(t, tt.want, enc.Photometric)
			f, err := enc.GetFrameDataU8(0)
			require.NoError(t, err)
			h, err := jpeg2k.DecodeHeader(f)
			require.NoError(t, err)
			assert.Equal(t, tt.params.AllowMCT, h.MCT)

			dec := decode(t, enc, nil)
			assert.Equal(t, pixel.RGB, dec.Photometric)
		})
	}
}

func TestLossyBookkeeping(t *testing.T) {
	s := mono(8, 8)
	src := newNative(t, s, rawFrame(s, 5))
	tests := []struct {
		syntax transfer.Syntax
		method string
	}{
		{transfer.JPEGBaseline, "ISO_10918_1"},
		{transfer.JPEGLSNearLossless, "ISO_14495_1"},
		{transfer.JPEG2000, "ISO_15444_1"},
	}
	for _, tt := range tests {
		enc := encode(t, src, tt.syntax, nil)
		size, err := enc.FrameSize(0)
		require.NoError(t, err)
		assert.True(t, enc.IsLossy, tt.syntax.Name())
		assert.Equal(t, tt.method, enc.LossyCompressionMethod)
		assert.Equal(t, FormatRatio(src.UncompressedFrameSize(), size), enc.LossyCompressionRatio)
	}

	enc := encode(t, src, transfer.JPEGLSLossless, nil)
	assert.False(t, enc.IsLossy)
	assert.Empty(t, enc.LossyCompressionRatio)
}

func TestDCTLossy(t *testing.T) {
	meanAbs := func(a, b [][]int32) float64 {
		var sum, n float64
		for c := range a {
			for i := range a[c] {
				d := float64(a[c][i] - b[c][i])
				if d < 0 {
					d = -d
				}
				sum += d
				n++
			}
		}
		return sum / n
	}
	smooth := func(s imageSpec) []byte {
		l := s.layout()
		plane := make([]int32, l.PixelCount)
		for p := range plane {
			plane[p] = int32((p%s.w + p/s.w) * (1 << s.bs) / 256)
		}
		comps := make([][]int32, s.spp)
		for c := range comps {
			comps[c] = plane
		}
		raw, err := pixel.Unpack(comps, l)
		require.NoError(t, err)
		return raw
	}

	t.Run("baseline", func(t *testing.T) {
		s := mono(8, 8)
		raw := smooth(s)
		enc := encode(t, newNative(t, s, raw), transfer.JPEGBaseline, nil)
		dec := decode(t, enc, nil)
		assert.Equal(t, 8, dec.BitsAllocated)
		got, err := pixel.Pack(frames(t, dec)[0], s.layout())
		require.NoError(t, err)
		want, _ := pixel.Pack(raw, s.layout())
		assert.Less(t, meanAbs(want, got), 4.0)
	})

	t.Run("extended 12 bit", func(t *testing.T) {
		s := mono(16, 12)
		raw := smooth(s)
		enc := encode(t, newNative(t, s, raw), transfer.JPEGExtended, nil)
		assert.Equal(t, "ISO_10918_1", enc.LossyCompressionMethod)
		dec := decode(t, enc, nil)
		assert.Equal(t, 16, dec.BitsAllocated)
		got, err := pixel.Pack(frames(t, dec)[0], s.layout())
		require.NoError(t, err)
		want, _ := pixel.Pack(raw, s.layout())
		assert.Less(t, meanAbs(want, got), 64.0)
	})

	t.Run("baseline rejects 12 bits", func(t *testing.T) {
		s := mono(16, 12)
		src := newNative(t, s, rawFrame(s, 1))
		dst := src.Shell(transfer.JPEGBaseline)
		err := NewTranscoder(nil).Encode(context.Background(), src, dst, nil)
		assert.ErrorIs(t, err, ErrUnsupportedPrecision)
		assert.Zero(t, dst.NumberOfFrames())
	})

	t.Run("ybr full", func(t *testing.T) {
		s := rgb(8, 8, false)
		s.photo = pixel.YBRFull
		enc := encode(t, newNative(t, s, smooth(s)), transfer.JPEGBaseline, nil)

		dec := decode(t, enc, nil)
		assert.Equal(t, pixel.YBRFull, dec.Photometric)
		assert.Equal(t, 1, dec.PlanarConfiguration)

		dec = decode(t, enc, NewJPEGParams().WithConvertColorspaceToRGB(true))
		assert.Equal(t, pixel.RGB, dec.Photometric)
		assert.Equal(t, 0, dec.PlanarConfiguration)
		assert.Len(t, frames(t, dec)[0], s.layout().FrameBytes())
	})
}

func TestEncodeRejectsSubsampled(t *testing.T) {
	for _, photo := range []pixel.Photometric{pixel.YBRFull422, pixel.YBRPartial422, pixel.YBRPartial420} {
		s := rgb(8, 8, false)
		s.photo = photo
		src := newNative(t, s, rawFrame(s, 1))
		for _, syntax := range []transfer.Syntax{transfer.JPEGBaseline, transfer.JPEGLSLossless, transfer.JPEG2000} {
			dst := src.Shell(syntax)
			err := NewTranscoder(nil).Encode(context.Background(), src, dst, nil)
			assert.ErrorIs(t, err, ErrUnsupportedPhotometricInterpretation)
			assert.Zero(t, dst.NumberOfFrames())
		}
	}
}

func TestZeroFrames(t *testing.T) {
	s := mono(16, 8)
	src := newNative(t, s)
	dst := src.Shell(transfer.JPEGLSLossless)
	require.NoError(t, NewTranscoder(nil).Encode(context.Background(), src, dst, nil))
	assert.Zero(t, dst.NumberOfFrames())
	assert.Equal(t, 16, dst.BitsAllocated)
	assert.False(t, dst.IsLossy)

	out := dst.Shell(transfer.ExplicitVRLittleEndian)
	require.NoError(t, NewTranscoder(nil).Decode(context.Background(), dst, out, nil))
	assert.Zero(t, out.NumberOfFrames())
}

func TestBitsAllocatedNarrowing(t *testing.T) {
	s := mono(16, 8)
	raw := rawFrame(s, 6)
	enc := encode(t, newNative(t, s, raw), transfer.JPEGLSLossless, nil)
	assert.Equal(t, 8, enc.BitsAllocated)

	dec := decode(t, enc, nil)
	assert.Equal(t, 8, dec.BitsAllocated)
	got := frames(t, dec)[0]
	require.Len(t, got, s.w*s.h)
	for i := range got {
		require.Equal(t, raw[2*i], got[i], "sample %d", i)
	}
}

func TestDecodeWidensToScannedPrecision(t *testing.T) {
	s := mono(16, 12)
	raw := rawFrame(s, 8)
	enc := encode(t, newNative(t, s, raw), transfer.JPEGLSLossless, nil)

	// attributes claiming 8 bits in front of a 12-bit stream
	enc.BitsAllocated, enc.BitsStored, enc.HighBit = 8, 8, 7
	dec := decode(t, enc, nil)
	assert.Equal(t, 16, dec.BitsAllocated)
	assert.Equal(t, [][]byte{raw}, frames(t, dec))
}

type recordingAdapter struct {
	bits []int
}

func (a *recordingAdapter) encode(_ context.Context, _ geometry, _ [][]int32, _ int) ([]byte, error) {
	return []byte{0}, nil
}

func (a *recordingAdapter) decode(_ context.Context, g geometry, _ []byte) ([][]int32, bool, error) {
	a.bits = append(a.bits, g.Bits)
	planes := make([][]int32, g.Components)
	for c := range planes {
		planes[c] = make([]int32, g.Width*g.Height)
	}
	return planes, false, nil
}

func TestHeaderScanFallback(t *testing.T) {
	rec := &recordingAdapter{}
	v := Variant{
		Tag:      JPEGLSLossless,
		Syntax:   transfer.JPEGLSLossless,
		Family:   FamilyPredictive,
		defaults: func() Params { return NewJPEGLSParams() },
		bind: func(bits int, _ Params) (binding, error) {
			return binding{class: bits, mode: "recording", adapter: rec}, nil
		},
		scan: func([]byte) (int, error) { return 0, errors.New("no frame header") },
	}
	s := mono(16, 12)
	src := newNative(t, s)
	src.Syntax = transfer.JPEGLSLossless
	require.NoError(t, src.AddFrame([]byte("not a codestream")))
	require.NoError(t, src.AddFrame([]byte("still not one")))

	dst := src.Shell(transfer.ExplicitVRLittleEndian)
	err := NewTranscoder(NewRegistry(v)).Decode(context.Background(), src, dst, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{12, 12}, rec.bits)
	assert.Equal(t, 2, dst.NumberOfFrames())
}

func TestScanPrecision(t *testing.T) {
	for _, v := range Variants() {
		_, err := v.ScanPrecision([]byte{0xFF, 0xD8, 0x00, 0x01})
		assert.ErrorIs(t, err, ErrHeaderScan, v.Tag.String())
	}

	s := mono(16, 12)
	src := newNative(t, s, rawFrame(s, 1))
	for _, syntax := range []transfer.Syntax{transfer.JPEGLossless, transfer.JPEGExtended, transfer.JPEGLSLossless, transfer.JPEG2000Lossless} {
		enc := encode(t, src, syntax, nil)
		f, err := enc.GetFrameDataU8(0)
		require.NoError(t, err)
		v, ok := DefaultRegistry().Lookup(syntax)
		require.True(t, ok)
		bits, err := v.ScanPrecision(f)
		require.NoError(t, err)
		assert.Equal(t, 12, bits, syntax.Name())
	}
}

func TestDecodeCorruptFrame(t *testing.T) {
	s := mono(8, 8)
	for _, syntax := range []transfer.Syntax{transfer.JPEGLossless, transfer.JPEGLSLossless, transfer.JPEG2000Lossless} {
		src := newNative(t, s)
		src.Syntax = syntax
		require.NoError(t, src.AddFrame([]byte{0xFF, 0xD8, 0xFF, 0x4F, 1, 2, 3}))
		dst := src.Shell(transfer.ExplicitVRLittleEndian)

		err := NewTranscoder(nil).Decode(context.Background(), src, dst, nil)
		require.Error(t, err, syntax.Name())
		assert.NotErrorIs(t, err, ErrHeaderScan)
		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, syntax, ce.Syntax)
		assert.Equal(t, 0, ce.Frame)
		assert.Zero(t, dst.NumberOfFrames())
	}
}

func TestOutputLimit(t *testing.T) {
	s := imageSpec{w: 2, h: 2, spp: 1, ba: 8, bs: 8, photo: pixel.Monochrome2}
	src := newNative(t, s, []byte{1, 2, 3, 4})
	base := jpeg2k.LiveHandles()
	for _, syntax := range []transfer.Syntax{transfer.JPEGLossless, transfer.JPEGBaseline, transfer.JPEGLSLossless, transfer.JPEG2000Lossless} {
		dst := src.Shell(syntax)
		err := NewTranscoder(nil).Encode(context.Background(), src, dst, nil)
		require.ErrorIs(t, err, ErrCodecEngine, syntax.Name())
		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "compressed frame exceeds uncompressed size", ce.Message)
		assert.Equal(t, 0, ce.Frame)
	}
	assert.Equal(t, base, jpeg2k.LiveHandles())
}

func TestJ2KHandleDiscipline(t *testing.T) {
	base := jpeg2k.LiveHandles()
	s := rgb(16, 16, false)
	enc := encode(t, newNative(t, s, rawFrame(s, 9)), transfer.JPEG2000, nil)
	assert.Equal(t, base, jpeg2k.LiveHandles())
	decode(t, enc, nil)
	assert.Equal(t, base, jpeg2k.LiveHandles())

	bad := newNative(t, s)
	bad.Syntax = transfer.JPEG2000
	require.NoError(t, bad.AddFrame([]byte{0xFF, 0x4F, 0xFF, 0x51, 0, 2}))
	err := NewTranscoder(nil).Decode(context.Background(), bad, bad.Shell(transfer.ExplicitVRLittleEndian), nil)
	require.ErrorIs(t, err, ErrCodecEngine)
	assert.Equal(t, base, jpeg2k.LiveHandles())
}

func TestUnsupportedSyntax(t *testing.T) {
	s := mono(8, 8)
	src := newNative(t, s, rawFrame(s, 1))
	err := NewTranscoder(nil).Encode(context.Background(), src, src.Shell(transfer.RLELossless), nil)
	assert.ErrorIs(t, err, ErrUnsupportedSyntax)

	reg := NewRegistry(Variants()[:2]...)
	err = NewTranscoder(reg).Encode(context.Background(), src, src.Shell(transfer.JPEGLSLossless), nil)
	assert.ErrorIs(t, err, ErrUnsupportedSyntax)
}

func TestStorageWidth(t *testing.T) {
	s := mono(16, 16)
	src := newNative(t, s, make([]byte, 4*s.w*s.h))
	src.BitsAllocated = 32
	err := NewTranscoder(nil).Encode(context.Background(), src, src.Shell(transfer.JPEGLSLossless), nil)
	assert.ErrorIs(t, err, pixel.ErrStorageWidth)
}

func TestTranscode(t *testing.T) {
	s := rgb(16, 12, true)
	want := [][]byte{rawFrame(s, 10), rawFrame(s, 11)}
	src := newNative(t, s, want...)
	tc := NewTranscoder(nil)
	ctx := context.Background()

	ls, err := tc.Transcode(ctx, src, transfer.JPEGLSLossless, nil)
	require.NoError(t, err)
	assert.Equal(t, transfer.JPEGLSLossless, ls.Syntax)

	j2k, err := tc.Transcode(ctx, ls, transfer.JPEG2000Lossless, nil)
	require.NoError(t, err)
	assert.Equal(t, pixel.YBRRCT, j2k.Photometric)
	assert.Equal(t, 2, j2k.NumberOfFrames())

	native, err := tc.Transcode(ctx, j2k, transfer.ExplicitVRLittleEndian, nil)
	require.NoError(t, err)
	assert.Equal(t, pixel.RGB, native.Photometric)
	assert.Equal(t, want, frames(t, native))

	implicit, err := tc.Transcode(ctx, native, transfer.ImplicitVRLittleEndian, nil)
	require.NoError(t, err)
	assert.Equal(t, want, frames(t, implicit))

	_, err = tc.Transcode(ctx, native, transfer.ExplicitVRBigEndian, nil)
	assert.ErrorIs(t, err, ErrUnsupportedSyntax)
}

func TestJ2KLosslessSmallFrame(t *testing.T) {
	s := imageSpec{w: 16, h: 16, spp: 1, ba: 8, bs: 8, photo: pixel.Monochrome2}
	raw := rawFrame(s, 12)
	tc := NewTranscoder(nil)
	ctx := context.Background()

	enc, err := tc.Transcode(ctx, newNative(t, s, raw), transfer.JPEG2000Lossless, nil)
	require.NoError(t, err)
	back, err := tc.Transcode(ctx, enc, transfer.ExplicitVRLittleEndian, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{raw}, frames(t, back))
}

func TestFailedEncodeLeavesDestination(t *testing.T) {
	s := mono(16, 8)
	src := newNative(t, s, rawFrame(s, 1), rawFrame(s, 2)[:10])
	dst := src.Shell(transfer.JPEGLSLossless)

	err := NewTranscoder(nil).Encode(context.Background(), src, dst, nil)
	require.ErrorIs(t, err, ErrCodecEngine)
	assert.ErrorIs(t, err, pixel.ErrShortFrame)
	assert.NotErrorIs(t, err, ErrCodecParameter)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Frame)

	assert.Zero(t, dst.NumberOfFrames())
	assert.Equal(t, 16, dst.BitsAllocated)
	assert.Equal(t, -1, src.Resident())
}

func TestFailedDecodeLeavesDestination(t *testing.T) {
	s := mono(16, 12)
	enc := encode(t, newNative(t, s, rawFrame(s, 3)), transfer.JPEGLSLossless, nil)
	good := frames(t, enc)[0]

	src := enc.Shell(transfer.JPEGLSLossless)
	require.NoError(t, src.AddFrame(good))
	require.NoError(t, src.AddFrame([]byte{0xFF, 0xD8, 1, 2, 3}))
	// 8-bit attributes in front of a 12-bit stream widen the output
	src.BitsAllocated, src.BitsStored, src.HighBit = 8, 8, 7
	dst := src.Shell(transfer.ExplicitVRLittleEndian)

	err := NewTranscoder(nil).Decode(context.Background(), src, dst, nil)
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Frame)
	assert.Zero(t, dst.NumberOfFrames())
	assert.Equal(t, 8, dst.BitsAllocated)
	assert.Equal(t, -1, src.Resident())
}

func TestUnpackShapeIsEngineError(t *testing.T) {
	short := &recordingAdapter{}
	v := Variant{
		Tag:      JPEGLSLossless,
		Syntax:   transfer.JPEGLSLossless,
		Family:   FamilyPredictive,
		defaults: func() Params { return NewJPEGLSParams() },
		bind: func(bits int, _ Params) (binding, error) {
			return binding{class: bits, mode: "recording", adapter: short}, nil
		},
		scan: func([]byte) (int, error) { return 0, errors.New("no frame header") },
	}
	s := mono(16, 12)
	src := newNative(t, s)
	src.Syntax = transfer.JPEGLSLossless
	require.NoError(t, src.AddFrame([]byte{0}))
	// one plane back from the adapter against a three sample destination
	dst := src.Shell(transfer.ExplicitVRLittleEndian)
	dst.SamplesPerPixel = 3
	dst.Photometric = pixel.RGB

	err := NewTranscoder(NewRegistry(v)).Decode(context.Background(), src, dst, nil)
	require.ErrorIs(t, err, ErrCodecEngine)
	assert.ErrorIs(t, err, pixel.ErrShortFrame)
	assert.NotErrorIs(t, err, ErrCodecParameter)
	assert.Zero(t, dst.NumberOfFrames())
}

// releaseRecorder is a frame store that records the frames handed back.
type releaseRecorder struct {
	*pixel.MemStore
	released []int
}

func (r *releaseRecorder) Release(i int) { r.released = append(r.released, i) }

func TestFrameLoopReleasesInOrder(t *testing.T) {
	s := mono(16, 12)
	raw := [][]byte{rawFrame(s, 4), rawFrame(s, 5), rawFrame(s, 6)}

	src := newNative(t, s)
	in := &releaseRecorder{MemStore: pixel.NewMemStore(raw...)}
	src.WithStore(in)
	dst := src.Shell(transfer.JPEGLSLossless)
	require.NoError(t, NewTranscoder(nil).Encode(context.Background(), src, dst, nil))
	assert.Equal(t, []int{0, 1, 2}, in.released)
	assert.Equal(t, -1, src.Resident())

	enc := dst.Shell(dst.Syntax)
	out := &releaseRecorder{MemStore: pixel.NewMemStore(frames(t, dst)...)}
	enc.WithStore(out)
	dec := decode(t, enc, nil)
	assert.Equal(t, []int{0, 1, 2}, out.released)
	assert.Equal(t, -1, enc.Resident())
	assert.Equal(t, raw, frames(t, dec))
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	tc := NewTranscoder(nil, WithLogger(logging.Logger(&buf, false, slog.LevelDebug)))
	ctx := context.Background()
	s := mono(8, 8)
	p := NewJ2KParams().WithVerbose(true)

	enc, err := tc.Transcode(ctx, newNative(t, s, rawFrame(s, 7)), transfer.JPEG2000Lossless, p)
	require.NoError(t, err)
	_, err = tc.Transcode(ctx, enc, transfer.ExplicitVRLittleEndian, p)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "msg=encoding")
	assert.Contains(t, out, "msg=decoding")
	assert.Contains(t, out, "msg=jpeg2k")
	assert.Contains(t, out, "wrote")
	assert.Contains(t, out, "op=encode")

	// engine errors reach the logger without verbose
	buf.Reset()
	bad := newNative(t, s)
	bad.Syntax = transfer.JPEG2000Lossless
	require.NoError(t, bad.AddFrame([]byte{0xFF, 0x4F, 0xFF, 0x51, 0, 2}))
	_, err = tc.Transcode(ctx, bad, transfer.ExplicitVRLittleEndian, nil)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "level=ERROR msg=jpeg2k")
}
