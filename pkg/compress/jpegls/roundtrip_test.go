package jpegls_test

import (
	"testing"

	jpegls "github.com/jpfielding/pixeldata.go/pkg/compress/jpegls"
)

// testPlanes fills each component with a gradient, flat regions and noise so
// that both regular and run mode are exercised.
func testPlanes(width, height, comps, bits int) [][]int32 {
	maxVal := int32(1)<<bits - 1
	seed := uint32(12345)
	planes := make([][]int32, comps)
	for c := range planes {
		plane := make([]int32, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				seed = seed*1664525 + 1013904223
				var v int32
				switch {
				case x < width/4 && y < height/4:
					v = 0
				case x > 3*width/4 && y < height/4:
					v = maxVal
				case y > 3*height/4:
					v = int32(seed>>8) & maxVal
				default:
					v = int32(x*7+y*3+c*11) & maxVal
				}
				plane[y*width+x] = v
			}
		}
		planes[c] = plane
	}
	return planes
}

func emptyPlanes(width, height, comps int) [][]int32 {
	planes := make([][]int32, comps)
	for c := range planes {
		planes[c] = make([]int32, width*height)
	}
	return planes
}

func encodeOrFail(t *testing.T, planes [][]int32, p jpegls.Params) []byte {
	t.Helper()
	dst := make([]byte, p.Width*p.Height*p.Components*3+1024)
	n, code := jpegls.Encode(dst, planes, p)
	if code != jpegls.OK {
		t.Fatalf("Encode failed: %v", code)
	}
	return dst[:n]
}

func comparePlanes(t *testing.T, got, want [][]int32, tolerance int32) {
	t.Helper()
	mismatches := 0
	for c := range want {
		for i := range want[c] {
			d := got[c][i] - want[c][i]
			if d < 0 {
				d = -d
			}
			if d > tolerance {
				if mismatches == 0 {
					t.Errorf("first mismatch: component %d sample %d got %d want %d", c, i, got[c][i], want[c][i])
				}
				mismatches++
			}
		}
	}
	if mismatches > 0 {
		t.Errorf("found %d samples outside tolerance %d", mismatches, tolerance)
	}
}

func TestRoundTripLossless(t *testing.T) {
	tests := []struct {
		name  string
		bits  int
		comps int
		ilv   jpegls.InterleaveMode
	}{
		{"1bit", 1, 1, jpegls.InterleaveNone},
		{"8bit", 8, 1, jpegls.InterleaveNone},
		{"12bit", 12, 1, jpegls.InterleaveNone},
		{"16bit", 16, 1, jpegls.InterleaveNone},
		{"rgb none", 8, 3, jpegls.InterleaveNone},
		{"rgb line", 8, 3, jpegls.InterleaveLine},
		{"rgb sample", 8, 3, jpegls.InterleaveSample},
		{"16bit rgb sample", 16, 3, jpegls.InterleaveSample},
		{"four components", 10, 4, jpegls.InterleaveLine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			width, height := 67, 41
			p := jpegls.Params{Width: width, Height: height, Components: tt.comps, BitsPerSample: tt.bits, ILV: tt.ilv}
			original := testPlanes(width, height, tt.comps, tt.bits)
			enc := encodeOrFail(t, original, p)

			got := emptyPlanes(width, height, tt.comps)
			dp, code := jpegls.Decode(enc, got, 0)
			if code != jpegls.OK {
				t.Fatalf("Decode failed: %v", code)
			}
			if dp.Width != width || dp.Height != height || dp.Components != tt.comps || dp.BitsPerSample != tt.bits {
				t.Fatalf("header mismatch: %+v", dp)
			}
			comparePlanes(t, got, original, 0)
		})
	}
}

// TestRoundTripRowOrder checks that rows are not transposed.
func TestRoundTripRowOrder(t *testing.T) {
	width, height := 100, 50
	original := [][]int32{make([]int32, width*height)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			original[0][y*width+x] = int32((y*1000 + x) % 65536)
		}
	}
	p := jpegls.Params{Width: width, Height: height, Components: 1, BitsPerSample: 16}
	enc := encodeOrFail(t, original, p)

	got := emptyPlanes(width, height, 1)
	if _, code := jpegls.Decode(enc, got, 0); code != jpegls.OK {
		t.Fatalf("Decode failed: %v", code)
	}
	testCases := []struct {
		x, y    int
		wantVal int32
	}{
		{0, 0, 0},
		{99, 0, 99},
		{0, 49, 49000},
		{50, 25, 25*1000 + 50},
	}
	for _, tc := range testCases {
		if v := got[0][tc.y*width+tc.x]; v != tc.wantVal {
			t.Errorf("pixel (%d, %d): got %d, want %d", tc.x, tc.y, v, tc.wantVal)
		}
	}
}

func TestRoundTripColorTransform(t *testing.T) {
	for _, ct := range []jpegls.ColorTransform{jpegls.TransformHP1, jpegls.TransformHP2, jpegls.TransformHP3} {
		width, height := 32, 24
		p := jpegls.Params{Width: width, Height: height, Components: 3, BitsPerSample: 8, ILV: jpegls.InterleaveSample, ColorTransform: ct}
		original := testPlanes(width, height, 3, 8)
		enc := encodeOrFail(t, original, p)

		hdr, code := jpegls.ReadHeader(enc)
		if code != jpegls.OK {
			t.Fatalf("ReadHeader failed: %v", code)
		}
		if hdr.ColorTransform != ct {
			t.Errorf("transform = %d, want %d", hdr.ColorTransform, ct)
		}

		got := emptyPlanes(width, height, 3)
		if _, code := jpegls.Decode(enc, got, 0); code != jpegls.OK {
			t.Fatalf("Decode failed: %v", code)
		}
		comparePlanes(t, got, original, 0)
	}
}

func TestNearLossless(t *testing.T) {
	for _, near := range []int{1, 3, 10} {
		width, height := 64, 48
		p := jpegls.Params{Width: width, Height: height, Components: 1, BitsPerSample: 12, AllowedLossyError: near}
		original := testPlanes(width, height, 1, 12)
		enc := encodeOrFail(t, original, p)

		got := emptyPlanes(width, height, 1)
		dp, code := jpegls.Decode(enc, got, 0)
		if code != jpegls.OK {
			t.Fatalf("Decode failed: %v", code)
		}
		if dp.AllowedLossyError != near {
			t.Errorf("NEAR = %d, want %d", dp.AllowedLossyError, near)
		}
		comparePlanes(t, got, original, int32(near))
	}
}

func TestStride(t *testing.T) {
	width, height, stride := 20, 10, 32
	src := make([]int32, stride*height)
	for y := 0; y < height; y++ {
		for x := 0; x < stride; x++ {
			src[y*stride+x] = int32(x + y)
			if x >= width {
				src[y*stride+x] = 255 // padding, never coded
			}
		}
	}
	p := jpegls.Params{Width: width, Height: height, Stride: stride, Components: 1, BitsPerSample: 8}
	enc := encodeOrFail(t, [][]int32{src}, p)

	got := [][]int32{make([]int32, stride*height)}
	if _, code := jpegls.Decode(enc, got, stride); code != jpegls.OK {
		t.Fatalf("Decode failed: %v", code)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if got[0][y*stride+x] != int32(x+y) {
				t.Fatalf("pixel (%d, %d) = %d", x, y, got[0][y*stride+x])
			}
		}
	}
}

func TestErrorCodes(t *testing.T) {
	planes := testPlanes(16, 16, 3, 8)
	dst := make([]byte, 4096)

	bad := []struct {
		name string
		p    jpegls.Params
		want jpegls.ErrorCode
	}{
		{"zero width", jpegls.Params{Width: 0, Height: 16, Components: 1, BitsPerSample: 8}, jpegls.InvalidJlsParameters},
		{"17 bits", jpegls.Params{Width: 16, Height: 16, Components: 1, BitsPerSample: 17}, jpegls.ParameterValueNotSupported},
		{"five components", jpegls.Params{Width: 16, Height: 16, Components: 5, BitsPerSample: 8}, jpegls.ImageTypeNotSupported},
		{"transform on gray", jpegls.Params{Width: 16, Height: 16, Components: 1, BitsPerSample: 8, ColorTransform: jpegls.TransformHP1}, jpegls.UnsupportedColorTransform},
		{"near too big", jpegls.Params{Width: 16, Height: 16, Components: 1, BitsPerSample: 2, AllowedLossyError: 2}, jpegls.ParameterValueNotSupported},
	}
	for _, tt := range bad {
		if _, code := jpegls.Encode(dst, planes, tt.p); code != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, code, tt.want)
		}
	}

	p := jpegls.Params{Width: 16, Height: 16, Components: 1, BitsPerSample: 8}
	if _, code := jpegls.Encode(make([]byte, 10), planes, p); code != jpegls.CompressedBufferTooSmall {
		t.Errorf("small destination: got %v", code)
	}
	if _, code := jpegls.Encode(dst, [][]int32{make([]int32, 10)}, p); code != jpegls.UncompressedBufferTooSmall {
		t.Errorf("short plane: got %v", code)
	}

	enc := encodeOrFail(t, planes, p)
	if _, code := jpegls.Decode(enc, [][]int32{make([]int32, 100)}, 0); code != jpegls.UncompressedBufferTooSmall {
		t.Errorf("small output: got %v", code)
	}
	if _, code := jpegls.Decode([]byte{0x00, 0x01, 0x02}, emptyPlanes(16, 16, 1), 0); code != jpegls.InvalidCompressedData {
		t.Errorf("garbage: got %v", code)
	}
	if _, code := jpegls.Decode(enc[:len(enc)/2], emptyPlanes(16, 16, 1), 0); code == jpegls.OK {
		t.Errorf("truncated stream decoded")
	}
	if _, code := jpegls.Decode(append(append([]byte{}, enc...), 0xAB), emptyPlanes(16, 16, 1), 0); code != jpegls.TooMuchCompressedData {
		t.Errorf("trailing data: got %v", code)
	}
	// a pad byte after EOI is tolerated
	if _, code := jpegls.Decode(append(append([]byte{}, enc...), 0x00), emptyPlanes(16, 16, 1), 0); code != jpegls.OK {
		t.Errorf("padded stream: got %v", code)
	}
}
