package jpeg2k

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForward1D_Inverse1D_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		signal []int
	}{
		{"even", []int{1, 2, 3, 4, 5, 6, 7, 8}},
		{"odd length", []int{1, 2, 3, 4, 5}},
		{"constant", []int{100, 100, 100, 100}},
		{"alternating", []int{0, 255, 0, 255, 0, 255, 0, 255}},
		{"negative", []int{-3, -7, 5, -1, -2048, 2047, 0}},
		{"two elements", []int{100, 200}},
		{"three elements", []int{-10, 20, -30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := append([]int(nil), tt.signal...)
			Forward1D(tt.signal)
			Inverse1D(tt.signal)
			assert.Equal(t, original, tt.signal)
		})
	}
}

func TestForward1D_FloorLifting(t *testing.T) {
	// predict: -1 - floor((0 + 0) / 2) = -1; update: 0 + floor((-1 + -1 + 2) / 4) = 0
	signal := []int{0, -1, 0, -1}
	Forward1D(signal)
	assert.Equal(t, []int{0, 0, -1, -1}, signal)

	// floor((-3 + 0) / 2) = -2, so the detail is 1 - (-2) = 3
	signal = []int{-3, 1, 0}
	Forward1D(signal)
	assert.Equal(t, 3, signal[2])
}

func TestForward1D_ConstantHasNoDetail(t *testing.T) {
	signal := []int{100, 100, 100, 100}
	Forward1D(signal)
	assert.Equal(t, []int{100, 100, 0, 0}, signal)
}

func TestForward97_Inverse97_RoundTrip(t *testing.T) {
	for _, n := range []int{2, 3, 8, 9, 64} {
		signal := make([]float64, n)
		for i := range signal {
			signal[i] = float64((i*37)%251) - 125
		}
		original := append([]float64(nil), signal...)
		Forward97(signal)
		Inverse97(signal)
		for i := range signal {
			assert.InDelta(t, original[i], signal[i], 1e-9, "n=%d i=%d", n, i)
		}
	}
}

func TestForward97_ConstantHasNoDetail(t *testing.T) {
	signal := []float64{50, 50, 50, 50, 50, 50}
	Forward97(signal)
	for _, v := range signal[3:] {
		assert.InDelta(t, 0, v, 1e-9)
	}
	// low-pass DC gain is normalised to 1
	for _, v := range signal[:3] {
		assert.InDelta(t, 50, v, 1e-6)
	}
}

func TestForward2D_Inverse2D_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
	}{
		{"4x4", 4, 4},
		{"4x8", 4, 8},
		{"5x5 odd", 5, 5},
		{"7x3 odd", 7, 3},
		{"2x2 minimum", 2, 2},
		{"1x9 line", 1, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]int, tt.width*tt.height)
			for y := 0; y < tt.height; y++ {
				for x := 0; x < tt.width; x++ {
					data[y*tt.width+x] = x*3 - y*tt.width
				}
			}
			original := append([]int(nil), data...)

			Forward2D(data, tt.width, tt.height)
			Inverse2D(data, tt.width, tt.height)

			assert.Equal(t, original, data)
		})
	}
}

func TestForward2D_SubbandStructure(t *testing.T) {
	width, height := 8, 8
	data := make([]int, width*height)
	for i := range data {
		data[i] = 100
	}

	Forward2D(data, width, height)

	for _, sb := range []Subband{SubbandHL, SubbandLH, SubbandHH} {
		b := GetSubbandBounds(width, height, 1, 1, sb)
		for y := b.Y0; y < b.Y1; y++ {
			for x := b.X0; x < b.X1; x++ {
				assert.Equal(t, 0, data[y*width+x], "%s[%d,%d]", sb, x, y)
			}
		}
	}
}

func TestForwardMultiLevel_InverseMultiLevel_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		levels int
	}{
		{"16x16 2 levels", 16, 16, 2},
		{"64x64 5 levels", 64, 64, 5},
		{"17x17 odd 3 levels", 17, 17, 3},
		{"20x30 rect 2 levels", 20, 30, 2},
		{"3x40 more levels than fit", 3, 40, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]int, tt.width*tt.height)
			for i := range data {
				data[i] = (i*7919)%65536 - 32768
			}
			original := append([]int(nil), data...)

			ForwardMultiLevel(data, tt.width, tt.height, tt.levels)
			InverseMultiLevel(data, tt.width, tt.height, tt.levels)

			assert.Equal(t, original, data)
		})
	}
}

func TestForwardMultiLevel97_RoundTrip(t *testing.T) {
	width, height := 33, 20
	data := make([]float64, width*height)
	for i := range data {
		data[i] = math.Sin(float64(i)/7) * 1000
	}
	original := append([]float64(nil), data...)

	ForwardMultiLevel97(data, width, height, 5)
	InverseMultiLevel97(data, width, height, 5)

	for i := range data {
		assert.InDelta(t, original[i], data[i], 1e-6)
	}
}

func TestForwardMultiLevel_LLDimensions(t *testing.T) {
	tests := []struct {
		width, height, levels int
		wantLLW, wantLLH      int
	}{
		{16, 16, 1, 8, 8},
		{16, 16, 3, 2, 2},
		{16, 16, 4, 1, 1},
		{16, 16, 6, 1, 1},
		{17, 17, 2, 5, 5},
		{64, 64, 5, 2, 2},
	}

	for _, tt := range tests {
		data := make([]int, tt.width*tt.height)
		llW, llH := ForwardMultiLevel(data, tt.width, tt.height, tt.levels)
		assert.Equal(t, tt.wantLLW, llW, "LL width for %dx%d @ %d levels", tt.width, tt.height, tt.levels)
		assert.Equal(t, tt.wantLLH, llH, "LL height for %dx%d @ %d levels", tt.width, tt.height, tt.levels)
	}
}

func TestGetSubbandBounds(t *testing.T) {
	width, height, numLevels := 64, 64, 3

	assert.Equal(t, SubbandBounds{0, 0, 32, 32}, GetSubbandBounds(width, height, 1, numLevels, SubbandLL))
	assert.Equal(t, SubbandBounds{32, 0, 64, 32}, GetSubbandBounds(width, height, 1, numLevels, SubbandHL))
	assert.Equal(t, SubbandBounds{0, 32, 32, 64}, GetSubbandBounds(width, height, 1, numLevels, SubbandLH))
	assert.Equal(t, SubbandBounds{32, 32, 64, 64}, GetSubbandBounds(width, height, 1, numLevels, SubbandHH))
	assert.Equal(t, SubbandBounds{16, 16, 32, 32}, GetSubbandBounds(width, height, 2, numLevels, SubbandHH))
	assert.Equal(t, SubbandBounds{8, 0, 16, 8}, GetSubbandBounds(width, height, 3, numLevels, SubbandHL))
	assert.Equal(t, SubbandBounds{}, GetSubbandBounds(width, height, 4, numLevels, SubbandLL))
}

func BenchmarkForwardMultiLevel(b *testing.B) {
	width, height, levels := 512, 512, 5
	data := make([]int, width*height)
	for i := range data {
		data[i] = i % 256
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dataCopy := append([]int(nil), data...)
		ForwardMultiLevel(dataCopy, width, height, levels)
	}
}
