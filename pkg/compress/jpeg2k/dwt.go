package jpeg2k

// Discrete wavelet transforms of ITU-T T.800 Annex F, implemented with
// lifting and whole-sample symmetric extension. One-dimensional transforms
// leave low-pass coefficients first and high-pass coefficients after them.

// 9/7 lifting constants
const (
	alpha97 = -1.586134342059924
	beta97  = -0.052980118572961
	gamma97 = 0.882911075530934
	delta97 = 0.443506852043971
	k97     = 1.230174104914001
)

type sample interface {
	~int | ~float64
}

// split deinterleaves signal into low (even) and high (odd) halves of scratch.
func split[T sample](signal, scratch []T) (low, high []T) {
	n := len(signal)
	half := (n + 1) / 2
	low, high = scratch[:half], scratch[half:n]
	for i := range low {
		low[i] = signal[2*i]
	}
	for i := range high {
		high[i] = signal[2*i+1]
	}
	return low, high
}

func interleave[T sample](signal, low, high []T) {
	for i, v := range low {
		signal[2*i] = v
	}
	for i, v := range high {
		signal[2*i+1] = v
	}
}

// Forward1D performs a 1D forward 5/3 wavelet transform in-place.
func Forward1D(signal []int) {
	forward53(signal, make([]int, len(signal)))
}

// Inverse1D performs a 1D inverse 5/3 wavelet transform in-place.
func Inverse1D(signal []int) {
	inverse53(signal, make([]int, len(signal)))
}

func forward53(signal, scratch []int) {
	n := len(signal)
	if n < 2 {
		return
	}
	low, high := split(signal, scratch)
	last := len(low) - 1
	for i := range high {
		high[i] -= (low[i] + low[min(i+1, last)]) >> 1
	}
	for i := range low {
		low[i] += (high[max(i-1, 0)] + high[min(i, len(high)-1)] + 2) >> 2
	}
	copy(signal, scratch[:n])
}

func inverse53(signal, scratch []int) {
	n := len(signal)
	if n < 2 {
		return
	}
	copy(scratch, signal)
	half := (n + 1) / 2
	low, high := scratch[:half], scratch[half:n]
	last := len(low) - 1
	for i := range low {
		low[i] -= (high[max(i-1, 0)] + high[min(i, len(high)-1)] + 2) >> 2
	}
	for i := range high {
		high[i] += (low[i] + low[min(i+1, last)]) >> 1
	}
	interleave(signal, low, high)
}

// Forward97 performs a 1D forward 9/7 wavelet transform in-place.
func Forward97(signal []float64) {
	forward97(signal, make([]float64, len(signal)))
}

// Inverse97 performs a 1D inverse 9/7 wavelet transform in-place.
func Inverse97(signal []float64) {
	inverse97(signal, make([]float64, len(signal)))
}

func liftHigh(low, high []float64, c float64) {
	last := len(low) - 1
	for i := range high {
		high[i] += c * (low[i] + low[min(i+1, last)])
	}
}

func liftLow(low, high []float64, c float64) {
	last := len(high) - 1
	for i := range low {
		low[i] += c * (high[max(i-1, 0)] + high[min(i, last)])
	}
}

func forward97(signal, scratch []float64) {
	n := len(signal)
	if n < 2 {
		return
	}
	low, high := split(signal, scratch)
	liftHigh(low, high, alpha97)
	liftLow(low, high, beta97)
	liftHigh(low, high, gamma97)
	liftLow(low, high, delta97)
	for i := range low {
		low[i] /= k97
	}
	for i := range high {
		high[i] *= k97 / 2
	}
	copy(signal, scratch[:n])
}

func inverse97(signal, scratch []float64) {
	n := len(signal)
	if n < 2 {
		return
	}
	copy(scratch, signal)
	half := (n + 1) / 2
	low, high := scratch[:half], scratch[half:n]
	for i := range low {
		low[i] *= k97
	}
	for i := range high {
		high[i] /= k97 / 2
	}
	liftLow(low, high, -delta97)
	liftHigh(low, high, -gamma97)
	liftLow(low, high, -beta97)
	liftHigh(low, high, -alpha97)
	interleave(signal, low, high)
}

// forwardRegion transforms rows then columns of the top-left width x height
// region of a plane with the given stride.
func forwardRegion[T sample](data []T, stride, width, height int, f func(line, scratch []T)) {
	if width < 2 || height < 2 {
		return
	}
	line := make([]T, max(width, height))
	scratch := make([]T, len(line))
	for y := 0; y < height; y++ {
		row := data[y*stride : y*stride+width]
		f(row, scratch)
	}
	col := line[:height]
	for x := 0; x < width; x++ {
		for y := range col {
			col[y] = data[y*stride+x]
		}
		f(col, scratch)
		for y, v := range col {
			data[y*stride+x] = v
		}
	}
}

// inverseRegion undoes forwardRegion: columns then rows.
func inverseRegion[T sample](data []T, stride, width, height int, f func(line, scratch []T)) {
	if width < 2 || height < 2 {
		return
	}
	line := make([]T, max(width, height))
	scratch := make([]T, len(line))
	col := line[:height]
	for x := 0; x < width; x++ {
		for y := range col {
			col[y] = data[y*stride+x]
		}
		f(col, scratch)
		for y, v := range col {
			data[y*stride+x] = v
		}
	}
	for y := 0; y < height; y++ {
		row := data[y*stride : y*stride+width]
		f(row, scratch)
	}
}

// levelDims returns the LL dimensions before each decomposition level.
func levelDims(width, height, levels int) [][2]int {
	dims := [][2]int{{width, height}}
	for l := 0; l < levels; l++ {
		w, h := dims[l][0], dims[l][1]
		if w < 2 || h < 2 {
			break
		}
		dims = append(dims, [2]int{(w + 1) / 2, (h + 1) / 2})
	}
	return dims
}

func forwardLevels[T sample](data []T, width, height, levels int, f func(line, scratch []T)) (int, int) {
	dims := levelDims(width, height, levels)
	for l := 0; l < len(dims)-1; l++ {
		forwardRegion(data, width, dims[l][0], dims[l][1], f)
	}
	ll := dims[len(dims)-1]
	return ll[0], ll[1]
}

func inverseLevels[T sample](data []T, width, height, levels int, f func(line, scratch []T)) {
	dims := levelDims(width, height, levels)
	for l := len(dims) - 2; l >= 0; l-- {
		inverseRegion(data, width, dims[l][0], dims[l][1], f)
	}
}

// Forward2D performs one 2D forward 5/3 level over the whole plane,
// producing LL, HL, LH, HH quadrants.
func Forward2D(data []int, width, height int) {
	forwardRegion(data, width, width, height, forward53)
}

// Inverse2D undoes Forward2D.
func Inverse2D(data []int, width, height int) {
	inverseRegion(data, width, width, height, inverse53)
}

// ForwardMultiLevel performs a multi-level 5/3 decomposition and returns the
// dimensions of the final LL subband. Levels stop once LL is narrower than 2.
func ForwardMultiLevel(data []int, width, height, levels int) (llWidth, llHeight int) {
	return forwardLevels(data, width, height, levels, forward53)
}

// InverseMultiLevel undoes ForwardMultiLevel.
func InverseMultiLevel(data []int, width, height, levels int) {
	inverseLevels(data, width, height, levels, inverse53)
}

// ForwardMultiLevel97 is the irreversible counterpart of ForwardMultiLevel.
func ForwardMultiLevel97(data []float64, width, height, levels int) (llWidth, llHeight int) {
	return forwardLevels(data, width, height, levels, forward97)
}

// InverseMultiLevel97 undoes ForwardMultiLevel97.
func InverseMultiLevel97(data []float64, width, height, levels int) {
	inverseLevels(data, width, height, levels, inverse97)
}

// SubbandBounds is a rectangle within a transformed plane.
type SubbandBounds struct {
	X0, Y0 int // Top-left corner
	X1, Y1 int // Bottom-right corner (exclusive)
}

// GetSubbandBounds calculates the bounds of a subband. level counts from 1
// (finest detail) to numLevels (coarsest).
func GetSubbandBounds(width, height, level, numLevels int, subband Subband) SubbandBounds {
	if level < 1 || level > numLevels {
		return SubbandBounds{}
	}

	w, h := width, height
	for i := 1; i < level; i++ {
		w = (w + 1) / 2
		h = (h + 1) / 2
	}

	halfW := (w + 1) / 2
	halfH := (h + 1) / 2

	switch subband {
	case SubbandLL:
		return SubbandBounds{0, 0, halfW, halfH}
	case SubbandHL:
		return SubbandBounds{halfW, 0, w, halfH}
	case SubbandLH:
		return SubbandBounds{0, halfH, halfW, h}
	case SubbandHH:
		return SubbandBounds{halfW, halfH, w, h}
	default:
		return SubbandBounds{}
	}
}
