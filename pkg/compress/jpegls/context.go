package jpegls

const (
	regularContexts = 365
	minC            = -128
	maxC            = 127
)

// ContextModel maintains the per-scan state for context modeling: the
// regular-mode statistics, the two run interruption contexts and the run
// index table.
type ContextModel struct {
	derived

	// regular mode statistics per context
	A []int // accumulated magnitude of prediction errors
	B []int // accumulated bias
	C []int // prediction correction
	N []int // occurrence counter

	// run interruption contexts, index 0 is RItype 0 (Ra != Rb), 1 is RItype 1
	RA  [2]int
	RN  [2]int
	RNn [2]int

	// J is the run-length order table (ISO 14495-1 Table A.1)
	J [32]int
}

// NewContextModel initializes the statistics for one scan.
func NewContextModel(maxVal, near, reset int) *ContextModel {
	cm := &ContextModel{derived: derive(maxVal, near)}
	if reset > 0 {
		cm.reset = reset
	}
	initA := max(2, (cm.rangeVal+32)>>6)

	cm.A = make([]int, regularContexts)
	cm.B = make([]int, regularContexts)
	cm.C = make([]int, regularContexts)
	cm.N = make([]int, regularContexts)
	for i := range cm.A {
		cm.A[i] = initA
		cm.N[i] = 1
	}
	for i := range cm.RA {
		cm.RA[i] = initA
		cm.RN[i] = 1
	}

	jValues := []int{0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	copy(cm.J[:], jValues)
	return cm
}

// withThresholds overrides the default gradient thresholds (LSE preset).
func (cm *ContextModel) withThresholds(t1, t2, t3 int) {
	if t1 > 0 {
		cm.t1 = t1
	}
	if t2 > 0 {
		cm.t2 = t2
	}
	if t3 > 0 {
		cm.t3 = t3
	}
}

// QuantizeGradient calculates quantization region Q based on difference D.
func (cm *ContextModel) QuantizeGradient(D int) int {
	switch {
	case D <= -cm.t3:
		return -4
	case D <= -cm.t2:
		return -3
	case D <= -cm.t1:
		return -2
	case D < -cm.near:
		return -1
	case D <= cm.near:
		return 0
	case D < cm.t1:
		return 1
	case D < cm.t2:
		return 2
	case D < cm.t3:
		return 3
	}
	return 4
}

// contextID folds the quantized gradients into a signed id whose sign is
// that of the first non-zero gradient.
func (cm *ContextModel) contextID(D1, D2, D3 int) int {
	return (cm.QuantizeGradient(D1)*9+cm.QuantizeGradient(D2))*9 + cm.QuantizeGradient(D3)
}

// GetContextIndex computes Q from gradients D1, D2, D3 and the sign that
// normalizes it into [0, 364].
func (cm *ContextModel) GetContextIndex(D1, D2, D3 int) (int, int) {
	q := cm.contextID(D1, D2, D3)
	if q < 0 {
		return -q, -1
	}
	return q, 1
}

// ComputeK calculates the Golomb-Rice parameter k for context Q.
func (cm *ContextModel) ComputeK(Q int) int {
	k := 0
	for (cm.N[Q] << k) < cm.A[Q] {
		k++
	}
	return k
}

// errorCorrection is -1 when the lossless k=0 mapping must invert the error.
func (cm *ContextModel) errorCorrection(Q, k int) int {
	if k != 0 || cm.near != 0 {
		return 0
	}
	if 2*cm.B[Q]+cm.N[Q]-1 < 0 {
		return -1
	}
	return 0
}

// UpdateStats updates context Q with the modulo-reduced prediction error.
func (cm *ContextModel) UpdateStats(Q int, ErrVal int) {
	a := cm.A[Q] + abs(ErrVal)
	b := cm.B[Q] + ErrVal*(2*cm.near+1)
	n := cm.N[Q]
	if n == cm.reset {
		a >>= 1
		b >>= 1
		n >>= 1
	}
	n++
	cm.A[Q] = a
	cm.N[Q] = n

	if b+n <= 0 {
		b += n
		if b <= -n {
			b = -n + 1
		}
		if cm.C[Q] > minC {
			cm.C[Q]--
		}
	} else if b > 0 {
		b -= n
		if b > 0 {
			b = 0
		}
		if cm.C[Q] < maxC {
			cm.C[Q]++
		}
	}
	cm.B[Q] = b
}

// runK is the Golomb parameter of a run interruption context.
func (cm *ContextModel) runK(ri int) int {
	temp := cm.RA[ri] + (cm.RN[ri]>>1)*ri
	k := 0
	for (cm.RN[ri] << k) < temp {
		k++
	}
	return k
}

// runMap reports whether the run interruption error is mapped with the
// alternative parity.
func (cm *ContextModel) runMap(ri, errVal, k int) bool {
	switch {
	case k == 0 && errVal > 0 && 2*cm.RNn[ri] < cm.RN[ri]:
		return true
	case errVal < 0 && 2*cm.RNn[ri] >= cm.RN[ri]:
		return true
	case errVal < 0 && k != 0:
		return true
	}
	return false
}

// runUnmap recovers the signed error from the mapped run interruption value.
func (cm *ContextModel) runUnmap(ri, emErrVal, k int) int {
	temp := emErrVal + ri
	mapped := temp & 1
	absVal := (temp + mapped) / 2
	if (k != 0 || 2*cm.RNn[ri] >= cm.RN[ri]) == (mapped == 1) {
		return -absVal
	}
	return absVal
}

// updateRun updates a run interruption context.
func (cm *ContextModel) updateRun(ri, errVal, emErrVal int) {
	if errVal < 0 {
		cm.RNn[ri]++
	}
	cm.RA[ri] += (emErrVal + 1 - ri) >> 1
	if cm.RN[ri] == cm.reset {
		cm.RA[ri] >>= 1
		cm.RN[ri] >>= 1
		cm.RNn[ri] >>= 1
	}
	cm.RN[ri]++
}

// quantize maps a prediction error onto the near-lossless step grid.
func (cm *ContextModel) quantize(e int) int {
	switch {
	case cm.near == 0:
		return e
	case e > cm.near:
		return (e + cm.near) / (2*cm.near + 1)
	case e < -cm.near:
		return -(cm.near - e) / (2*cm.near + 1)
	}
	return 0
}

// moduloRange folds an error into [-(RANGE-1)/2, RANGE/2].
func (cm *ContextModel) moduloRange(e int) int {
	if e < 0 {
		e += cm.rangeVal
	}
	if e >= (cm.rangeVal+1)/2 {
		e -= cm.rangeVal
	}
	return e
}

// reconstruct rebuilds a sample from its prediction and reduced error.
func (cm *ContextModel) reconstruct(px, errVal int) int {
	step := 2*cm.near + 1
	v := px + errVal*step
	if v < -cm.near {
		v += cm.rangeVal * step
	} else if v > cm.maxVal+cm.near {
		v -= cm.rangeVal * step
	}
	return clip(v, 0, cm.maxVal)
}
