package jpegls

// scanCoder codes the lines of one scan. Encoding sets bw, decoding sets
// br; every decision is shared so both directions stay in lockstep.
type scanCoder struct {
	cm     *ContextModel
	bw     *BitWriter
	br     *BitReader
	width  int
	qs     []int
	failed bool
}

func newScanCoder(cm *ContextModel, width, components int) *scanCoder {
	return &scanCoder{cm: cm, width: width, qs: make([]int, components)}
}

func (s *scanCoder) encoding() bool { return s.bw != nil }

// codeScan walks the image rows for the given components. img holds one
// Width*Height plane per component; the encoder reads it, the decoder fills it.
func (s *scanCoder) codeScan(img [][]int, comps []int, ilv InterleaveMode, height int) {
	w := s.width
	n := len(comps)
	prev := make([][]int, n)
	cur := make([][]int, n)
	for i := range comps {
		prev[i] = make([]int, w+2)
		cur[i] = make([]int, w+2)
	}
	runIdx := make([]int, n)

	for y := 0; y < height; y++ {
		row := y * w
		if s.encoding() {
			for i, c := range comps {
				copy(cur[i][1:w+1], img[c][row:row+w])
			}
		}
		if ilv == InterleaveSample && n > 1 {
			s.codeLine(cur, prev, &runIdx[0])
		} else {
			for i := range comps {
				s.codeLine(cur[i:i+1], prev[i:i+1], &runIdx[i])
			}
		}
		if !s.encoding() {
			for i, c := range comps {
				copy(img[c][row:row+w], cur[i][1:w+1])
			}
		}
		prev, cur = cur, prev
	}
}

// codeLine codes one line of n components sample-interleaved. Buffers hold
// the sample at x in index x+1 with the edge samples around them.
func (s *scanCoder) codeLine(cur, prev [][]int, runIdx *int) {
	w := s.width
	n := len(cur)
	for c := 0; c < n; c++ {
		prev[c][w+1] = prev[c][w]
		cur[c][0] = prev[c][1]
	}
	qs := s.qs[:n]
	for i := 1; i <= w; {
		flat := true
		for c := 0; c < n; c++ {
			ra, rb, rc, rd := cur[c][i-1], prev[c][i], prev[c][i-1], prev[c][i+1]
			qs[c] = s.cm.contextID(rd-rb, rb-rc, rc-ra)
			if qs[c] != 0 {
				flat = false
			}
		}
		if flat {
			i += s.runMode(cur, prev, i, runIdx)
			continue
		}
		for c := 0; c < n; c++ {
			cur[c][i] = s.regular(qs[c], PredictMED(cur[c][i-1], prev[c][i], prev[c][i-1]), cur[c][i])
		}
		i++
	}
}

// regular codes one sample in regular mode and returns its reconstruction.
func (s *scanCoder) regular(qs, pmed, x int) int {
	cm := s.cm
	sign := 1
	if qs < 0 {
		sign, qs = -1, -qs
	}
	k := cm.ComputeK(qs)
	px := clip(pmed+sign*cm.C[qs], 0, cm.maxVal)
	corr := cm.errorCorrection(qs, k)

	var errVal int
	if s.encoding() {
		errVal = cm.moduloRange(cm.quantize(sign * (x - px)))
		s.bw.WriteGolomb(k, mapError(corr^errVal), cm.limit, cm.qbpp)
	} else {
		m, ok := s.br.ReadGolomb(k, cm.limit, cm.qbpp)
		if !ok {
			s.failed = true
		}
		errVal = unmapError(m) ^ corr
	}
	cm.UpdateStats(qs, errVal)
	return cm.reconstruct(px, sign*errVal)
}

// runMode codes a run starting at buffer index i and the sample that
// interrupts it. It returns the number of samples consumed.
func (s *scanCoder) runMode(cur, prev [][]int, i int, runIdx *int) int {
	n := len(cur)
	remaining := s.width - i + 1

	runLen := 0
	if s.encoding() {
		for runLen < remaining && s.withinNear(cur, i+runLen, i-1) {
			for c := 0; c < n; c++ {
				cur[c][i+runLen] = cur[c][i-1]
			}
			runLen++
		}
		s.encodeRun(runLen, runLen == remaining, runIdx)
	} else {
		runLen = s.decodeRun(remaining, runIdx)
		for k := 0; k < runLen; k++ {
			for c := 0; c < n; c++ {
				cur[c][i+k] = cur[c][i-1]
			}
		}
	}
	if runLen == remaining {
		return runLen
	}

	j := i + runLen
	for c := 0; c < n; c++ {
		cur[c][j] = s.interruption(cur[c][j], cur[c][i-1], prev[c][j], *runIdx, n > 1)
	}
	if *runIdx > 0 {
		*runIdx--
	}
	return runLen + 1
}

func (s *scanCoder) withinNear(cur [][]int, pos, ref int) bool {
	for c := range cur {
		if abs(cur[c][pos]-cur[c][ref]) > s.cm.near {
			return false
		}
	}
	return true
}

func (s *scanCoder) encodeRun(runLen int, eol bool, runIdx *int) {
	cm := s.cm
	for runLen >= 1<<cm.J[*runIdx] {
		s.bw.WriteBit(1)
		runLen -= 1 << cm.J[*runIdx]
		if *runIdx < 31 {
			*runIdx++
		}
	}
	if eol {
		if runLen != 0 {
			s.bw.WriteBit(1)
		}
		return
	}
	s.bw.WriteBit(0)
	s.bw.WriteBits(uint32(runLen), cm.J[*runIdx])
}

func (s *scanCoder) decodeRun(remaining int, runIdx *int) int {
	cm := s.cm
	index := 0
	for s.br.ReadBit() == 1 {
		chunk := 1 << cm.J[*runIdx]
		count := min(chunk, remaining-index)
		index += count
		if count == chunk && *runIdx < 31 {
			*runIdx++
		}
		if index == remaining {
			return index
		}
	}
	index += int(s.br.ReadBits(cm.J[*runIdx]))
	if index > remaining {
		s.failed = true
		index = remaining
	}
	return index
}

// interruption codes the sample ending a run. Multi-component runs always
// use the Ra != Rb context.
func (s *scanCoder) interruption(x, ra, rb, runIdx int, multi bool) int {
	cm := s.cm
	ri, px, sign := 0, rb, 1
	if !multi && abs(ra-rb) <= cm.near {
		ri, px = 1, ra
	} else if rb < ra {
		sign = -1
	}
	k := cm.runK(ri)
	limit := cm.limit - cm.J[runIdx] - 1

	var errVal int
	if s.encoding() {
		errVal = cm.moduloRange(cm.quantize(sign * (x - px)))
		mapped := 0
		if cm.runMap(ri, errVal, k) {
			mapped = 1
		}
		em := 2*abs(errVal) - ri - mapped
		s.bw.WriteGolomb(k, uint32(em), limit, cm.qbpp)
		cm.updateRun(ri, errVal, em)
	} else {
		em, ok := s.br.ReadGolomb(k, limit, cm.qbpp)
		if !ok {
			s.failed = true
		}
		errVal = cm.runUnmap(ri, int(em), k)
		cm.updateRun(ri, errVal, int(em))
	}
	return cm.reconstruct(px, sign*errVal)
}

// mapError folds a signed error onto the non-negative integers.
func mapError(e int) uint32 {
	if e >= 0 {
		return uint32(2 * e)
	}
	return uint32(-2*e - 1)
}

func unmapError(m uint32) int {
	if m&1 == 0 {
		return int(m >> 1)
	}
	return -int((m + 1) >> 1)
}
