package jpegli

// huffmanTable holds a DC table (lossless coding uses SSSS categories 0..16).
type huffmanTable struct {
	bits   [17]int    // BITS: number of codes of each length
	values []byte     // HUFFVAL: symbol values
	codes  []uint16   // Computed: Huffman codes
	sizes  []int      // Computed: code sizes
	lookup [256]int16 // Fast lookup for 8-bit codes

	maxcode [18]int
	valptr  [17]int
	ehufco  [17]uint16 // encoder code per symbol
	ehufsi  [17]int    // encoder size per symbol, 0 when absent
}

// buildOptimalTable builds a table from symbol frequencies (T.81 Annex K.2).
// A reserved symbol keeps the all-ones code unused.
func buildOptimalTable(counts [17]int) *huffmanTable {
	const reserved = 17
	var freq [18]int
	copy(freq[:], counts[:])
	freq[reserved] = 1

	var codesize [18]int
	var others [18]int
	for i := range others {
		others[i] = -1
	}

	for {
		c1, c2 := -1, -1
		for i := range freq {
			if freq[i] > 0 && (c1 < 0 || freq[i] <= freq[c1]) {
				c1 = i
			}
		}
		for i := range freq {
			if freq[i] > 0 && i != c1 && (c2 < 0 || freq[i] <= freq[c2]) {
				c2 = i
			}
		}
		if c2 < 0 {
			break
		}
		freq[c1] += freq[c2]
		freq[c2] = 0

		codesize[c1]++
		for others[c1] >= 0 {
			c1 = others[c1]
			codesize[c1]++
		}
		others[c1] = c2
		codesize[c2]++
		for others[c2] >= 0 {
			c2 = others[c2]
			codesize[c2]++
		}
	}

	var bits [33]int
	for _, s := range codesize {
		if s > 0 {
			bits[s]++
		}
	}
	// limit code lengths to 16 bits
	for i := 32; i > 16; i-- {
		for bits[i] > 0 {
			j := i - 2
			for bits[j] == 0 {
				j--
			}
			bits[i] -= 2
			bits[i-1]++
			bits[j+1] += 2
			bits[j]--
		}
	}
	i := 16
	for bits[i] == 0 {
		i--
	}
	bits[i]-- // drop the reserved code

	ht := &huffmanTable{}
	copy(ht.bits[1:], bits[1:17])
	for size := 1; size <= 32; size++ {
		for sym := 0; sym < reserved; sym++ {
			if codesize[sym] == size {
				ht.values = append(ht.values, byte(sym))
			}
		}
	}
	ht.generate()
	return ht
}

// generate derives codes, sizes and the decoding tables from bits and values
// (T.81 Annex C and F.2.2.3).
func (ht *huffmanTable) generate() {
	var totalCodes int
	for i := 1; i <= 16; i++ {
		totalCodes += ht.bits[i]
	}
	ht.values = ht.values[:min(len(ht.values), totalCodes)]
	totalCodes = len(ht.values)

	ht.codes = make([]uint16, totalCodes)
	ht.sizes = make([]int, totalCodes)

	k := 0
	for i := 1; i <= 16 && k < totalCodes; i++ {
		for j := 0; j < ht.bits[i] && k < totalCodes; j++ {
			ht.sizes[k] = i
			k++
		}
	}

	code := uint16(0)
	si := 0
	if totalCodes > 0 {
		si = ht.sizes[0]
	}
	for k := 0; k < totalCodes; k++ {
		for ht.sizes[k] > si {
			code <<= 1
			si++
		}
		ht.codes[k] = code
		code++
	}

	k = 0
	for l := 1; l <= 16; l++ {
		if ht.bits[l] == 0 {
			ht.maxcode[l] = -1
			continue
		}
		ht.valptr[l] = k
		k += ht.bits[l]
		ht.maxcode[l] = int(ht.codes[min(k, totalCodes)-1])
	}
	ht.maxcode[17] = 0xFFFFF

	for i := range ht.lookup {
		ht.lookup[i] = -1
	}
	for k := 0; k < totalCodes; k++ {
		size := ht.sizes[k]
		if size <= 8 {
			c := int(ht.codes[k]) << (8 - size)
			for i := 0; i < 1<<(8-size); i++ {
				// size in the high byte, value in the low byte
				ht.lookup[c+i] = int16(size)<<8 | int16(ht.values[k])
			}
		}
	}

	ht.ehufsi = [17]int{}
	for k, v := range ht.values {
		if int(v) < len(ht.ehufsi) {
			ht.ehufco[v] = ht.codes[k]
			ht.ehufsi[v] = ht.sizes[k]
		}
	}
}

// categorize returns the SSSS category for a difference value
func categorize(diff int) int {
	if diff < 0 {
		diff = -diff
	}
	ssss := 0
	for diff > 0 {
		diff >>= 1
		ssss++
	}
	return ssss
}

// extend converts a partial bit sequence to a signed integer
func extend(bits, ssss int) int {
	if ssss == 0 {
		return 0
	}
	vt := 1 << (ssss - 1)
	if bits < vt {
		return bits - (1<<ssss - 1)
	}
	return bits
}
