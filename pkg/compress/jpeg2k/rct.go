package jpeg2k

// Multiple component transforms of ITU-T T.800 Annex G. Both operate in
// place on the first three components after the DC level shift.

// ForwardRCT applies the reversible colour transform (RGB -> Y Cb Cr) in place.
func ForwardRCT(r, g, b []int) {
	for i := range r {
		ri, gi, bi := r[i], g[i], b[i]
		r[i] = (ri + 2*gi + bi) >> 2 // Y
		g[i] = bi - gi                // Cb
		b[i] = ri - gi                // Cr
	}
}

// InverseRCT undoes ForwardRCT in place.
func InverseRCT(y, cb, cr []int) {
	for i := range y {
		yi, cbi, cri := y[i], cb[i], cr[i]
		g := yi - ((cbi + cri) >> 2)
		y[i] = cri + g  // R
		cb[i] = g       // G
		cr[i] = cbi + g // B
	}
}

// ForwardICT applies the irreversible colour transform (RGB -> Y Cb Cr) in place.
func ForwardICT(r, g, b []float64) {
	for i := range r {
		ri, gi, bi := r[i], g[i], b[i]
		r[i] = 0.299*ri + 0.587*gi + 0.114*bi
		g[i] = -0.16875*ri - 0.33126*gi + 0.5*bi
		b[i] = 0.5*ri - 0.41869*gi - 0.08131*bi
	}
}

// InverseICT undoes ForwardICT in place.
func InverseICT(y, cb, cr []float64) {
	for i := range y {
		yi, cbi, cri := y[i], cb[i], cr[i]
		y[i] = yi + 1.402*cri
		cb[i] = yi - 0.34413*cbi - 0.71414*cri
		cr[i] = yi + 1.772*cbi
	}
}
