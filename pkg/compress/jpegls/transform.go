package jpegls

// HP colour transforms operate modulo 2^bits on the first three components
// and are exactly invertible.

func forwardTransform(img [][]int, t ColorTransform, bits int) {
	mask := 1<<bits - 1
	half := 1 << (bits - 1)
	quarter := 1 << (bits - 2)
	r, g, b := img[0], img[1], img[2]
	for i := range r {
		R, G, B := r[i], g[i], b[i]
		switch t {
		case TransformHP1:
			r[i] = (R - G + half) & mask
			b[i] = (B - G + half) & mask
		case TransformHP2:
			r[i] = (R - G + half) & mask
			b[i] = (B - ((R + G) >> 1) + half) & mask
		case TransformHP3:
			v2 := (B - G + half) & mask
			v3 := (R - G + half) & mask
			r[i] = (G + ((v2 + v3) >> 2) - quarter) & mask
			g[i] = v2
			b[i] = v3
		}
	}
}

func inverseTransform(img [][]int, t ColorTransform, bits int) {
	mask := 1<<bits - 1
	half := 1 << (bits - 1)
	quarter := 1 << (bits - 2)
	v1s, v2s, v3s := img[0], img[1], img[2]
	for i := range v1s {
		v1, v2, v3 := v1s[i], v2s[i], v3s[i]
		switch t {
		case TransformHP1:
			v1s[i] = (v1 + v2 - half) & mask
			v3s[i] = (v3 + v2 - half) & mask
		case TransformHP2:
			R := (v1 + v2 - half) & mask
			v1s[i] = R
			v3s[i] = (v3 + ((R + v2) >> 1) - half) & mask
		case TransformHP3:
			G := (v1 - ((v2 + v3) >> 2) + quarter) & mask
			v1s[i] = (v3 + G - half) & mask
			v2s[i] = G
			v3s[i] = (v2 + G - half) & mask
		}
	}
}
