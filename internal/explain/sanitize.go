package explain

// Sanitize returns a copy of v with the sentinel positions zeroed. Index 0
// is always the start sentinel. For an unpadded sequence the end sentinel
// sits at the last index. For a padded one it is taken to be the highest
// index still non-zero, on the assumption that padding positions carry no
// salience. That assumption is not checked: stray attention on a padding
// position zeroes the wrong token.
func Sanitize(v []float64, padded bool) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	if len(out) == 0 {
		return out
	}

	out[0] = 0
	if !padded {
		out[len(out)-1] = 0
		return out
	}
	for i := len(out) - 1; i > 0; i-- {
		if out[i] != 0 {
			out[i] = 0
			break
		}
	}
	return out
}
