package ring

// Downsample reduces values to at most maxPoints using simple decimation.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
// If len(values) <= maxPoints, all values are copied.
func Downsample(dst []float64, values []float64, maxPoints int) []float64 {
	if maxPoints <= 0 || len(values) <= maxPoints {
		if cap(dst) >= len(values) {
			dst = dst[:len(values)]
			copy(dst, values)
			return dst
		}
		result := make([]float64, len(values))
		copy(result, values)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]float64, 0, maxPoints)
	}

	// Step between kept points
	step := float64(len(values)) / float64(maxPoints)

	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(values) {
			dst = append(dst, values[idx])
		}
	}

	return dst
}
