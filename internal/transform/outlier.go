package transform

// FlagOutliers marks points that jump away from both sides of their
// neighborhood in the same direction. A point is flagged when it sits
// more than threshold above (or below) the average of up to `before`
// preceding and up to `after` following values, on both sides at once.
// Points at the edges with an empty side are never flagged.
func FlagOutliers(values []float64, before, after int, threshold float64) []bool {
	flags := make([]bool, len(values))
	for i, v := range values {
		lo := i - before
		if lo < 0 {
			lo = 0
		}
		hi := i + after
		if hi > len(values)-1 {
			hi = len(values) - 1
		}
		if lo == i || hi == i {
			continue
		}

		var prevSum, nextSum float64
		for _, p := range values[lo:i] {
			prevSum += p
		}
		for _, n := range values[i+1 : hi+1] {
			nextSum += n
		}
		prevAvg := prevSum / float64(i-lo)
		nextAvg := nextSum / float64(hi-i)

		up := v-prevAvg > threshold && v-nextAvg > threshold
		down := prevAvg-v > threshold && nextAvg-v > threshold
		flags[i] = up || down
	}
	return flags
}

// RollingAverage computes a trailing average over the last `window`
// values including the current one. Shorter prefixes average what is
// available.
func RollingAverage(values []float64, window int) []float64 {
	if window <= 0 {
		window = 1
	}
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}
