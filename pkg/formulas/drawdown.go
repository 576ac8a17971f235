package formulas

// MaxDrawdown returns the largest peak-to-trough decline of a value series
// as a non-positive fraction (-0.25 means a 25% fall from peak).
// Returns nil when fewer than two values are given.
func MaxDrawdown(values []float64) *float64 {
	if len(values) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (v - peak) / peak
			if dd < maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	return &maxDrawdown
}
