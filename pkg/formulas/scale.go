package formulas

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Scale maps value linearly onto 0..100 where worst scores 0 and best scores 100,
// clamping outside the band. Works for both rising (best > worst) and falling bands.
// A degenerate band (best == worst) scores a neutral 50.
func Scale(value, worst, best float64) float64 {
	if best == worst {
		return 50
	}
	return Clamp((value-worst)/(best-worst)*100, 0, 100)
}

// Band is the pair of input values scoring 100 (Best) and 0 (Worst)
type Band struct {
	Best  float64 `yaml:"best"`
	Worst float64 `yaml:"worst"`
}

// Score maps v onto the band via Scale
func (b Band) Score(v float64) float64 {
	return Scale(v, b.Worst, b.Best)
}
