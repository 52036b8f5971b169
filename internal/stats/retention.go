package stats

const (
	RetentionPoints = 10
	RetentionStep   = 0.08
	RetentionFloor  = 0.1
)

// SyntheticRetention builds a placeholder retention curve when the backend
// measured none. The first point is seed clamped to [0,1]; each following
// point drops by RetentionStep and never goes below RetentionFloor.
// The result is an estimate, not a measurement.
func SyntheticRetention(seed float64) []float64 {
	start := Clamp(seed, 0, 1)
	curve := make([]float64, RetentionPoints)
	for i := range curve {
		v := start - float64(i)*RetentionStep
		if v < RetentionFloor {
			v = RetentionFloor
		}
		curve[i] = Round2(v)
	}
	return curve
}
