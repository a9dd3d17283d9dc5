package speech

import "strconv"

const (
	// MinSpeed is the slowest supported speed multiplier.
	MinSpeed = 0.5

	// MaxSpeed is the fastest supported speed multiplier.
	MaxSpeed = 2.0
)

// SpeedSteps are the speeds offered by the speed keys.
var SpeedSteps = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 1.75, 2.0}

// NextSpeed returns the next higher speed step, or the current speed if it
// is already the fastest.
func NextSpeed(current float64) float64 {
	for _, s := range SpeedSteps {
		if s > current {
			return s
		}
	}
	return current
}

// PrevSpeed returns the next lower speed step, or the current speed if it is
// already the slowest.
func PrevSpeed(current float64) float64 {
	for i := len(SpeedSteps) - 1; i >= 0; i-- {
		if SpeedSteps[i] < current {
			return SpeedSteps[i]
		}
	}
	return current
}

// FormatSpeed renders a speed multiplier compactly.
func FormatSpeed(speed float64) string {
	if speed == float64(int(speed)) {
		return strconv.FormatFloat(speed, 'f', 1, 64) + "x"
	}
	return strconv.FormatFloat(speed, 'f', -1, 64) + "x"
}

// SpeedToRate maps a speed multiplier onto the -100..100 rate scale used by
// speech engines, 1.0 being 0.
func SpeedToRate(speed float64) int {
	if speed >= 1 {
		return clampInt(int((speed-1)/(MaxSpeed-1)*100), 0, 100)
	}
	return clampInt(int((speed-1)/(1-MinSpeed)*100), -100, 0)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// PitchToRate maps a pitch multiplier (0.0 to 2.0) onto the -100..100 scale.
func PitchToRate(pitch float64) int {
	return clampInt(int((pitch-1)*100), -100, 100)
}
