package insight

import (
	"math"

	"IPHForecast/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// Slope returns the least-squares slope of values against their index.
func Slope(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	x := make([]float64, len(values))
	for i := range x {
		x[i] = float64(i)
	}
	_, beta := stat.LinearRegression(x, values, nil, false)
	return beta
}

// PopStd is the population standard deviation; 0 for empty input.
func PopStd(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	_, v := stat.PopMeanVariance(values, nil)
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

func TrendDirection(values []float64, th Thresholds) string {
	if len(values) < 2 {
		return models.TrendFlat
	}
	s := Slope(values)
	switch {
	case s > th.TrendSlope:
		return models.TrendUp
	case s < -th.TrendSlope:
		return models.TrendDown
	default:
		return models.TrendFlat
	}
}

func TrendStrength(values []float64, th Thresholds) string {
	if len(values) < 2 {
		return models.StrengthWeak
	}
	s := math.Abs(Slope(values))
	switch {
	case s > th.StrengthStrong:
		return models.StrengthStrong
	case s > th.StrengthMedium:
		return models.StrengthMedium
	default:
		return models.StrengthWeak
	}
}

func VolatilityLevel(std float64, th Thresholds) string {
	switch {
	case std < th.VolatilityLow:
		return models.LevelLow
	case std < th.VolatilityMedium:
		return models.LevelMedium
	default:
		return models.LevelHigh
	}
}

func ConfidenceLevel(width float64, th Thresholds) string {
	switch {
	case width < th.ConfidenceHigh:
		return models.LevelHigh
	case width < th.ConfidenceMedium:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

func lastN(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
