package features

import (
	"time"

	"IPHForecast/internal/domain/models"
)

const (
	lagDepth  = 4
	shortMA   = 3
	longMA    = 7
	minToProj = 7
)

// ComputeObservation derives the lag and moving-average columns for a new value.
// prior holds the series values before the new one, oldest first. Lags read the
// trailing lagDepth prior values and zero-pad when fewer exist; both moving
// averages include the new value and average whatever is available.
func ComputeObservation(prior []float64, date time.Time, value float64) models.Observation {
	obs := models.Observation{Date: date, Value: value}
	obs.Lag1 = lagAt(prior, 1)
	obs.Lag2 = lagAt(prior, 2)
	obs.Lag3 = lagAt(prior, 3)
	obs.Lag4 = lagAt(prior, 4)

	window := make([]float64, 0, longMA)
	window = append(window, tail(prior, longMA-1)...)
	window = append(window, value)
	obs.MA3 = mean(tail(window, shortMA))
	obs.MA7 = mean(tail(window, longMA))
	return obs
}

// WhatIf builds the feature vector that a hypothetical current value would produce
// on top of the most recent real observations.
func WhatIf(prior []float64, current float64) models.FeatureVector {
	return ComputeObservation(prior, time.Time{}, current).Features()
}

func lagAt(xs []float64, k int) float64 {
	if len(xs) < k {
		return 0
	}
	return xs[len(xs)-k]
}

func tail(xs []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
