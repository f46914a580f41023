package domain

import "errors"

var (
	// ErrEmptyDataset is returned when the series holds no observations.
	ErrEmptyDataset = errors.New("dataset is empty")

	// ErrInsufficientHistory is returned when a projection needs more rows than the series has.
	ErrInsufficientHistory = errors.New("insufficient history for projection")

	// ErrInvalidSteps is returned for a non-positive projection horizon.
	ErrInvalidSteps = errors.New("steps must be positive")

	// ErrNoPredictorAvailable is returned when no predictor has been loaded.
	ErrNoPredictorAvailable = errors.New("no predictor available")

	// ErrStaleObservation is returned when an appended date is not after the latest row.
	ErrStaleObservation = errors.New("observation is not newer than the latest row")

	// ErrInsufficientPerformanceData is returned when a performance snapshot cannot be built.
	ErrInsufficientPerformanceData = errors.New("insufficient data for performance analysis")
)

// ErrUnknownModel is returned by lookups that must not fall back to the default model.
var ErrUnknownModel = errors.New("model not available")
