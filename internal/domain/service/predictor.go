package service

import "IPHForecast/internal/domain/models"

// PredictorKind tags the predictor variant so callers dispatch without probing internals.
type PredictorKind string

const (
	KindPoint    PredictorKind = "point"
	KindEnsemble PredictorKind = "ensemble"
)

// Predictor produces a deterministic point prediction for a feature vector.
// Implementations are immutable after load and safe for concurrent use.
type Predictor interface {
	Name() string
	Kind() PredictorKind
	Predict(fv models.FeatureVector) (float64, error)
}

// EnsemblePredictor additionally exposes its fixed collection of sub-predictors.
type EnsemblePredictor interface {
	Predictor
	Members() []Predictor
}
