package features

import (
	"IPHForecast/internal/domain"
	"IPHForecast/internal/domain/models"
)

// LatestSource is the part of Store the projector reads.
type LatestSource interface {
	Len() int
	LatestFeatures() (models.FeatureVector, error)
}

// Projector synthesizes future feature vectors from the latest real one
// without touching the series again.
type Projector struct {
	src LatestSource
}

func NewProjector(src LatestSource) *Projector {
	return &Projector{src: src}
}

// Project returns steps vectors. Element 0 is the latest real vector; each later
// element is Next of the previous one.
func (p *Projector) Project(steps int) ([]models.FeatureVector, error) {
	if steps < 1 {
		return nil, domain.ErrInvalidSteps
	}
	if p.src.Len() < minToProj {
		return nil, domain.ErrInsufficientHistory
	}
	cur, err := p.src.LatestFeatures()
	if err != nil {
		return nil, err
	}
	out := make([]models.FeatureVector, 0, steps)
	for i := 0; i < steps; i++ {
		out = append(out, cur)
		cur = Next(cur)
	}
	return out, nil
}

// Next shifts the lag chain by one step. lag_1 is carried over unchanged (no
// prediction is fed back) and ma_7 averages only the four lags.
func Next(v models.FeatureVector) models.FeatureVector {
	n := models.FeatureVector{
		Lag1: v.Lag1,
		Lag2: v.Lag1,
		Lag3: v.Lag2,
		Lag4: v.Lag3,
	}
	n.MA3 = (n.Lag1 + n.Lag2 + n.Lag3) / 3
	n.MA7 = (n.Lag1 + n.Lag2 + n.Lag3 + n.Lag4) / 4
	return n
}
