package forecast

import (
	"fmt"
	"math"

	"IPHForecast/internal/domain/models"
	"IPHForecast/internal/domain/repository"
	domsvc "IPHForecast/internal/domain/service"
	"IPHForecast/pkg/config"
	"IPHForecast/pkg/logger"

	"gonum.org/v1/gonum/stat"
)

// BandConfig tunes ensemble band estimation. Z95 scales the member spread
// when the requested level is 0.95; ZOther is used for any other level.
type BandConfig struct {
	MaxMembers     int
	Z95            float64
	ZOther         float64
	FallbackMargin float64
}

func DefaultBandConfig() BandConfig {
	return BandConfig{MaxMembers: 50, Z95: 1.96, ZOther: 2.58, FallbackMargin: 0.5}
}

func BandConfigFromConfig(cfg *config.Config) BandConfig {
	return BandConfig{
		MaxMembers:     cfg.Models.Tables.MaxMembers,
		Z95:            cfg.Models.Tables.Z95,
		ZOther:         cfg.Models.Tables.ZOther,
		FallbackMargin: cfg.Models.Tables.FallbackMargin,
	}
}

// Estimator produces a point prediction with a confidence band.
type Estimator struct {
	registry *Registry
	tables   Tables
	band     BandConfig
	metrics  repository.Metrics
	l        *logger.Logger
}

func NewEstimator(r *Registry, t Tables, b BandConfig, m repository.Metrics, l *logger.Logger) *Estimator {
	if m == nil {
		m = repository.NopMetrics{}
	}
	if l == nil {
		l = logger.NewNop()
	}
	dflt := DefaultBandConfig()
	if b.MaxMembers <= 0 {
		b.MaxMembers = dflt.MaxMembers
	}
	if b.Z95 <= 0 {
		b.Z95 = dflt.Z95
	}
	if b.ZOther <= 0 {
		b.ZOther = dflt.ZOther
	}
	return &Estimator{registry: r, tables: t, band: b, metrics: m, l: l}
}

func (e *Estimator) Registry() *Registry { return e.registry }
func (e *Estimator) Tables() Tables      { return e.tables }

// PredictWithBand resolves name (falling back to the default model) and returns
// the band along with the name of the model that produced it.
func (e *Estimator) PredictWithBand(name string, fv models.FeatureVector, level float64) (models.Band, string, error) {
	p, err := e.registry.Resolve(name)
	if err != nil {
		return models.Band{}, "", err
	}
	base, err := p.Predict(fv)
	if err != nil {
		return models.Band{}, p.Name(), fmt.Errorf("predict %s: %w", p.Name(), err)
	}

	if ens, ok := p.(domsvc.EnsemblePredictor); ok && p.Kind() == domsvc.KindEnsemble && len(ens.Members()) >= 2 {
		return e.ensembleBand(ens, fv, level, base), p.Name(), nil
	}

	m := e.tables.MarginFor(p.Name())
	return models.Band{Point: base, Lower: base - m, Upper: base + m}, p.Name(), nil
}

func (e *Estimator) ensembleBand(ens domsvc.EnsemblePredictor, fv models.FeatureVector, level, base float64) models.Band {
	members := ens.Members()
	if len(members) > e.band.MaxMembers {
		members = members[:e.band.MaxMembers]
	}
	preds := make([]float64, 0, len(members))
	for _, m := range members {
		y, err := m.Predict(fv)
		if err != nil {
			e.metrics.RecordSubEstimatorFailure(ens.Name())
			e.l.Debug("sub-estimator failed", logger.String("model", ens.Name()), logger.String("member", m.Name()), logger.Error(err))
			continue
		}
		preds = append(preds, y)
	}
	if len(preds) == 0 {
		fm := e.band.FallbackMargin
		return models.Band{Point: base, Lower: base - fm, Upper: base + fm}
	}

	mean, std := popMeanStd(preds)
	z := e.band.ZOther
	if level == 0.95 {
		z = e.band.Z95
	}
	return models.Band{Point: mean, Lower: mean - z*std, Upper: mean + z*std}
}

func popMeanStd(xs []float64) (float64, float64) {
	mean, variance := stat.PopMeanVariance(xs, nil)
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}
