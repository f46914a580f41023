package forecast

import "IPHForecast/pkg/config"

// Tables holds the per-model accuracy and fallback margin constants.
type Tables struct {
	Accuracy      map[string]float64
	Margin        map[string]float64
	DefaultAcc    float64
	DefaultMargin float64
}

// DefaultTables mirrors the shipped configuration.
func DefaultTables() Tables {
	return Tables{
		Accuracy: map[string]float64{
			"Random_Forest":    0.85,
			"LightGBM":         0.92,
			"KNN":              1.15,
			"XGBoost_Advanced": 0.88,
		},
		Margin: map[string]float64{
			"Random_Forest":    0.5,
			"LightGBM":         0.6,
			"KNN":              0.8,
			"XGBoost_Advanced": 0.5,
		},
		DefaultAcc:    1.0,
		DefaultMargin: 0.5,
	}
}

func TablesFromConfig(cfg *config.Config) Tables {
	t := cfg.Models.Tables
	return Tables{
		Accuracy:      t.Accuracy,
		Margin:        t.Margin,
		DefaultAcc:    t.DefaultAcc,
		DefaultMargin: t.DefaultMargin,
	}
}

// AccuracyFor returns the model's mean absolute error, or the default.
func (t Tables) AccuracyFor(name string) float64 {
	if v, ok := t.Accuracy[name]; ok {
		return v
	}
	return t.DefaultAcc
}

// MarginFor returns the model's fixed band half-width, or the default.
func (t Tables) MarginFor(name string) float64 {
	if v, ok := t.Margin[name]; ok {
		return v
	}
	return t.DefaultMargin
}
