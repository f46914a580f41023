package insight

// Thresholds are the fixed cut-offs used by the insight rules.
type Thresholds struct {
	TrendSlope     float64
	StrengthStrong float64
	StrengthMedium float64

	Inflation float64
	Deflation float64

	VolatilityLow    float64
	VolatilityMedium float64

	ConfidenceHigh   float64
	ConfidenceMedium float64

	MarketMinPoints      int
	MarketTrendWindow    int
	MarketVolWindow      int
	MarketVolatilityHigh float64
	MarketVolatilityLow  float64

	AccuracyWindow    int
	AccuracyHighStd   float64
	AccuracyLowStd    float64
	AccuracyHighScale float64
	AccuracyLowScale  float64

	MinHistory  int
	MinForecast int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		TrendSlope:     0.1,
		StrengthStrong: 0.5,
		StrengthMedium: 0.2,

		Inflation: 2,
		Deflation: -2,

		VolatilityLow:    0.5,
		VolatilityMedium: 1.5,

		ConfidenceHigh:   1.0,
		ConfidenceMedium: 2.0,

		MarketMinPoints:      20,
		MarketTrendWindow:    20,
		MarketVolWindow:      12,
		MarketVolatilityHigh: 2.0,
		MarketVolatilityLow:  0.5,

		AccuracyWindow:    10,
		AccuracyHighStd:   2.0,
		AccuracyLowStd:    0.5,
		AccuracyHighScale: 1.3,
		AccuracyLowScale:  0.8,

		MinHistory:  10,
		MinForecast: 1,
	}
}
