package models

import "time"

// Band is a point prediction with its heuristic confidence interval.
type Band struct {
	Point float64 `json:"prediction"`
	Lower float64 `json:"lower_bound"`
	Upper float64 `json:"upper_bound"`
}

// Width returns upper minus lower.
func (b Band) Width() float64 { return b.Upper - b.Lower }

// ForecastPoint is one projected week.
type ForecastPoint struct {
	Date       time.Time `json:"date"`
	Prediction float64   `json:"prediction"`
	LowerBound float64   `json:"lower_bound"`
	UpperBound float64   `json:"upper_bound"`
}

// Trend labels.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"

	StrengthStrong = "strong"
	StrengthMedium = "medium"
	StrengthWeak   = "weak"
)

// Level labels shared by volatility and confidence classification.
const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

type Trend struct {
	Direction         string `json:"direction"`
	Strength          string `json:"strength"`
	ForecastDirection string `json:"forecast_direction"`
}

type Volatility struct {
	Value              float64 `json:"value"`
	Level              string  `json:"level"`
	ForecastVolatility float64 `json:"forecast_volatility"`
}

// PerformanceSnapshot summarizes one model's forecast for the insight rules.
// Built per request and never persisted.
type PerformanceSnapshot struct {
	ModelName          string     `json:"model_name"`
	Prediction         float64    `json:"prediction"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	ConfidenceWidth    float64    `json:"confidence_width"`
	ConfidenceLevel    string     `json:"confidence_level"`
	Trend              Trend      `json:"trend"`
	Volatility         Volatility `json:"volatility"`
	RecentAccuracy     float64    `json:"recent_accuracy"`
}

// ForecastRun is a journaled forecast produced by the scheduler or on demand.
type ForecastRun struct {
	ID        string          `json:"id"`
	Model     string          `json:"model"`
	Trigger   string          `json:"trigger"`
	CreatedAt time.Time       `json:"created_at"`
	LastDate  time.Time       `json:"last_date"`
	Points    []ForecastPoint `json:"points"`
}
