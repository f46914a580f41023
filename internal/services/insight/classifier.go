package insight

import (
	"fmt"
	"math"

	"IPHForecast/internal/domain"
	"IPHForecast/internal/domain/models"
	"IPHForecast/pkg/logger"
)

// AccuracyTable supplies the nominal MAE of a model.
type AccuracyTable interface {
	AccuracyFor(name string) float64
}

// Classifier turns forecasts and history into advisory records.
// It holds no mutable state.
type Classifier struct {
	th       Thresholds
	accuracy AccuracyTable
	l        *logger.Logger
}

func NewClassifier(th Thresholds, acc AccuracyTable, l *logger.Logger) *Classifier {
	if l == nil {
		l = logger.NewNop()
	}
	return &Classifier{th: th, accuracy: acc, l: l}
}

// AnalyzePerformance builds the snapshot for model from the value history,
// its forecast and the band predicted from the latest features.
func (c *Classifier) AnalyzePerformance(model string, history []float64, forecast []models.ForecastPoint, band models.Band) (*models.PerformanceSnapshot, error) {
	if len(history) < c.th.MinHistory || len(forecast) < c.th.MinForecast {
		return nil, fmt.Errorf("%w: history=%d forecast=%d", domain.ErrInsufficientPerformanceData, len(history), len(forecast))
	}

	recent := lastN(history, c.th.AccuracyWindow)
	vol := PopStd(recent)

	preds := make([]float64, len(forecast))
	for i, p := range forecast {
		preds[i] = p.Prediction
	}

	width := band.Width()
	return &models.PerformanceSnapshot{
		ModelName:          model,
		Prediction:         band.Point,
		ConfidenceInterval: [2]float64{band.Lower, band.Upper},
		ConfidenceWidth:    width,
		ConfidenceLevel:    ConfidenceLevel(width, c.th),
		Trend: models.Trend{
			Direction:         TrendDirection(recent, c.th),
			Strength:          TrendStrength(recent, c.th),
			ForecastDirection: TrendDirection(preds, c.th),
		},
		Volatility: models.Volatility{
			Value:              vol,
			Level:              VolatilityLevel(vol, c.th),
			ForecastVolatility: PopStd(preds),
		},
		RecentAccuracy: c.EstimateRecentAccuracy(model, history),
	}, nil
}

// EstimateRecentAccuracy scales the model's nominal MAE by recent volatility.
func (c *Classifier) EstimateRecentAccuracy(model string, history []float64) float64 {
	base := 1.0
	if c.accuracy != nil {
		base = c.accuracy.AccuracyFor(model)
	}
	std := PopStd(lastN(history, c.th.AccuracyWindow))
	switch {
	case std > c.th.AccuracyHighStd:
		return base * c.th.AccuracyHighScale
	case std < c.th.AccuracyLowStd:
		return base * c.th.AccuracyLowScale
	default:
		return base
	}
}

// ModelInsights applies the prediction, confidence and volatility rules.
// It never fails; problems become a single error record.
func (c *Classifier) ModelInsights(s *models.PerformanceSnapshot) (out []models.InsightRecord) {
	defer func() {
		if r := recover(); r != nil {
			c.l.Error("model insights panic", logger.Any("panic", r))
			out = []models.InsightRecord{errorRecord("Error Generating Insights", fmt.Errorf("%v", r))}
		}
	}()
	if s == nil {
		return []models.InsightRecord{errorRecord("Error Generating Insights", fmt.Errorf("no performance snapshot"))}
	}
	if math.IsNaN(s.Prediction) || math.IsInf(s.Prediction, 0) {
		return []models.InsightRecord{errorRecord("Error Generating Insights", fmt.Errorf("prediction is not finite"))}
	}

	name := s.ModelName
	out = make([]models.InsightRecord, 0, 3)

	switch {
	case s.Prediction > c.th.Inflation:
		out = append(out, models.InsightRecord{
			Type: models.InsightWarning, Icon: "⚠️", Title: "High Inflation Forecast",
			Message: fmt.Sprintf("Model %s forecasts an IPH rise of %.2f%%, signalling inflation pressure worth watching.", name, s.Prediction),
		})
	case s.Prediction < c.th.Deflation:
		out = append(out, models.InsightRecord{
			Type: models.InsightInfo, Icon: "📉", Title: "Deflation Forecast",
			Message: fmt.Sprintf("Model %s forecasts an IPH drop of %.2f%%, indicating possible deflation.", name, math.Abs(s.Prediction)),
		})
	default:
		out = append(out, models.InsightRecord{
			Type: models.InsightSuccess, Icon: "✅", Title: "Stable Forecast",
			Message: fmt.Sprintf("Model %s forecasts a relatively stable IPH with a change of %.2f%%.", name, s.Prediction),
		})
	}

	switch s.ConfidenceLevel {
	case models.LevelHigh:
		out = append(out, models.InsightRecord{
			Type: models.InsightSuccess, Icon: "🎯", Title: "High Confidence",
			Message: fmt.Sprintf("Model %s shows high confidence with a narrow prediction interval.", name),
		})
	case models.LevelLow:
		out = append(out, models.InsightRecord{
			Type: models.InsightWarning, Icon: "⚡", Title: "Low Confidence",
			Message: fmt.Sprintf("Model %s shows low confidence with a wide prediction interval.", name),
		})
	}

	switch s.Volatility.Level {
	case models.LevelHigh:
		out = append(out, models.InsightRecord{
			Type: models.InsightWarning, Icon: "🌪️", Title: "High Volatility",
			Message: fmt.Sprintf("High volatility (%.2f) points to unstable prices.", s.Volatility.Value),
		})
	case models.LevelLow:
		out = append(out, models.InsightRecord{
			Type: models.InsightSuccess, Icon: "🎯", Title: "Low Volatility",
			Message: fmt.Sprintf("Low volatility (%.2f) points to stable prices.", s.Volatility.Value),
		})
	}
	return out
}

// MarketInsights looks at the long-run trend and recent volatility of the series.
// The forecast is accepted for symmetry with ModelInsights but not consulted.
func (c *Classifier) MarketInsights(history []float64, _ []models.ForecastPoint) (out []models.InsightRecord) {
	defer func() {
		if r := recover(); r != nil {
			c.l.Error("market insights panic", logger.Any("panic", r))
			out = []models.InsightRecord{errorRecord("Error Market Analysis", fmt.Errorf("%v", r))}
		}
	}()
	if len(history) < c.th.MarketMinPoints {
		return []models.InsightRecord{{
			Type: models.InsightWarning, Icon: "⚠️", Title: "Limited Data",
			Message: "Historical data is too limited for a comprehensive market analysis.",
		}}
	}

	out = make([]models.InsightRecord, 0, 2)
	switch TrendDirection(lastN(history, c.th.MarketTrendWindow), c.th) {
	case models.TrendUp:
		out = append(out, models.InsightRecord{
			Type: models.InsightWarning, Icon: "📈", Title: "Long-Term Uptrend",
			Message: fmt.Sprintf("The market shows a rising trend over the last %d weeks.", c.th.MarketTrendWindow),
		})
	case models.TrendDown:
		out = append(out, models.InsightRecord{
			Type: models.InsightInfo, Icon: "📉", Title: "Long-Term Downtrend",
			Message: fmt.Sprintf("The market shows a falling trend over the last %d weeks.", c.th.MarketTrendWindow),
		})
	}

	vol := PopStd(lastN(history, c.th.MarketVolWindow))
	if math.IsNaN(vol) {
		return []models.InsightRecord{errorRecord("Error Market Analysis", fmt.Errorf("volatility is not finite"))}
	}
	switch {
	case vol > c.th.MarketVolatilityHigh:
		out = append(out, models.InsightRecord{
			Type: models.InsightWarning, Icon: "⚡", Title: "Volatile Market",
			Message: fmt.Sprintf("High market volatility (%.2f) signals uncertainty.", vol),
		})
	case vol < c.th.MarketVolatilityLow:
		out = append(out, models.InsightRecord{
			Type: models.InsightSuccess, Icon: "🎯", Title: "Stable Market",
			Message: fmt.Sprintf("Low market volatility (%.2f) points to stable prices.", vol),
		})
	}
	return out
}

func errorRecord(title string, err error) models.InsightRecord {
	return models.InsightRecord{
		Type:    models.InsightError,
		Icon:    "⚠️",
		Title:   title,
		Message: "An error occurred during analysis: " + err.Error(),
	}
}
