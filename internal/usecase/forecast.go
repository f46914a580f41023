package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"IPHForecast/internal/domain"
	"IPHForecast/internal/domain/models"
	domrepo "IPHForecast/internal/domain/repository"
	domsvc "IPHForecast/internal/domain/service"
	"IPHForecast/internal/repository"
	"IPHForecast/internal/services/features"
	"IPHForecast/internal/services/forecast"
	"IPHForecast/internal/services/insight"
	"IPHForecast/pkg/logger"
	"IPHForecast/pkg/util"
)

const (
	viewPrecision = 4
	contextSize   = 7
)

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// ForecastService answers every read of the forecast API on top of the feature
// store, the estimator and the insight classifier.
type ForecastService struct {
	store     *features.Store
	estimator *forecast.Estimator
	insights  *insight.Classifier
	journal   domrepo.ForecastJournal
	publisher domrepo.Publisher
	metrics   domrepo.Metrics
	l         *logger.Logger

	horizon int
	level   float64
	now     func() time.Time
	checks  map[string]HealthCheck
}

type ForecastOption func(*ForecastService)

func WithHorizon(n int) ForecastOption {
	return func(s *ForecastService) {
		if n > 0 {
			s.horizon = n
		}
	}
}

func WithConfidenceLevel(level float64) ForecastOption {
	return func(s *ForecastService) {
		if level > 0 && level < 1 {
			s.level = level
		}
	}
}

// WithHealthCheck adds a named dependency check to Health.
func WithHealthCheck(name string, fn HealthCheck) ForecastOption {
	return func(s *ForecastService) {
		if fn != nil {
			s.checks[name] = fn
		}
	}
}

func WithClock(now func() time.Time) ForecastOption {
	return func(s *ForecastService) { s.now = now }
}

func NewForecastService(
	store *features.Store,
	estimator *forecast.Estimator,
	classifier *insight.Classifier,
	journal domrepo.ForecastJournal,
	publisher domrepo.Publisher,
	metrics domrepo.Metrics,
	l *logger.Logger,
	opts ...ForecastOption,
) *ForecastService {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if publisher == nil {
		publisher = repository.NopPublisher{}
	}
	if l == nil {
		l = logger.NewNop()
	}
	s := &ForecastService{
		store:     store,
		estimator: estimator,
		insights:  classifier,
		journal:   journal,
		publisher: publisher,
		metrics:   metrics,
		l:         l,
		horizon:   4,
		level:     0.95,
		now:       time.Now,
		checks:    map[string]HealthCheck{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DataVersion changes whenever the series does.
func (s *ForecastService) DataVersion() uint64 { return s.store.Version() }

// ModelNames lists loaded models, default first.
func (s *ForecastService) ModelNames() []string { return s.estimator.Registry().Names() }

// Forecast projects the configured horizon for model and attaches the display
// window, model info and insights. Unknown models are rejected here rather than
// falling back.
func (s *ForecastService) Forecast(ctx context.Context, model string, months int) (*models.ForecastResponse, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("forecast", time.Since(start).Seconds()) }()

	reg := s.estimator.Registry()
	if reg.Len() == 0 {
		return nil, domain.ErrNoPredictorAvailable
	}
	if !reg.Has(model) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownModel, model)
	}

	view := s.store.Snapshot()
	latest, err := view.Latest()
	if err != nil {
		return nil, err
	}
	fv := latest.Features()
	band, _, err := s.estimator.PredictWithBand(model, fv, s.level)
	if err != nil {
		s.metrics.RecordError("forecast_predict")
		return nil, fmt.Errorf("next week prediction: %w", err)
	}
	points, err := s.project(model, view)
	if err != nil {
		return nil, err
	}

	values := view.Values()
	bundle, snap := s.buildInsights(model, values, points, band)

	window := view.Window(months)
	hist := make([]models.HistoricalPoint, len(window))
	for i, r := range window {
		hist[i] = models.HistoricalPoint{Date: util.FormatDate(r.Date), Value: r.Value}
	}
	views := pointViews(points)

	meta := models.ForecastMetadata{
		HistoricalPoints:   len(hist),
		ForecastPoints:     len(views),
		LastHistoricalDate: util.FormatDate(latest.Date),
		FeaturesUsed:       fv.Slice(),
		TotalDataPoints:    len(values),
	}
	if len(views) > 0 {
		meta.ForecastStartDate = views[0].Date
	}

	s.l.Info("forecast generated",
		logger.String("model", model),
		logger.Int("months", months),
		logger.Float64("next_week", band.Point),
		logger.Int("model_insights", len(bundle.ModelInsights)),
		logger.Int("market_insights", len(bundle.MarketInsights)),
	)
	return &models.ForecastResponse{
		Historical: hist,
		Forecast:   views,
		ModelInfo: models.ModelInfo{
			Name:               model,
			MAE:                s.estimator.Tables().AccuracyFor(model),
			NextWeekPrediction: util.Round(band.Point, viewPrecision),
		},
		Insights: bundle,
		Metadata: meta,
		Snapshot: snap,
	}, nil
}

// project predicts one banded point per vector projected from view, dated
// weekly after view's latest row.
func (s *ForecastService) project(model string, view *features.Snapshot) ([]models.ForecastPoint, error) {
	vecs, err := features.NewProjector(view).Project(s.horizon)
	if err != nil {
		return nil, err
	}
	latest, err := view.Latest()
	if err != nil {
		return nil, err
	}
	last := latest.Date
	points := make([]models.ForecastPoint, 0, len(vecs))
	for i, v := range vecs {
		b, _, err := s.estimator.PredictWithBand(model, v, s.level)
		if err != nil {
			s.metrics.RecordError("forecast_step")
			return nil, fmt.Errorf("forecast step %d: %w", i+1, err)
		}
		points = append(points, models.ForecastPoint{
			Date:       util.WeeksAfter(last, i+1),
			Prediction: b.Point,
			LowerBound: b.Lower,
			UpperBound: b.Upper,
		})
	}
	return points, nil
}

// buildInsights never fails. A missing performance snapshot yields a single
// warning; a panic anywhere yields the generic fallback records.
func (s *ForecastService) buildInsights(model string, values []float64, points []models.ForecastPoint, band models.Band) (b models.InsightBundle, snap *models.PerformanceSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.l.Error("insight generation panicked", logger.String("model", model), logger.Any("panic", r))
			b, snap = fallbackInsights(model, len(values)), nil
		}
	}()

	b = models.InsightBundle{ModelInsights: []models.InsightRecord{}, MarketInsights: []models.InsightRecord{}}
	snap, err := s.insights.AnalyzePerformance(model, values, points, band)
	if err != nil {
		s.l.Warn("performance analysis unavailable", logger.String("model", model), logger.Error(err))
		b.ModelInsights = append(b.ModelInsights, models.InsightRecord{
			Type:    models.InsightWarning,
			Icon:    "⚠️",
			Title:   "Analysis unavailable",
			Message: "Model performance cannot be analyzed right now.",
		})
		return b, nil
	}
	b.ModelInsights = append(b.ModelInsights, s.insights.ModelInsights(snap)...)
	b.MarketInsights = append(b.MarketInsights, s.insights.MarketInsights(values, points)...)
	return b, snap
}

func fallbackInsights(model string, rows int) models.InsightBundle {
	return models.InsightBundle{
		ModelInsights: []models.InsightRecord{{
			Type:    models.InsightInfo,
			Icon:    "📊",
			Title:   "Model active",
			Message: fmt.Sprintf("Model %s is being used for prediction.", model),
		}},
		MarketInsights: []models.InsightRecord{{
			Type:    models.InsightInfo,
			Icon:    "📈",
			Title:   "Data available",
			Message: fmt.Sprintf("Using %d historical observations for analysis.", rows),
		}},
	}
}

func pointViews(points []models.ForecastPoint) []models.ForecastPointView {
	out := make([]models.ForecastPointView, len(points))
	for i, p := range points {
		out[i] = models.ForecastPointView{
			Date:       util.FormatDate(p.Date),
			Prediction: util.Round(p.Prediction, viewPrecision),
			LowerBound: util.Round(p.LowerBound, viewPrecision),
			UpperBound: util.Round(p.UpperBound, viewPrecision),
		}
	}
	return out
}

// KPI reports the next-week prediction of the default model and the latest change.
func (s *ForecastService) KPI(ctx context.Context) (*models.KPIResponse, error) {
	view := s.store.Snapshot()
	latest, err := view.Latest()
	if err != nil {
		return nil, err
	}
	fv := latest.Features()
	out := &models.KPIResponse{
		LastUpdate:      latest.Date.Format("02 January 2006"),
		TotalDataPoints: view.Len(),
		FeaturesUsed:    fv.Slice(),
	}

	p, err := s.estimator.Registry().Default()
	switch {
	case errors.Is(err, domain.ErrNoPredictorAvailable):
		out.ModelAccuracy = s.estimator.Tables().DefaultAcc
	case err != nil:
		return nil, err
	default:
		band, _, err := s.estimator.PredictWithBand(p.Name(), fv, s.level)
		if err != nil {
			return nil, fmt.Errorf("kpi prediction: %w", err)
		}
		out.NextWeekPrediction = util.Round(band.Point, viewPrecision)
		out.DefaultModel = p.Name()
		out.ModelAccuracy = s.estimator.Tables().AccuracyFor(p.Name())
	}

	if values := view.Values(); len(values) >= 2 {
		n := len(values)
		out.LastChange = values[n-1]
		out.ChangeFromPrevious = util.Round(values[n-1]-values[n-2], viewPrecision)
	}
	return out, nil
}

// WhatIf predicts next week as if current were this week's value. An empty or
// unknown model name uses the default model.
func (s *ForecastService) WhatIf(ctx context.Context, current float64, model string) (*models.WhatIfResponse, error) {
	reg := s.estimator.Registry()
	if model == "" || !reg.Has(model) {
		p, err := reg.Default()
		if err != nil {
			return nil, err
		}
		model = p.Name()
	}
	view := s.store.Snapshot()
	fv, err := view.WhatIfFeatures(current)
	if err != nil {
		return nil, err
	}
	band, used, err := s.estimator.PredictWithBand(model, fv, s.level)
	if err != nil {
		return nil, fmt.Errorf("what-if prediction: %w", err)
	}

	recent := append(tailOf(view.Values(), contextSize-1), current)

	return &models.WhatIfResponse{
		Prediction:    util.Round(band.Point, viewPrecision),
		LowerBound:    util.Round(band.Lower, viewPrecision),
		UpperBound:    util.Round(band.Upper, viewPrecision),
		Scenario:      fmt.Sprintf("If this week's IPH is %s%%", strconv.FormatFloat(current, 'f', -1, 64)),
		ModelUsed:     used,
		InputFeatures: fv.Slice(),
		RecentContext: recent,
	}, nil
}

func tailOf(xs []float64, n int) []float64 {
	if len(xs) > n {
		xs = xs[len(xs)-n:]
	}
	out := make([]float64, len(xs), len(xs)+1)
	copy(out, xs)
	return out
}

// Models describes every loaded predictor with its table entries.
func (s *ForecastService) Models() *models.ModelsResponse {
	tables := s.estimator.Tables()
	all := s.estimator.Registry().All()
	out := &models.ModelsResponse{
		Models:    make([]models.ModelDescriptor, 0, len(all)),
		Count:     len(all),
		ModelInfo: s.estimator.Registry().LoadReport(),
	}
	for _, p := range all {
		d := models.ModelDescriptor{
			Name:     p.Name(),
			Kind:     string(p.Kind()),
			Accuracy: tables.AccuracyFor(p.Name()),
			Margin:   tables.MarginFor(p.Name()),
		}
		if ens, ok := p.(domsvc.EnsemblePredictor); ok {
			d.Members = len(ens.Members())
		}
		out.Models = append(out.Models, d)
	}
	if len(all) > 0 {
		out.Default = all[0].Name()
	}
	return out
}

// Status is the cheap liveness view.
func (s *ForecastService) Status() *models.StatusResponse {
	names := s.ModelNames()
	view := s.store.Snapshot()
	rows := view.Len()
	return &models.StatusResponse{
		Status:       "running",
		Initialized:  rows > 0 && len(names) > 0,
		ModelsLoaded: len(names),
		Models:       names,
		DataPoints:   rows,
		DataVersion:  view.Version(),
		Timestamp:    s.now(),
	}
}

// Health runs the store check, the model check and every registered dependency check.
func (s *ForecastService) Health(ctx context.Context) *models.HealthResponse {
	names := s.ModelNames()
	view := s.store.Snapshot()
	out := &models.HealthResponse{
		Status:          "healthy",
		Checks:          map[string]string{},
		ModelsLoaded:    len(names),
		DataPoints:      view.Len(),
		AvailableModels: names,
		Timestamp:       s.now(),
	}
	fail := func(name string, err error) {
		out.Checks[name] = err.Error()
		out.Status = "degraded"
	}

	if err := s.store.Health(ctx); err != nil {
		fail("series", err)
	} else {
		out.Checks["series"] = "ok"
	}
	if len(names) == 0 {
		fail("models", domain.ErrNoPredictorAvailable)
	} else {
		out.Checks["models"] = "ok"
	}
	if sum, err := view.Summary(); err != nil {
		fail("data", err)
	} else {
		out.Checks["data"] = "ok"
		out.DataSummary = &sum
	}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			fail(name, err)
			continue
		}
		out.Checks[name] = "ok"
	}
	return out
}

// Export renders the whole series in the tabular supplier's CSV layout.
func (s *ForecastService) Export(ctx context.Context) (*models.ExportResult, error) {
	rows := s.store.Rows()
	var buf bytes.Buffer
	if err := repository.EncodeCSV(&buf, rows); err != nil {
		return nil, fmt.Errorf("export csv: %w", err)
	}
	return &models.ExportResult{
		CSVData:      buf.String(),
		Filename:     fmt.Sprintf("data_iph_export_%s.csv", s.now().Format("20060102_150405")),
		TotalRecords: len(rows),
	}, nil
}

// DebugInsights exposes the raw snapshot and insights for the default model.
func (s *ForecastService) DebugInsights(ctx context.Context) (*models.DebugInsightsResponse, error) {
	p, err := s.estimator.Registry().Default()
	if err != nil {
		return nil, err
	}
	model := p.Name()
	view := s.store.Snapshot()
	latest, err := view.Latest()
	if err != nil {
		return nil, err
	}
	band, _, err := s.estimator.PredictWithBand(model, latest.Features(), s.level)
	if err != nil {
		return nil, fmt.Errorf("debug prediction: %w", err)
	}
	points, err := s.project(model, view)
	if err != nil {
		return nil, err
	}
	values := view.Values()

	out := &models.DebugInsightsResponse{
		TestModel:       model,
		ForecastData:    pointViews(points),
		DataPoints:      len(values),
		AvailableModels: s.ModelNames(),
		MarketInsights:  []models.InsightRecord{},
	}
	snap, err := s.insights.AnalyzePerformance(model, values, points, band)
	if err != nil {
		out.ModelInsights = []models.InsightRecord{{
			Type:    models.InsightError,
			Icon:    "⚠️",
			Title:   "No Performance Data",
			Message: "Could not generate performance analysis",
		}}
		return out, nil
	}
	out.Performance = snap
	out.ModelInsights = s.insights.ModelInsights(snap)
	out.MarketInsights = s.insights.MarketInsights(values, points)
	return out, nil
}

// Summary describes the loaded series.
func (s *ForecastService) Summary() (models.DataSummary, error) { return s.store.Summary() }

// Append adds one observation to the series.
func (s *ForecastService) Append(ctx context.Context, date time.Time, value float64) (models.Observation, error) {
	return s.store.Append(ctx, date, value)
}

// TriggerRun forecasts model (default when empty), journals the run and
// publishes it. Publishing failures are logged only.
func (s *ForecastService) TriggerRun(ctx context.Context, model, trigger string) (*models.ForecastRun, error) {
	reg := s.estimator.Registry()
	if model == "" {
		p, err := reg.Default()
		if err != nil {
			return nil, err
		}
		model = p.Name()
	} else if !reg.Has(model) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownModel, model)
	}

	view := s.store.Snapshot()
	latest, err := view.Latest()
	if err != nil {
		return nil, err
	}
	points, err := s.project(model, view)
	if err != nil {
		return nil, err
	}
	run := &models.ForecastRun{
		Model:    model,
		Trigger:  trigger,
		LastDate: latest.Date,
		Points:   points,
	}
	if s.journal != nil {
		if err := s.journal.Record(ctx, run); err != nil {
			s.metrics.RecordError("journal_record")
			return nil, fmt.Errorf("record forecast run: %w", err)
		}
	}
	if err := s.publisher.PublishForecast(ctx, run); err != nil {
		s.metrics.RecordError("publish_forecast")
		s.l.Warn("forecast publish failed", logger.String("run_id", run.ID), logger.Error(err))
	}
	s.l.Info("forecast run recorded",
		logger.String("run_id", run.ID),
		logger.String("model", model),
		logger.String("trigger", trigger),
		logger.Int("points", len(points)),
	)
	return run, nil
}

// Runs lists the most recent journaled runs, newest first.
func (s *ForecastService) Runs(ctx context.Context, limit int) ([]models.ForecastRun, error) {
	if s.journal == nil {
		return []models.ForecastRun{}, nil
	}
	return s.journal.Recent(ctx, limit)
}
