package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"IPHForecast/internal/domain/models"
	domsvc "IPHForecast/internal/domain/service"
	"IPHForecast/internal/repository"
	"IPHForecast/internal/service/cache"
	"IPHForecast/internal/service/ratelimit"
	"IPHForecast/internal/services/features"
	"IPHForecast/internal/services/forecast"
	"IPHForecast/internal/services/insight"
	"IPHForecast/internal/usecase"

	"github.com/labstack/echo/v4"
)

type constPredictor struct {
	name string
	y    float64
}

func (p constPredictor) Name() string               { return p.name }
func (p constPredictor) Kind() domsvc.PredictorKind { return domsvc.KindPoint }
func (p constPredictor) Predict(models.FeatureVector) (float64, error) {
	return p.y, nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, rows int, limiter *ratelimit.Limiter, ps ...domsvc.Predictor) (*echo.Echo, *cache.TTLCache) {
	t.Helper()
	st := features.NewStore(repository.NewMemorySeriesStore(nil), nil, nil)
	if err := st.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		if _, err := st.Append(context.Background(), start.AddDate(0, 0, 7*i), float64(i%5)*0.3); err != nil {
			t.Fatal(err)
		}
	}
	tables := forecast.DefaultTables()
	est := forecast.NewEstimator(forecast.NewRegistry(ps, nil), tables, forecast.DefaultBandConfig(), nil, nil)
	cls := insight.NewClassifier(insight.DefaultThresholds(), tables, nil)
	svc := usecase.NewForecastService(st, est, cls, nil, nil, nil, nil)

	c := cache.NewTTLCache(16)
	e := echo.New()
	NewForecastEchoHandler(nil, svc, c, time.Minute, limiter).RegisterRoutes(e)
	return e, c
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, target, err, rec.Body.String())
		}
	}
	return rec, env
}

func TestForecastEndpoint(t *testing.T) {
	e, c := newTestServer(t, 20, nil, constPredictor{name: "KNN", y: 0.4})
	rec, env := do(t, e, http.MethodGet, "/api/forecast/KNN?months=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res models.ForecastResponse
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Forecast) != 4 || res.ModelInfo.Name != "KNN" || res.ModelInfo.MAE != 1.15 {
		t.Fatalf("forecast = %+v", res)
	}
	if res.Metadata.TotalDataPoints != 20 || res.Metadata.HistoricalPoints >= 20 {
		t.Fatalf("metadata = %+v", res.Metadata)
	}
	if c.Len() != 1 {
		t.Fatalf("cache entries = %d", c.Len())
	}

	rec, _ = do(t, e, http.MethodGet, "/api/forecast/KNN?months=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cached status = %d", rec.Code)
	}
}

func TestForecastEndpointErrors(t *testing.T) {
	e, _ := newTestServer(t, 20, nil, constPredictor{name: "KNN", y: 0.4})
	rec, env := do(t, e, http.MethodGet, "/api/forecast/Prophet", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown model status = %d", rec.Code)
	}
	if !strings.Contains(string(env.Data), "available_models") {
		t.Fatalf("missing available models: %s", env.Data)
	}

	rec, _ = do(t, e, http.MethodGet, "/api/forecast/KNN?months=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative months status = %d", rec.Code)
	}

	e, _ = newTestServer(t, 4, nil, constPredictor{name: "KNN", y: 0.4})
	if rec, _ = do(t, e, http.MethodGet, "/api/forecast/KNN", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("short history status = %d", rec.Code)
	}

	e, _ = newTestServer(t, 0, nil, constPredictor{name: "KNN", y: 0.4})
	if rec, _ = do(t, e, http.MethodGet, "/api/kpi", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("empty kpi status = %d", rec.Code)
	}

	e, _ = newTestServer(t, 20, nil)
	if rec, _ = do(t, e, http.MethodGet, "/api/forecast/KNN", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("no models status = %d", rec.Code)
	}
}

func TestWhatIfEndpoint(t *testing.T) {
	e, _ := newTestServer(t, 20, nil, constPredictor{name: "LightGBM", y: 1})
	rec, env := do(t, e, http.MethodPost, "/api/what-if", `{"current_iph": 2.5, "model": "Unknown"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res models.WhatIfResponse
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.ModelUsed != "LightGBM" || res.LowerBound != 0.4 || res.UpperBound != 1.6 {
		t.Fatalf("what-if = %+v", res)
	}

	if rec, _ = do(t, e, http.MethodPost, "/api/what-if", `{"model": "KNN"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing current_iph status = %d", rec.Code)
	}
}

func TestAppendEndpointInvalidatesForecastCache(t *testing.T) {
	e, c := newTestServer(t, 20, nil, constPredictor{name: "KNN", y: 0.4})
	if rec, _ := do(t, e, http.MethodGet, "/api/forecast/KNN", ""); rec.Code != http.StatusOK {
		t.Fatalf("forecast status = %d", rec.Code)
	}

	rec, env := do(t, e, http.MethodPost, "/api/observations", `{"date": "2024-05-20", "value": 1.1}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("append status = %d body=%s", rec.Code, rec.Body.String())
	}
	var obs models.Observation
	if err := json.Unmarshal(env.Data, &obs); err != nil {
		t.Fatal(err)
	}
	if obs.Value != 1.1 {
		t.Fatalf("observation = %+v", obs)
	}

	_, env = do(t, e, http.MethodGet, "/api/forecast/KNN", "")
	var res models.ForecastResponse
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Metadata.TotalDataPoints != 21 || c.Len() != 2 {
		t.Fatalf("stale forecast: points=%d cache=%d", res.Metadata.TotalDataPoints, c.Len())
	}

	if rec, _ = do(t, e, http.MethodPost, "/api/observations", `{"date": "20-05-2024", "value": 1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d", rec.Code)
	}
	for _, date := range []string{"2024-05-20", "2024-03-04"} {
		if rec, _ = do(t, e, http.MethodPost, "/api/observations", `{"date": "`+date+`", "value": 9}`); rec.Code != http.StatusBadRequest {
			t.Fatalf("backdated %s status = %d", date, rec.Code)
		}
	}
	if _, env = do(t, e, http.MethodGet, "/api/status", ""); !strings.Contains(string(env.Data), `"data_points":21`) {
		t.Fatalf("backdated append changed the series: %s", env.Data)
	}
}

func TestAppendEndpointRateLimited(t *testing.T) {
	e, _ := newTestServer(t, 10, ratelimit.New(1, 0.0001), constPredictor{name: "KNN", y: 0.4})
	if rec, _ := do(t, e, http.MethodPost, "/api/observations", `{"date": "2024-06-03", "value": 1}`); rec.Code != http.StatusCreated {
		t.Fatalf("first append status = %d", rec.Code)
	}
	if rec, _ := do(t, e, http.MethodPost, "/api/observations", `{"date": "2024-06-10", "value": 1}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second append status = %d", rec.Code)
	}
}

func TestStatusHealthModelsKPI(t *testing.T) {
	e, _ := newTestServer(t, 12, nil, constPredictor{name: "Random_Forest", y: 0.2}, constPredictor{name: "KNN", y: 0.1})
	for _, path := range []string{"/api/status", "/api/health", "/api/models", "/api/kpi", "/api/debug/insights", "/api/forecast-runs"} {
		if rec, _ := do(t, e, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("%s status = %d body=%s", path, rec.Code, rec.Body.String())
		}
	}

	_, env := do(t, e, http.MethodGet, "/api/models", "")
	var m models.ModelsResponse
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatal(err)
	}
	if m.Count != 2 || m.Default != "Random_Forest" {
		t.Fatalf("models = %+v", m)
	}
	if len(m.ModelInfo) != 2 || !m.ModelInfo[0].Loaded || m.ModelInfo[1].Name != "KNN" {
		t.Fatalf("model info = %+v", m.ModelInfo)
	}

	e, _ = newTestServer(t, 12, nil)
	if rec, _ := do(t, e, http.MethodGet, "/api/health", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded health status = %d", rec.Code)
	}
}

func TestModelsEndpointReportsFailedLoads(t *testing.T) {
	st := features.NewStore(repository.NewMemorySeriesStore(nil), nil, nil)
	if err := st.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	reg := forecast.NewRegistry([]domsvc.Predictor{constPredictor{name: "KNN", y: 0.1}}, nil)
	reg.SetLoadReport([]models.ModelLoadStatus{
		{Name: "LightGBM", Error: "open LightGBM.json: no such file or directory"},
		{Name: "KNN", Loaded: true, Type: "point"},
	})
	tables := forecast.DefaultTables()
	est := forecast.NewEstimator(reg, tables, forecast.DefaultBandConfig(), nil, nil)
	svc := usecase.NewForecastService(st, est, insight.NewClassifier(insight.DefaultThresholds(), tables, nil), nil, nil, nil, nil)
	e := echo.New()
	NewForecastEchoHandler(nil, svc, cache.NewTTLCache(4), time.Minute, nil).RegisterRoutes(e)

	rec, env := do(t, e, http.MethodGet, "/api/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{`"model_info"`, `"name":"LightGBM","loaded":false`, `"error":"open LightGBM.json`} {
		if !strings.Contains(string(env.Data), want) {
			t.Fatalf("missing %s in %s", want, env.Data)
		}
	}
}

func TestDownloadEndpoint(t *testing.T) {
	e, _ := newTestServer(t, 3, nil)
	_, env := do(t, e, http.MethodGet, "/api/download-data", "")
	var res models.ExportResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.TotalRecords != 3 || !strings.HasPrefix(res.CSVData, "Tanggal,") {
		t.Fatalf("export = %+v", res)
	}

	rec, _ := do(t, e, http.MethodGet, "/api/download-data?format=csv", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv") {
		t.Fatalf("csv download: %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "data_iph_export_") {
		t.Fatalf("disposition = %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
}

func TestTriggerRunEndpointWithoutJournal(t *testing.T) {
	e, _ := newTestServer(t, 10, nil, constPredictor{name: "KNN", y: 0.4})
	rec, env := do(t, e, http.MethodPost, "/api/forecast-runs", `{}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var run models.ForecastRun
	if err := json.Unmarshal(env.Data, &run); err != nil {
		t.Fatal(err)
	}
	if run.Model != "KNN" || run.Trigger != "api" || len(run.Points) != 4 {
		t.Fatalf("run = %+v", run)
	}
}
