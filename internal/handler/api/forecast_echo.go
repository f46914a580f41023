package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"IPHForecast/internal/domain"
	"IPHForecast/internal/domain/models"
	"IPHForecast/internal/service/cache"
	apimetrics "IPHForecast/internal/service/metrics"
	"IPHForecast/internal/service/ratelimit"
	"IPHForecast/internal/usecase"
	xhttp "IPHForecast/pkg/http"
	xlogger "IPHForecast/pkg/logger"
	"IPHForecast/pkg/util"

	"github.com/labstack/echo/v4"
)

// ForecastEchoHandler serves the forecast API.
type ForecastEchoHandler struct {
	logger   *xlogger.Logger
	svc      *usecase.ForecastService
	cache    cache.BytesCache
	cacheTTL time.Duration
	limiter  *ratelimit.Limiter
}

func NewForecastEchoHandler(
	logger *xlogger.Logger,
	svc *usecase.ForecastService,
	c cache.BytesCache,
	cacheTTL time.Duration,
	limiter *ratelimit.Limiter,
) *ForecastEchoHandler {
	apimetrics.Register()
	if logger == nil {
		logger = xlogger.NewNop()
	}
	if c == nil {
		c = cache.NopCache{}
	}
	return &ForecastEchoHandler{logger: logger, svc: svc, cache: c, cacheTTL: cacheTTL, limiter: limiter}
}

var _ xhttp.Handler = (*ForecastEchoHandler)(nil)

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/health", h.Health)
	g.GET("/models", h.Models)
	g.GET("/kpi", h.KPI)
	g.GET("/forecast/:model", h.Forecast)
	g.POST("/what-if", h.WhatIf)
	g.POST("/observations", h.Append, h.rateLimited("observations"))
	g.GET("/download-data", h.Download)
	g.GET("/debug/insights", h.DebugInsights)
	g.GET("/forecast-runs", h.Runs)
	g.POST("/forecast-runs", h.TriggerRun, h.rateLimited("forecast_runs"))
}

// rateLimited rejects callers whose bucket is empty.
func (h *ForecastEchoHandler) rateLimited(endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if h.limiter != nil && !h.limiter.Allow(xhttp.ClientKey(c)) {
				apimetrics.RateLimited.WithLabelValues(endpoint).Inc()
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded, retry later"))
			}
			return next(c)
		}
	}
}

func (h *ForecastEchoHandler) observe(endpoint string, start time.Time) {
	apimetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// fail maps domain errors onto HTTP errors and logs anything unexpected.
func (h *ForecastEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	apimetrics.APIErrors.WithLabelValues(endpoint).Inc()
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, domain.ErrUnknownModel):
		appErr = xhttp.NotFoundError(err.Error()).WithParam("available_models", h.svc.ModelNames())
	case errors.Is(err, domain.ErrEmptyDataset):
		appErr = xhttp.NotFoundError("no observations loaded")
	case errors.Is(err, domain.ErrStaleObservation):
		appErr = xhttp.BadRequestError(err.Error())
	case errors.Is(err, domain.ErrInsufficientHistory), errors.Is(err, domain.ErrInvalidSteps):
		appErr = xhttp.UnprocessableError(err.Error())
	case errors.Is(err, domain.ErrNoPredictorAvailable):
		appErr = xhttp.ServiceUnavailableError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		appErr = xhttp.ServiceUnavailableError("request timed out")
	default:
		h.logger.Error(endpoint+" usecase error", xlogger.Error(err))
		appErr = xhttp.InternalError("internal error").WithError(err)
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *ForecastEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Status())
}

func (h *ForecastEchoHandler) Health(c echo.Context) error {
	res := h.svc.Health(c.Request().Context())
	if !res.Healthy() {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Models(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Models())
}

func (h *ForecastEchoHandler) KPI(c echo.Context) error {
	defer h.observe("kpi", time.Now())
	res, err := h.svc.KPI(c.Request().Context())
	if err != nil {
		return h.fail(c, "kpi", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Forecast responses are cached per (model, months, data version), so any append invalidates them.
func (h *ForecastEchoHandler) Forecast(c echo.Context) error {
	defer h.observe("forecast", time.Now())
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	key := fmt.Sprintf("forecast:%s:%d:v%d", req.Model, req.Months, h.svc.DataVersion())
	var cached models.ForecastResponse
	hit, err := cache.GetJSON(ctx, h.cache, key, &cached)
	if err != nil {
		h.logger.Warn("forecast cache read failed", xlogger.String("key", key), xlogger.Error(err))
	}
	if hit {
		apimetrics.CacheResults.WithLabelValues("forecast", "hit").Inc()
		return xhttp.SuccessResponse(c, &cached)
	}
	apimetrics.CacheResults.WithLabelValues("forecast", "miss").Inc()

	res, err := h.svc.Forecast(ctx, req.Model, req.Months)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	if err := cache.SetJSON(ctx, h.cache, key, res, h.cacheTTL); err != nil {
		h.logger.Warn("forecast cache write failed", xlogger.String("key", key), xlogger.Error(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) WhatIf(c echo.Context) error {
	defer h.observe("what_if", time.Now())
	req := &models.WhatIfRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.WhatIf(c.Request().Context(), *req.CurrentIPH, req.Model)
	if err != nil {
		return h.fail(c, "what_if", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Append(c echo.Context) error {
	defer h.observe("observations", time.Now())
	req := &models.AppendRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	date, ok := util.ParseDate(req.Date)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("date must be YYYY-MM-DD"))
	}
	obs, err := h.svc.Append(c.Request().Context(), date, *req.Value)
	if err != nil {
		return h.fail(c, "observations", err)
	}
	return xhttp.CreatedResponse(c, obs)
}

// Download returns the series as JSON by default, or as a CSV attachment with ?format=csv.
func (h *ForecastEchoHandler) Download(c echo.Context) error {
	defer h.observe("download", time.Now())
	res, err := h.svc.Export(c.Request().Context())
	if err != nil {
		return h.fail(c, "download", err)
	}
	if c.QueryParam("format") == "csv" {
		return xhttp.AttachmentResponse(c, res.Filename, "text/csv; charset=utf-8", []byte(res.CSVData))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) DebugInsights(c echo.Context) error {
	res, err := h.svc.DebugInsights(c.Request().Context())
	if err != nil {
		return h.fail(c, "debug_insights", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Runs(c echo.Context) error {
	req := &models.RunsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	runs, err := h.svc.Runs(c.Request().Context(), req.Limit)
	if err != nil {
		return h.fail(c, "forecast_runs", err)
	}
	return xhttp.SuccessResponse(c, runs)
}

func (h *ForecastEchoHandler) TriggerRun(c echo.Context) error {
	defer h.observe("forecast_runs", time.Now())
	req := &models.TriggerRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	run, err := h.svc.TriggerRun(c.Request().Context(), req.Model, "api")
	if err != nil {
		return h.fail(c, "forecast_runs", err)
	}
	return xhttp.CreatedResponse(c, run)
}
