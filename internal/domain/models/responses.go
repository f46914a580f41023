package models

import "time"

// HistoricalPoint is one displayed row of the series.
type HistoricalPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// ForecastPointView is a ForecastPoint with a calendar date string.
type ForecastPointView struct {
	Date       string  `json:"date,omitempty"`
	Prediction float64 `json:"prediction"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

type ModelInfo struct {
	Name               string  `json:"name"`
	MAE                float64 `json:"mae"`
	NextWeekPrediction float64 `json:"next_week_prediction"`
}

type InsightBundle struct {
	ModelInsights  []InsightRecord `json:"model_insights"`
	MarketInsights []InsightRecord `json:"market_insights"`
}

type ForecastMetadata struct {
	HistoricalPoints   int       `json:"historical_points"`
	ForecastPoints     int       `json:"forecast_points"`
	LastHistoricalDate string    `json:"last_historical_date"`
	ForecastStartDate  string    `json:"forecast_start_date,omitempty"`
	FeaturesUsed       []float64 `json:"features_used"`
	TotalDataPoints    int       `json:"total_data_points"`
}

// ForecastResponse is the full payload of the forecast endpoint.
type ForecastResponse struct {
	Historical []HistoricalPoint    `json:"historical"`
	Forecast   []ForecastPointView  `json:"forecast"`
	ModelInfo  ModelInfo            `json:"model_info"`
	Insights   InsightBundle        `json:"insights"`
	Metadata   ForecastMetadata     `json:"metadata"`
	Snapshot   *PerformanceSnapshot `json:"-"`
}

type KPIResponse struct {
	NextWeekPrediction float64   `json:"next_week_prediction"`
	ModelAccuracy      float64   `json:"model_accuracy"`
	LastChange         float64   `json:"last_change"`
	ChangeFromPrevious float64   `json:"change_from_previous"`
	LastUpdate         string    `json:"last_update"`
	TotalDataPoints    int       `json:"total_data_points"`
	DefaultModel       string    `json:"default_model,omitempty"`
	FeaturesUsed       []float64 `json:"features_used"`
}

type WhatIfResponse struct {
	Prediction    float64   `json:"prediction"`
	LowerBound    float64   `json:"lower_bound"`
	UpperBound    float64   `json:"upper_bound"`
	Scenario      string    `json:"scenario"`
	ModelUsed     string    `json:"model_used"`
	InputFeatures []float64 `json:"input_features"`
	RecentContext []float64 `json:"recent_context"`
}

// ModelDescriptor describes one loaded predictor.
type ModelDescriptor struct {
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	Members  int     `json:"members,omitempty"`
	Accuracy float64 `json:"accuracy"`
	Margin   float64 `json:"margin"`
}

// ModelLoadStatus records how one configured model fared at startup,
// including models that failed to load.
type ModelLoadStatus struct {
	Name           string   `json:"name"`
	Loaded         bool     `json:"loaded"`
	Type           string   `json:"type,omitempty"`
	Error          string   `json:"error,omitempty"`
	TestPrediction *float64 `json:"test_prediction,omitempty"`
}

type ModelsResponse struct {
	Models    []ModelDescriptor `json:"models"`
	Default   string            `json:"default,omitempty"`
	Count     int               `json:"count"`
	ModelInfo []ModelLoadStatus `json:"model_info"`
}

type StatusResponse struct {
	Status       string    `json:"status"`
	Initialized  bool      `json:"initialized"`
	ModelsLoaded int       `json:"models_loaded"`
	Models       []string  `json:"models"`
	DataPoints   int       `json:"data_points"`
	DataVersion  uint64    `json:"data_version"`
	Timestamp    time.Time `json:"timestamp"`
}

type HealthResponse struct {
	Status          string            `json:"status"`
	Checks          map[string]string `json:"checks"`
	ModelsLoaded    int               `json:"models_loaded"`
	DataPoints      int               `json:"data_points"`
	AvailableModels []string          `json:"available_models"`
	DataSummary     *DataSummary      `json:"data_summary,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// Healthy reports whether every check passed.
func (h HealthResponse) Healthy() bool { return h.Status == "healthy" }

type ExportResult struct {
	CSVData      string `json:"csv_data"`
	Filename     string `json:"filename"`
	TotalRecords int    `json:"total_records"`
}

type DebugInsightsResponse struct {
	TestModel       string               `json:"test_model"`
	Performance     *PerformanceSnapshot `json:"performance"`
	ModelInsights   []InsightRecord      `json:"model_insights"`
	MarketInsights  []InsightRecord      `json:"market_insights"`
	ForecastData    []ForecastPointView  `json:"forecast_data"`
	DataPoints      int                  `json:"data_points"`
	AvailableModels []string             `json:"available_models"`
}
