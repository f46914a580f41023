package models

// InsightType categorizes an advisory record.
type InsightType string

const (
	InsightSuccess InsightType = "success"
	InsightInfo    InsightType = "info"
	InsightWarning InsightType = "warning"
	InsightError   InsightType = "error"
)

// InsightRecord is one advisory message shown next to a forecast.
type InsightRecord struct {
	Type    InsightType `json:"type"`
	Icon    string      `json:"icon"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
}
