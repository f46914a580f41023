package models

import "time"

// Observation is one weekly IPH row with its derived lag and moving-average columns.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Lag1  float64   `json:"lag_1"`
	Lag2  float64   `json:"lag_2"`
	Lag3  float64   `json:"lag_3"`
	Lag4  float64   `json:"lag_4"`
	MA3   float64   `json:"ma_3"`
	MA7   float64   `json:"ma_7"`
}

// Features returns the predictor input derived from this row.
func (o Observation) Features() FeatureVector {
	return FeatureVector{Lag1: o.Lag1, Lag2: o.Lag2, Lag3: o.Lag3, Lag4: o.Lag4, MA3: o.MA3, MA7: o.MA7}
}

// FeatureVectorLen is the number of predictor inputs.
const FeatureVectorLen = 6

// FeatureVector is the ordered predictor input (lag_1..lag_4, ma_3, ma_7).
type FeatureVector struct {
	Lag1 float64 `json:"lag_1"`
	Lag2 float64 `json:"lag_2"`
	Lag3 float64 `json:"lag_3"`
	Lag4 float64 `json:"lag_4"`
	MA3  float64 `json:"ma_3"`
	MA7  float64 `json:"ma_7"`
}

// Slice returns the vector in model column order.
func (v FeatureVector) Slice() []float64 {
	return []float64{v.Lag1, v.Lag2, v.Lag3, v.Lag4, v.MA3, v.MA7}
}

// FeatureVectorFromSlice builds a vector from model column order. Missing trailing values are zero.
func FeatureVectorFromSlice(xs []float64) FeatureVector {
	var buf [FeatureVectorLen]float64
	copy(buf[:], xs)
	return FeatureVector{Lag1: buf[0], Lag2: buf[1], Lag3: buf[2], Lag4: buf[3], MA3: buf[4], MA7: buf[5]}
}

// DataSummary describes the loaded series.
type DataSummary struct {
	TotalRecords   int            `json:"total_records"`
	From           time.Time      `json:"from"`
	To             time.Time      `json:"to"`
	Mean           float64        `json:"mean"`
	Std            float64        `json:"std"`
	Min            float64        `json:"min"`
	Max            float64        `json:"max"`
	LatestValue    float64        `json:"latest_value"`
	LatestFeatures *FeatureVector `json:"latest_features,omitempty"`
}

// IndicatorUpdate is a raw (date, value) pair arriving from ingestion before lags are derived.
type IndicatorUpdate struct {
	Date   time.Time `json:"date"`
	Value  float64   `json:"value"`
	Source string    `json:"source,omitempty"`
}
