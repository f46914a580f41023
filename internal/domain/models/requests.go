package models

// Requests for the forecast HTTP endpoints. Kept in domain so the CLI can reuse them.

type ForecastRequest struct {
	Model  string `param:"model" json:"model" validate:"required,max=64,model_name"`
	Months int    `query:"months" json:"months" validate:"gte=0,lte=240"`
}

type WhatIfRequest struct {
	CurrentIPH *float64 `json:"current_iph" validate:"required"`
	Model      string   `json:"model" validate:"omitempty,max=64,model_name"`
}

type AppendRequest struct {
	Date  string   `json:"date" validate:"required,datetime=2006-01-02"`
	Value *float64 `json:"value" validate:"required"`
}

type RunsRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
}

type TriggerRunRequest struct {
	Model string `json:"model" validate:"omitempty,max=64,model_name"`
}
