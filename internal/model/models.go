package model

import (
	"fmt"
	"time"
)

// ForecastInterval is a symmetric prediction interval at a confidence level
type ForecastInterval struct {
	Level int     `json:"level"` // percent, e.g. 80
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ForecastPoint is one projected period
type ForecastPoint struct {
	Step      int                `json:"step"` // 1-based periods after the last observation
	Date      time.Time          `json:"date"`
	Mean      float64            `json:"mean"`
	Intervals []ForecastInterval `json:"intervals"`
}

// Interval returns the interval at level, if present.
func (p ForecastPoint) Interval(level int) (ForecastInterval, bool) {
	for _, iv := range p.Intervals {
		if iv.Level == level {
			return iv, true
		}
	}
	return ForecastInterval{}, false
}

// ForecastResult is a fitted ARIMA model plus its projection for one country
type ForecastResult struct {
	Country         string          `json:"country"`
	P               int             `json:"p"`
	D               int             `json:"d"`
	Q               int             `json:"q"`
	IncludeConstant bool            `json:"include_constant"`
	Constant        float64         `json:"constant"`
	AR              []float64       `json:"ar"`
	MA              []float64       `json:"ma"`
	Sigma2          float64         `json:"sigma2"`
	AICc            float64         `json:"aicc"`
	NObs            int             `json:"n_obs"`
	FirstDate       time.Time       `json:"first_date"`
	LastDate        time.Time       `json:"last_date"`
	History         []float64       `json:"history,omitempty"`
	Points          []ForecastPoint `json:"points"`
}

// Order returns the model label, e.g. "ARIMA(1,2,1)".
func (f *ForecastResult) Order() string {
	label := fmt.Sprintf("ARIMA(%d,%d,%d)", f.P, f.D, f.Q)
	if f.IncludeConstant {
		if f.D == 0 {
			label += " with mean"
		} else {
			label += " with drift"
		}
	}
	return label
}
