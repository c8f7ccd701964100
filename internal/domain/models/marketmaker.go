package models

import "time"

type PositionBias string

const (
	BiasShortGamma PositionBias = "short_gamma"
	BiasLongGamma  PositionBias = "long_gamma"
	BiasNeutral    PositionBias = "neutral"
)

type HedgePressure string

const (
	PressureBuy     HedgePressure = "buy"
	PressureSell    HedgePressure = "sell"
	PressureNeutral HedgePressure = "neutral"
)

// MarketMakerPosition is a point-in-time estimate of dealer Greek exposure,
// recomputed on every query.
type MarketMakerPosition struct {
	Symbol                string        `json:"symbol"`
	CalculatedAt          time.Time     `json:"calculated_at"`
	NetDelta              float64       `json:"net_delta"`
	NetGamma              float64       `json:"net_gamma"`
	NetVega               float64       `json:"net_vega"`
	NetTheta              float64       `json:"net_theta"`
	CallGammaContribution float64       `json:"call_gamma_contribution"`
	PutGammaContribution  float64       `json:"put_gamma_contribution"`
	PositionBias          PositionBias  `json:"position_bias"`
	HedgePressure         HedgePressure `json:"hedge_pressure"`
	CallVolume            int64         `json:"call_volume"`
	PutVolume             int64         `json:"put_volume"`
	CallOpenInterest      int64         `json:"call_open_interest"`
	PutOpenInterest       int64         `json:"put_open_interest"`
	PutCallVolumeRatio    float64       `json:"put_call_volume_ratio"`
	TradeCount            int           `json:"trade_count"`
	Confidence            float64       `json:"confidence"`
}
