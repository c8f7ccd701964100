package models

import "time"

type PatternType string

const (
	PatternAggressiveCallBuying PatternType = "aggressive_call_buying"
	PatternAggressivePutBuying  PatternType = "aggressive_put_buying"
	PatternInstitutionalFlow    PatternType = "institutional_flow"
)

type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalBearish Signal = "bearish"
	SignalNeutral Signal = "neutral"
)

type Sentiment string

const (
	SentimentVeryBullish Sentiment = "very_bullish"
	SentimentBullish     Sentiment = "bullish"
	SentimentNeutral     Sentiment = "neutral"
	SentimentBearish     Sentiment = "bearish"
	SentimentVeryBearish Sentiment = "very_bearish"
)

// FlowPattern is an immutable directional or institutional pattern found in
// a rolling window.
type FlowPattern struct {
	ID             string      `json:"id"`
	Type           PatternType `json:"type"`
	Symbol         string      `json:"symbol"`
	DetectedAt     time.Time   `json:"detected_at"`
	TotalPremium   float64     `json:"total_premium"`
	TotalContracts int64       `json:"total_contracts"`
	TradeCount     int         `json:"trade_count"`
	Signal         Signal      `json:"signal"`
	Confidence     float64     `json:"confidence"`
	TradeIDs       []string    `json:"trade_ids"`
}

// SideFlow is the call or put half of a flow breakdown.
type SideFlow struct {
	Trades    int     `json:"trades"`
	Contracts int64   `json:"contracts"`
	Premium   float64 `json:"premium"`
}

// SymbolFlow summarises one underlying inside the aggregation window.
type SymbolFlow struct {
	Symbol         string    `json:"symbol"`
	Calls          SideFlow  `json:"calls"`
	Puts           SideFlow  `json:"puts"`
	TotalTrades    int       `json:"total_trades"`
	TotalPremium   float64   `json:"total_premium"`
	NetPremium     float64   `json:"net_premium"`
	CallPutRatio   float64   `json:"call_put_ratio"`
	Sentiment      Sentiment `json:"sentiment"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	Institutional  int       `json:"institutional_trades"`
	LargestPremium float64   `json:"largest_premium"`
}

type StrikeFlow struct {
	Strike       float64   `json:"strike"`
	Calls        SideFlow  `json:"calls"`
	Puts         SideFlow  `json:"puts"`
	TotalPremium float64   `json:"total_premium"`
	Sentiment    Sentiment `json:"sentiment"`
}

type InstitutionalFlow struct {
	TotalTrades    int       `json:"total_trades"`
	TotalPremium   float64   `json:"total_premium"`
	CallPremium    float64   `json:"call_premium"`
	PutPremium     float64   `json:"put_premium"`
	TotalContracts int64     `json:"total_contracts"`
	Symbols        []string  `json:"symbols"`
	Sentiment      Sentiment `json:"sentiment"`
}

// WindowSummary is the analyzer's view of one underlying without running detection.
type WindowSummary struct {
	Symbol       string  `json:"symbol"`
	TradeCount   int     `json:"trade_count"`
	TotalPremium float64 `json:"total_premium"`
}
