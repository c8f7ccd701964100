package models

// Requests for the HTTP query facade.

type SymbolRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,max=16"`
}

type DarkPoolVolumeRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,max=16"`
	Window string `query:"window" json:"window" default:"15m" validate:"oneof=1m 5m 15m 30m 1h"`
}

type AlertsRequest struct {
	MinSeverity string `query:"min_severity" json:"min_severity" validate:"omitempty,oneof=info low medium high critical"`
}

type AlertActionRequest struct {
	ID    string `param:"id" json:"-" validate:"required"`
	Actor string `json:"actor" default:"api" validate:"max=64"`
}

type LimitRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type AlertHistoryRequest struct {
	Underlying string `query:"underlying" json:"underlying" validate:"required,max=16"`
	From       string `query:"from" json:"from"`
	To         string `query:"to" json:"to"`
	Limit      int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}
