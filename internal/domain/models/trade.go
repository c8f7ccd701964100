package models

import (
	"fmt"
	"time"
)

// ContractMultiplier is the number of shares one equity option contract covers.
const ContractMultiplier = 100

type ContractType string

const (
	Call ContractType = "call"
	Put  ContractType = "put"
)

type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
	SideMid Side = "mid"
)

type Classification string

const (
	ClassRegular  Classification = "regular"
	ClassSweep    Classification = "sweep"
	ClassBlock    Classification = "block"
	ClassDarkPool Classification = "dark_pool"
)

// OptionsTrade is one executed options print.
//
// Every field is fixed on ingress except Classification, which a detector may
// upgrade once from ClassRegular.
type OptionsTrade struct {
	ID                string         `json:"id" validate:"required"`
	Symbol            string         `json:"symbol" validate:"required"`
	Underlying        string         `json:"underlying" validate:"required"`
	ContractType      ContractType   `json:"contract_type" validate:"required,oneof=call put"`
	Strike            float64        `json:"strike" validate:"gt=0"`
	Expiration        time.Time      `json:"expiration" validate:"required"`
	Premium           float64        `json:"premium" validate:"gte=0"`
	Size              int64          `json:"size" validate:"gte=0"`
	Price             float64        `json:"price" validate:"gte=0"`
	Timestamp         time.Time      `json:"timestamp" validate:"required"`
	Classification    Classification `json:"classification,omitempty" validate:"omitempty,oneof=regular sweep block dark_pool"`
	Venue             string         `json:"venue" validate:"required"`
	Side              Side           `json:"side" validate:"required,oneof=bid ask mid"`
	IsAggressive      bool           `json:"is_aggressive"`
	AboveAsk          bool           `json:"above_ask"`
	IsOpening         bool           `json:"is_opening"`
	UnderlyingPrice   *float64       `json:"underlying_price,omitempty" validate:"omitempty,gt=0"`
	OpenInterest      *int64         `json:"open_interest,omitempty" validate:"omitempty,gte=0"`
	ImpliedVolatility *float64       `json:"implied_volatility,omitempty" validate:"omitempty,gt=0"`
}

// Notional is the dollar value of the print.
func (t *OptionsTrade) Notional() float64 {
	return t.Premium * float64(t.Size) * ContractMultiplier
}

// Classify upgrades a regular trade to c. It reports false when the trade
// already carries a pattern classification.
func (t *OptionsTrade) Classify(c Classification) bool {
	if t.Classification != "" && t.Classification != ClassRegular {
		return false
	}
	t.Classification = c
	return true
}

// IsCustomerBuy reports whether the print looks customer-initiated on the buy side.
func (t *OptionsTrade) IsCustomerBuy() bool {
	return t.Side == SideAsk || t.AboveAsk || t.IsAggressive
}

// ValidateDates rejects contracts that had already expired on the trade date.
func (t *OptionsTrade) ValidateDates() error {
	tradeDay := t.Timestamp.UTC().Truncate(24 * time.Hour)
	expDay := t.Expiration.UTC().Truncate(24 * time.Hour)
	if expDay.Before(tradeDay) {
		return fmt.Errorf("expiration %s is before trade date %s",
			expDay.Format(time.DateOnly), tradeDay.Format(time.DateOnly))
	}
	return nil
}

func (t *OptionsTrade) String() string {
	return fmt.Sprintf("%s %s %s %.2f x%d @%s", t.ID, t.Symbol, t.ContractType, t.Premium, t.Size, t.Venue)
}
