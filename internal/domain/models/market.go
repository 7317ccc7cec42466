package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Ticker struct {
	Symbol    string
	Price     decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	BidVolume decimal.Decimal
	AskVolume decimal.Decimal
	Timestamp time.Time
}

func (t Ticker) Age(now time.Time) time.Duration {
	if t.Timestamp.IsZero() {
		return 0
	}
	return now.Sub(t.Timestamp)
}

type AssetBalance struct {
	Asset string          `json:"asset"`
	Free  decimal.Decimal `json:"free"`
	Used  decimal.Decimal `json:"used"`
}

func (b AssetBalance) Total() decimal.Decimal {
	return b.Free.Add(b.Used)
}
