package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID           string           `json:"id"`
	Symbol       string           `json:"symbol"`
	Side         Side             `json:"side"`
	Type         Type             `json:"type"`
	Amount       decimal.Decimal  `json:"amount"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Filled       decimal.Decimal  `json:"filled"`
	Reserved     decimal.Decimal  `json:"reserved"`
	ReserveAsset string           `json:"reserve_asset,omitempty"`
	Status       Status           `json:"status"`
	RejectReason string           `json:"reject_reason,omitempty"`
	CreatedAt    time.Time        `json:"ts_create"`
	UpdatedAt    time.Time        `json:"ts_update"`
	History      []HistoryEntry   `json:"history,omitempty"`
}

type HistoryEntry struct {
	At       time.Time        `json:"ts"`
	Status   Status           `json:"status"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
	Note     string           `json:"note,omitempty"`
}

type Fill struct {
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Notional   decimal.Decimal `json:"notional"`
	ExecutedAt time.Time       `json:"executed_at"`
}

func (o Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.Filled)
}

func (o Order) Base() string {
	base, _, _ := SplitSymbol(o.Symbol)
	return base
}

func (o Order) Quote() string {
	_, quote, _ := SplitSymbol(o.Symbol)
	return quote
}

// Touch advances UpdatedAt without ever moving it backwards.
func (o *Order) Touch(now time.Time) {
	if now.Before(o.UpdatedAt) {
		return
	}
	o.UpdatedAt = now
}

func (o *Order) AppendHistory(entry HistoryEntry) {
	o.History = append(o.History, entry)
}

// WithoutHistory returns a copy that does not share the history slice.
func (o Order) WithoutHistory() Order {
	o.History = nil
	return o
}

func SplitSymbol(symbol string) (string, string, error) {
	base, quote, found := strings.Cut(symbol, "/")
	if !found || base == "" || quote == "" || strings.Contains(quote, "/") {
		return "", "", fmt.Errorf("symbol %q is not BASE/QUOTE", symbol)
	}

	return base, quote, nil
}

// OrderFilter narrows order listings. Zero values mean "any".
type OrderFilter struct {
	Statuses       []Status
	Symbol         string
	Side           Side
	Limit          int
	IncludeHistory bool
}

func (f OrderFilter) Match(order Order) bool {
	if f.Symbol != "" && order.Symbol != f.Symbol {
		return false
	}
	if f.Side != SideUnspecified && order.Side != f.Side {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, status := range f.Statuses {
		if order.Status == status {
			return true
		}
	}
	return false
}

// OnlyOpen reports whether every requested status is an open one.
func (f OrderFilter) OnlyOpen() bool {
	if len(f.Statuses) == 0 {
		return false
	}
	for _, status := range f.Statuses {
		if !status.IsOpen() {
			return false
		}
	}
	return true
}
