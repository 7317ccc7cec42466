package dto

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
)

// Timestamps above this are treated as milliseconds.
var millisecondsThreshold = decimal.New(1, 12)

type TickerRedisView struct {
	Symbol    string `redis:"symbol"`
	Price     string `redis:"price"`
	Timestamp string `redis:"timestamp"`
	Bid       string `redis:"bid"`
	Ask       string `redis:"ask"`
	BidVolume string `redis:"bidVolume"`
	AskVolume string `redis:"askVolume"`
}

func TickerFromHash(values map[string]string) TickerRedisView {
	return TickerRedisView{
		Symbol:    values["symbol"],
		Price:     values["price"],
		Timestamp: values["timestamp"],
		Bid:       values["bid"],
		Ask:       values["ask"],
		BidVolume: values["bidVolume"],
		AskVolume: values["askVolume"],
	}
}

// ToDomain returns false when no positive price can be derived from the hash.
func (t TickerRedisView) ToDomain(symbol string) (models.Ticker, bool) {
	ticker := models.Ticker{
		Symbol:    symbol,
		Bid:       parseOrZero(t.Bid),
		Ask:       parseOrZero(t.Ask),
		BidVolume: parseOrZero(t.BidVolume),
		AskVolume: parseOrZero(t.AskVolume),
		Timestamp: parseTimestamp(t.Timestamp),
	}

	price, ok := parsePositive(t.Price)
	if !ok {
		if !ticker.Bid.IsPositive() || !ticker.Ask.IsPositive() {
			return models.Ticker{}, false
		}
		price = ticker.Bid.Add(ticker.Ask).Div(decimal.NewFromInt(2))
	}
	ticker.Price = price

	return ticker, true
}

func FromDomain(ticker models.Ticker) TickerRedisView {
	view := TickerRedisView{
		Symbol:    ticker.Symbol,
		Price:     ticker.Price.String(),
		Bid:       ticker.Bid.String(),
		Ask:       ticker.Ask.String(),
		BidVolume: ticker.BidVolume.String(),
		AskVolume: ticker.AskVolume.String(),
	}

	if !ticker.Timestamp.IsZero() {
		view.Timestamp = decimal.NewFromInt(ticker.Timestamp.UnixNano()).Shift(-9).String()
	}

	return view
}

func parsePositive(raw string) (decimal.Decimal, bool) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !value.IsPositive() {
		return decimal.Zero, false
	}
	return value, true
}

func parseOrZero(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || value.IsNegative() {
		return decimal.Zero
	}
	return value
}

func parseTimestamp(raw string) time.Time {
	value, ok := parsePositive(raw)
	if !ok {
		return time.Time{}
	}

	if value.GreaterThan(millisecondsThreshold) {
		value = value.Shift(-3)
	}

	return time.Unix(0, value.Shift(9).IntPart()).UTC()
}
