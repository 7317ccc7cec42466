package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusSets(t *testing.T) {
	for _, status := range AllStatuses() {
		assert.NotEqual(t, status.IsOpen(), status.IsTerminal(), status.String())
	}

	assert.ElementsMatch(t, []Status{StatusNew, StatusPartiallyFilled}, OpenStatuses())
	assert.False(t, StatusUnspecified.IsOpen())
	assert.False(t, StatusUnspecified.IsTerminal())
}

func TestEnumTextRoundTrip(t *testing.T) {
	type wire struct {
		Side   Side   `json:"side"`
		Type   Type   `json:"type"`
		Status Status `json:"status"`
	}

	data, err := json.Marshal(wire{Side: SideSell, Type: TypeLimit, Status: StatusPartiallyFilled})
	require.NoError(t, err)
	assert.JSONEq(t, `{"side":"sell","type":"limit","status":"partially_filled"}`, string(data))

	var decoded wire
	require.NoError(t, json.Unmarshal([]byte(`{"side":"BUY","type":"Market","status":"cancelled"}`), &decoded))
	assert.Equal(t, SideBuy, decoded.Side)
	assert.Equal(t, TypeMarket, decoded.Type)
	assert.Equal(t, StatusCanceled, decoded.Status)

	_, err = json.Marshal(wire{})
	assert.Error(t, err)

	assert.Error(t, json.Unmarshal([]byte(`{"side":"hold"}`), &decoded))
}

func TestUnspecifiedSideAndTypeAreStorable(t *testing.T) {
	type wire struct {
		Side   Side   `json:"side"`
		Type   Type   `json:"type"`
		Status Status `json:"status"`
	}

	data, err := json.Marshal(wire{Status: StatusRejected})
	require.NoError(t, err)
	assert.JSONEq(t, `{"side":"unspecified","type":"unspecified","status":"rejected"}`, string(data))

	decoded := wire{Side: SideBuy, Type: TypeLimit}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, SideUnspecified, decoded.Side)
	assert.Equal(t, TypeUnspecified, decoded.Type)

	_, err = ParseSide("unspecified")
	assert.Error(t, err)
}

func TestSplitSymbol(t *testing.T) {
	tests := []struct {
		symbol    string
		base      string
		quote     string
		expectErr bool
	}{
		{symbol: "BTC/USDT", base: "BTC", quote: "USDT"},
		{symbol: "ETH/EUR", base: "ETH", quote: "EUR"},
		{symbol: "BTCUSDT", expectErr: true},
		{symbol: "/USDT", expectErr: true},
		{symbol: "BTC/", expectErr: true},
		{symbol: "A/B/C", expectErr: true},
	}

	for _, test := range tests {
		t.Run(test.symbol, func(t *testing.T) {
			base, quote, err := SplitSymbol(test.symbol)
			if test.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.base, base)
			assert.Equal(t, test.quote, quote)
		})
	}
}

func TestOrderTouchIsMonotonic(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	order := Order{UpdatedAt: start}

	order.Touch(start.Add(-time.Minute))
	assert.Equal(t, start, order.UpdatedAt)

	order.Touch(start.Add(time.Second))
	assert.Equal(t, start.Add(time.Second), order.UpdatedAt)
}

func TestOrderRemaining(t *testing.T) {
	order := Order{
		Symbol: "SOL/USDT",
		Amount: decimal.RequireFromString("2.5"),
		Filled: decimal.RequireFromString("1"),
	}

	assert.True(t, order.Remaining().Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "SOL", order.Base())
	assert.Equal(t, "USDT", order.Quote())
}

func TestAssetBalanceTotal(t *testing.T) {
	balance := AssetBalance{
		Asset: "USDT",
		Free:  decimal.NewFromInt(10000),
		Used:  decimal.NewFromInt(50000),
	}

	assert.True(t, balance.Total().Equal(decimal.NewFromInt(60000)))
}
