package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	"github.com/nastyazhadan/paper-exchange/internal/services/ledger"
	serviceErrors "github.com/nastyazhadan/paper-exchange/shared/errors/service"
)

func TestFillQuantity(t *testing.T) {
	limit := func(side models.Side, price, amount, filled string) models.Order {
		return models.Order{
			Symbol: btcUSDT,
			Side:   side,
			Type:   models.TypeLimit,
			Amount: dec(amount),
			Price:  decPtr(price),
			Filled: dec(filled),
		}
	}
	ticker := func(price, bidVolume, askVolume string) models.Ticker {
		return models.Ticker{Symbol: btcUSDT, Price: dec(price), BidVolume: dec(bidVolume), AskVolume: dec(askVolume)}
	}

	tests := []struct {
		name     string
		order    models.Order
		ticker   models.Ticker
		capped   bool
		expected string
		ok       bool
	}{
		{name: "покупка ниже лимита", order: limit(models.SideBuy, "100", "2", "0"), ticker: ticker("99", "0", "0"), expected: "2", ok: true},
		{name: "покупка ровно по лимиту", order: limit(models.SideBuy, "100", "2", "0"), ticker: ticker("100", "0", "0"), expected: "2", ok: true},
		{name: "покупка выше лимита", order: limit(models.SideBuy, "100", "2", "0"), ticker: ticker("100.01", "0", "0")},
		{name: "продажа выше лимита", order: limit(models.SideSell, "100", "2", "0.5"), ticker: ticker("101", "0", "0"), expected: "1.5", ok: true},
		{name: "продажа ниже лимита", order: limit(models.SideSell, "100", "2", "0"), ticker: ticker("99.99", "0", "0")},
		{name: "ограничение ликвидностью на покупку", order: limit(models.SideBuy, "100", "2", "0"), ticker: ticker("99", "5", "0.3"), capped: true, expected: "0.3", ok: true},
		{name: "ограничение ликвидностью на продажу", order: limit(models.SideSell, "100", "2", "0"), ticker: ticker("101", "0.7", "5"), capped: true, expected: "0.7", ok: true},
		{name: "нулевой объём не ограничивает", order: limit(models.SideBuy, "100", "2", "0"), ticker: ticker("99", "0", "0"), capped: true, expected: "2", ok: true},
		{name: "объём без флага игнорируется", order: limit(models.SideBuy, "100", "2", "0"), ticker: ticker("99", "0", "0.3"), expected: "2", ok: true},
		{
			name:     "рыночный ордер исполняется полностью",
			order:    models.Order{Symbol: btcUSDT, Side: models.SideSell, Type: models.TypeMarket, Amount: dec("3"), Filled: decimal.Zero},
			ticker:   ticker("10", "0.1", "0.1"),
			capped:   true,
			expected: "3",
			ok:       true,
		},
		{name: "исполненный ордер", order: limit(models.SideBuy, "100", "2", "2"), ticker: ticker("99", "0", "0")},
		{name: "лимит без цены", order: models.Order{Symbol: btcUSDT, Side: models.SideBuy, Type: models.TypeLimit, Amount: dec("1"), Filled: decimal.Zero}, ticker: ticker("99", "0", "0")},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			qty, ok := fillQuantity(test.order, test.ticker, test.capped)
			assert.Equal(t, test.ok, ok)
			if test.ok {
				assertDecimal(t, test.expected, qty)
			}
		})
	}
}

func TestApplyFillRejectsOverfill(t *testing.T) {
	book := ledger.NewBook([]models.AssetBalance{{Asset: "USDT", Free: decimal.Zero, Used: dec("100")}})
	order := models.Order{
		ID:           "1",
		Symbol:       btcUSDT,
		Side:         models.SideBuy,
		Type:         models.TypeLimit,
		Amount:       dec("1"),
		Price:        decPtr("100"),
		Filled:       decimal.Zero,
		Reserved:     dec("100"),
		ReserveAsset: "USDT",
		Status:       models.StatusNew,
	}

	_, err := applyFill(book, &order, dec("90"), dec("2"), time.Now())
	require.ErrorIs(t, err, serviceErrors.ErrInvariantViolation)

	_, err = applyFill(book, &order, dec("120"), dec("1"), time.Now())
	require.ErrorIs(t, err, serviceErrors.ErrInvariantViolation)
}

func TestReservation(t *testing.T) {
	asset, amount, err := reservation(limitOrder(models.SideBuy), dec("50000"))
	require.NoError(t, err)
	assert.Equal(t, "USDT", asset)
	assertDecimal(t, "75000", amount)

	asset, amount, err = reservation(limitOrder(models.SideSell), dec("50000"))
	require.NoError(t, err)
	assert.Equal(t, "BTC", asset)
	assertDecimal(t, "1.5", amount)

	_, _, err = reservation(limitOrder(models.SideUnspecified), dec("1"))
	assert.Error(t, err)
}

func limitOrder(side models.Side) models.Order {
	return models.Order{Symbol: btcUSDT, Side: side, Type: models.TypeLimit, Amount: dec("1.5")}
}

func TestBackoffDelay(t *testing.T) {
	base := 50 * time.Millisecond

	assert.Equal(t, base, backoffDelay(base, 0))
	assert.Equal(t, 100*time.Millisecond, backoffDelay(base, 1))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(base, 3))
	assert.Equal(t, maxStoreBackoff, backoffDelay(base, 10))
	assert.Equal(t, maxStoreBackoff, backoffDelay(base, 64))
	assert.Equal(t, base, backoffDelay(base, -1))
	assert.Equal(t, time.Duration(0), backoffDelay(0, 3))
}
