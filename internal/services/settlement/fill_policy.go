package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	"github.com/nastyazhadan/paper-exchange/internal/services/ledger"
	serviceErrors "github.com/nastyazhadan/paper-exchange/shared/errors/service"
)

// fillQuantity decides how much of order executes against ticker.
// MARKET orders take the whole remainder; LIMIT orders need a crossing price.
// With liquidityCapped a LIMIT fill is bounded by the opposite side volume.
func fillQuantity(order models.Order, ticker models.Ticker, liquidityCapped bool) (decimal.Decimal, bool) {
	remaining := order.Remaining()
	if !remaining.IsPositive() || !ticker.Price.IsPositive() {
		return decimal.Zero, false
	}

	switch order.Type {
	case models.TypeMarket:
		return remaining, true
	case models.TypeLimit:
		if order.Price == nil {
			return decimal.Zero, false
		}

		var volume decimal.Decimal
		switch order.Side {
		case models.SideBuy:
			if ticker.Price.GreaterThan(*order.Price) {
				return decimal.Zero, false
			}
			volume = ticker.AskVolume
		case models.SideSell:
			if ticker.Price.LessThan(*order.Price) {
				return decimal.Zero, false
			}
			volume = ticker.BidVolume
		case models.SideUnspecified:
			return decimal.Zero, false
		default:
			return decimal.Zero, false
		}

		if liquidityCapped && volume.IsPositive() && volume.LessThan(remaining) {
			return volume, true
		}
		return remaining, true
	case models.TypeUnspecified:
		return decimal.Zero, false
	default:
		return decimal.Zero, false
	}
}

// reservation returns the asset and amount an order must lock on submit.
func reservation(order models.Order, price decimal.Decimal) (string, decimal.Decimal, error) {
	base, quote, err := models.SplitSymbol(order.Symbol)
	if err != nil {
		return "", decimal.Zero, err
	}

	switch order.Side {
	case models.SideBuy:
		return quote, order.Amount.Mul(price), nil
	case models.SideSell:
		return base, order.Amount, nil
	case models.SideUnspecified:
		return "", decimal.Zero, fmt.Errorf("side is required")
	default:
		return "", decimal.Zero, fmt.Errorf("unknown side %s", order.Side)
	}
}

// applyFill executes qty of order at price against book and mutates order.
// On error neither the book nor the order must be used any further.
func applyFill(book *ledger.Book, order *models.Order, price, qty decimal.Decimal, now time.Time) (models.Fill, error) {
	const op = "applyFill"

	remaining := order.Remaining()
	if !qty.IsPositive() || qty.GreaterThan(remaining) {
		return models.Fill{}, fmt.Errorf("%s: quantity %s of remaining %s: %w",
			op, qty, remaining, serviceErrors.ErrInvariantViolation)
	}

	base, quote, err := models.SplitSymbol(order.Symbol)
	if err != nil {
		return models.Fill{}, fmt.Errorf("%s: %v: %w", op, err, serviceErrors.ErrInvariantViolation)
	}

	notional := qty.Mul(price)

	// share of the reservation that belongs to qty
	consumed := order.Reserved
	if qty.LessThan(remaining) {
		switch order.Side {
		case models.SideBuy:
			if order.Price == nil {
				return models.Fill{}, fmt.Errorf("%s: partial fill without limit price: %w",
					op, serviceErrors.ErrInvariantViolation)
			}
			consumed = qty.Mul(*order.Price)
		case models.SideSell:
			consumed = qty
		case models.SideUnspecified:
			return models.Fill{}, fmt.Errorf("%s: side is required: %w", op, serviceErrors.ErrInvariantViolation)
		default:
			return models.Fill{}, fmt.Errorf("%s: unknown side: %w", op, serviceErrors.ErrInvariantViolation)
		}
	}
	if consumed.GreaterThan(order.Reserved) {
		return models.Fill{}, fmt.Errorf("%s: needs %s of reserved %s: %w",
			op, consumed, order.Reserved, serviceErrors.ErrInvariantViolation)
	}

	switch order.Side {
	case models.SideBuy:
		if notional.GreaterThan(consumed) {
			return models.Fill{}, fmt.Errorf("%s: notional %s exceeds reservation %s: %w",
				op, notional, consumed, serviceErrors.ErrInvariantViolation)
		}
		if err := book.Settle(quote, notional, base, qty); err != nil {
			return models.Fill{}, fmt.Errorf("%s: %w", op, err)
		}
		if surplus := consumed.Sub(notional); surplus.IsPositive() {
			if err := book.Release(quote, surplus); err != nil {
				return models.Fill{}, fmt.Errorf("%s: %w", op, err)
			}
		}
	case models.SideSell:
		if err := book.Settle(base, qty, quote, notional); err != nil {
			return models.Fill{}, fmt.Errorf("%s: %w", op, err)
		}
	case models.SideUnspecified:
		return models.Fill{}, fmt.Errorf("%s: side is required: %w", op, serviceErrors.ErrInvariantViolation)
	default:
		return models.Fill{}, fmt.Errorf("%s: unknown side: %w", op, serviceErrors.ErrInvariantViolation)
	}

	order.Filled = order.Filled.Add(qty)
	order.Reserved = order.Reserved.Sub(consumed)

	if order.Filled.Equal(order.Amount) {
		if order.Reserved.IsPositive() {
			if err := book.Release(order.ReserveAsset, order.Reserved); err != nil {
				return models.Fill{}, fmt.Errorf("%s: %w", op, err)
			}
			order.Reserved = decimal.Zero
		}
		order.Status = models.StatusFilled
	} else {
		order.Status = models.StatusPartiallyFilled
	}

	order.Touch(now)
	fillPrice, fillQty := price, qty
	order.AppendHistory(models.HistoryEntry{
		At:       now,
		Status:   order.Status,
		Price:    &fillPrice,
		Quantity: &fillQty,
		Note:     "fill",
	})

	return models.Fill{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Price:      price,
		Quantity:   qty,
		Notional:   notional,
		ExecutedAt: now,
	}, nil
}
