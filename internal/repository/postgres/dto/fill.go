package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
)

type Fill struct {
	OrderID    string    `db:"order_id"`
	Symbol     string    `db:"symbol"`
	Side       int16     `db:"side"`
	Price      string    `db:"price"`
	Quantity   string    `db:"quantity"`
	Notional   string    `db:"notional"`
	ExecutedAt time.Time `db:"executed_at"`
}

func (f Fill) ToDomain() (models.Fill, error) {
	price, err := decimal.NewFromString(f.Price)
	if err != nil {
		return models.Fill{}, fmt.Errorf("price: %w", err)
	}
	quantity, err := decimal.NewFromString(f.Quantity)
	if err != nil {
		return models.Fill{}, fmt.Errorf("quantity: %w", err)
	}
	notional, err := decimal.NewFromString(f.Notional)
	if err != nil {
		return models.Fill{}, fmt.Errorf("notional: %w", err)
	}

	return models.Fill{
		OrderID:    f.OrderID,
		Symbol:     f.Symbol,
		Side:       models.Side(f.Side),
		Price:      price,
		Quantity:   quantity,
		Notional:   notional,
		ExecutedAt: f.ExecutedAt.UTC(),
	}, nil
}

func FillFromDomain(fill models.Fill) Fill {
	return Fill{
		OrderID:    fill.OrderID,
		Symbol:     fill.Symbol,
		Side:       int16(fill.Side),
		Price:      fill.Price.String(),
		Quantity:   fill.Quantity.String(),
		Notional:   fill.Notional.String(),
		ExecutedAt: fill.ExecutedAt,
	}
}
