package settlement

import (
	"context"
	"fmt"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
)

// Queries read the store directly and never go through the inbox.

func (a *Actor) GetOrder(ctx context.Context, id string, includeHistory bool) (models.Order, error) {
	const op = "Actor.GetOrder"

	order, err := a.getOrder(ctx, id)
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	if !includeHistory {
		order = order.WithoutHistory()
	}

	return order, nil
}

func (a *Actor) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	const op = "Actor.ListOrders"

	orders, err := a.listOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return orders, nil
}

func (a *Actor) ListBalances(ctx context.Context) ([]models.AssetBalance, error) {
	const op = "Actor.ListBalances"

	var balances []models.AssetBalance
	err := a.withStore(ctx, "BalanceStore.List", func(ctx context.Context) error {
		var err error
		balances, err = a.balances.List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return balances, nil
}
