package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	serviceErrors "github.com/nastyazhadan/paper-exchange/shared/errors/service"
	"github.com/nastyazhadan/paper-exchange/shared/infra/redis"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

func (a *Actor) submit(ctx context.Context, request SubmitRequest) (models.Order, error) {
	const op = "Actor.Submit"

	if err := a.checkRateLimit(ctx, request.Symbol); err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	now := a.now()
	order := models.Order{
		ID:        uuid.NewString(),
		Symbol:    strings.TrimSpace(request.Symbol),
		Side:      request.Side,
		Type:      request.Type,
		Amount:    request.Amount,
		Filled:    decimal.Zero,
		Reserved:  decimal.Zero,
		Status:    models.StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if request.Type == models.TypeLimit && request.Price != nil {
		price := *request.Price
		order.Price = &price
	}

	if err := validate(order); err != nil {
		return a.reject(ctx, order, fmt.Errorf("%w: %v", serviceErrors.ErrValidation, err))
	}

	ticker, known, err := a.readTicker(ctx, order.Symbol)
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	if !known {
		return a.reject(ctx, order, fmt.Errorf("%w: unknown symbol %s", serviceErrors.ErrValidation, order.Symbol))
	}

	reservePrice := ticker.Price
	switch order.Type {
	case models.TypeLimit:
		reservePrice = *order.Price
	case models.TypeMarket:
		if !a.fresh(ticker, now) {
			return a.reject(ctx, order, fmt.Errorf("%w: no fresh price for %s", serviceErrors.ErrValidation, order.Symbol))
		}
	case models.TypeUnspecified:
		return a.reject(ctx, order, fmt.Errorf("%w: type is required", serviceErrors.ErrValidation))
	default:
		return a.reject(ctx, order, fmt.Errorf("%w: unknown type %s", serviceErrors.ErrValidation, order.Type))
	}

	asset, amount, err := reservation(order, reservePrice)
	if err != nil {
		return a.reject(ctx, order, fmt.Errorf("%w: %v", serviceErrors.ErrValidation, err))
	}

	book, err := a.loadBook(ctx)
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	if err = book.Reserve(asset, amount); err != nil {
		if errors.Is(err, serviceErrors.ErrInsufficientFunds) || errors.Is(err, serviceErrors.ErrInvalidAmount) {
			return a.reject(ctx, order, err)
		}
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	order.Reserved = amount
	order.ReserveAsset = asset

	var fills []models.Fill
	withHistory := false
	if order.Type == models.TypeMarket {
		fill, err := applyFill(book, &order, ticker.Price, order.Remaining(), now)
		if err != nil {
			zapLogger.Error(ctx, "market order fill aborted",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
			return models.Order{}, fmt.Errorf("%s: %w", op, err)
		}
		fills = append(fills, fill)
		withHistory = true
	}

	batch := redis.NewBatch()
	if err = a.orders.Stage(batch, order, withHistory); err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	if err = a.commit(ctx, batch, book); err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	zapLogger.Info(ctx, "order accepted",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.Stringer("side", order.Side),
		zap.Stringer("type", order.Type),
		zap.String("amount", order.Amount.String()),
		zap.Stringer("status", order.Status),
	)

	a.publishFills(ctx, fills)

	return order.WithoutHistory(), nil
}

func validate(order models.Order) error {
	if _, _, err := models.SplitSymbol(order.Symbol); err != nil {
		return err
	}
	if !order.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", order.Amount)
	}

	switch order.Side {
	case models.SideBuy, models.SideSell:
	case models.SideUnspecified:
		return errors.New("side is required")
	default:
		return fmt.Errorf("unknown side %s", order.Side)
	}

	switch order.Type {
	case models.TypeMarket:
	case models.TypeLimit:
		if order.Price == nil || !order.Price.IsPositive() {
			return errors.New("limit order needs a positive price")
		}
	case models.TypeUnspecified:
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown type %s", order.Type)
	}

	return nil
}

// reject persists order as REJECTED outside the open indexes and returns it with cause.
func (a *Actor) reject(ctx context.Context, order models.Order, cause error) (models.Order, error) {
	const op = "Actor.Submit"

	order.Status = models.StatusRejected
	order.RejectReason = cause.Error()
	order.Reserved = decimal.Zero
	order.ReserveAsset = ""

	batch := redis.NewBatch()
	if err := a.orders.Stage(batch, order, false); err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := a.commit(ctx, batch, nil); err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	zapLogger.Info(ctx, "order rejected",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("reason", order.RejectReason),
	)

	return order, fmt.Errorf("%s: %w", op, cause)
}

func (a *Actor) checkRateLimit(ctx context.Context, symbol string) error {
	if a.limiter == nil {
		return nil
	}

	allowed, err := a.limiter.Allow(ctx, symbol)
	if err != nil {
		// the limiter shares the store; do not block trading on its failure
		zapLogger.Warn(ctx, "rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !allowed {
		return serviceErrors.ErrRateLimitExceeded
	}

	return nil
}

func (a *Actor) cancel(ctx context.Context, id string) (models.Order, error) {
	const op = "Actor.Cancel"

	order, err := a.getOrder(ctx, id)
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	if !order.Status.IsOpen() {
		return order.WithoutHistory(), nil
	}

	book, err := a.loadBook(ctx)
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	if order.Reserved.IsPositive() {
		if err = book.Release(order.ReserveAsset, order.Reserved); err != nil {
			zapLogger.Error(ctx, "cancel aborted",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
			return models.Order{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	now := a.now()
	order.Reserved = decimal.Zero
	order.Status = models.StatusCanceled
	order.Touch(now)
	order.AppendHistory(models.HistoryEntry{At: now, Status: models.StatusCanceled, Note: "canceled"})

	batch := redis.NewBatch()
	if err = a.orders.Stage(batch, order, true); err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	if err = a.commit(ctx, batch, book); err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	zapLogger.Info(ctx, "order canceled", zap.String("order_id", order.ID))

	return order.WithoutHistory(), nil
}

// remove hard-deletes an order; an open order gives its reservation back first.
func (a *Actor) remove(ctx context.Context, id string) error {
	const op = "Actor.Remove"

	order, err := a.getOrder(ctx, id)
	if errors.Is(err, serviceErrors.ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	batch := redis.NewBatch()
	a.orders.StageRemove(batch, order)

	if !order.Status.IsOpen() || !order.Reserved.IsPositive() {
		if err = a.commit(ctx, batch, nil); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	book, err := a.loadBook(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = book.Release(order.ReserveAsset, order.Reserved); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = a.commit(ctx, batch, book); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	zapLogger.Info(ctx, "order removed", zap.String("order_id", order.ID))

	return nil
}

// clearAll wipes every order and index and returns all reserved funds to free.
func (a *Actor) clearAll(ctx context.Context) error {
	const op = "Actor.ClearAll"

	var batch *redis.Batch
	err := a.withStore(ctx, "OrderStore.StageClear", func(ctx context.Context) error {
		var err error
		batch, err = a.orders.StageClear(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	book, err := a.loadBook(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, balance := range book.All() {
		if !balance.Used.IsPositive() {
			continue
		}
		if err = book.Release(balance.Asset, balance.Used); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err = a.commit(ctx, batch, book); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	zapLogger.Warn(ctx, "all orders cleared")

	return nil
}

func (a *Actor) deposit(ctx context.Context, asset string, amount decimal.Decimal) (models.AssetBalance, error) {
	const op = "Actor.Deposit"

	asset = strings.ToUpper(strings.TrimSpace(asset))

	book, err := a.loadBook(ctx)
	if err != nil {
		return models.AssetBalance{}, fmt.Errorf("%s: %w", op, err)
	}
	if err = book.Deposit(asset, amount); err != nil {
		return models.AssetBalance{}, fmt.Errorf("%s: %w", op, err)
	}
	if err = a.commit(ctx, redis.NewBatch(), book); err != nil {
		return models.AssetBalance{}, fmt.Errorf("%s: %w", op, err)
	}

	return book.Get(asset), nil
}
