package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	serviceErrors "github.com/nastyazhadan/paper-exchange/shared/errors/service"
	"github.com/nastyazhadan/paper-exchange/shared/infra/redis"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

// tick evaluates every open order against the current ticker of its symbol.
// Each fill commits on its own; an invariant violation aborts only that order.
func (a *Actor) tick(ctx context.Context) (TickReport, error) {
	const op = "Actor.Tick"

	start := a.now()
	report := TickReport{}

	open, err := a.listOrders(ctx, models.OrderFilter{
		Statuses:       models.OpenStatuses(),
		IncludeHistory: true,
	})
	if err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}

	bySymbol := make(map[string][]models.Order)
	for _, order := range open {
		bySymbol[order.Symbol] = append(bySymbol[order.Symbol], order)
	}

	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	stillOpen := len(open)
	for _, symbol := range symbols {
		orders := bySymbol[symbol]
		sort.Slice(orders, func(i, j int) bool {
			if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
				return orders[i].CreatedAt.Before(orders[j].CreatedAt)
			}
			return orders[i].ID < orders[j].ID
		})

		ticker, ok, err := a.readTicker(ctx, symbol)
		if err != nil {
			return report, fmt.Errorf("%s: %w", op, err)
		}
		if !ok || !a.fresh(ticker, a.now()) {
			report.SkippedSymbols = append(report.SkippedSymbols, symbol)
			a.metrics.ObserveSkippedSymbol(symbol)
			zapLogger.Debug(ctx, "no usable ticker, symbol skipped",
				zap.String("symbol", symbol),
				zap.Bool("found", ok),
			)
			continue
		}

		for _, order := range orders {
			report.Evaluated++

			qty, ok := fillQuantity(order, ticker, a.cfg.LiquidityCapped)
			if !ok {
				continue
			}

			filled, fill, err := a.fillOrder(ctx, order, ticker.Price, qty)
			if errors.Is(err, serviceErrors.ErrInvariantViolation) {
				report.Aborted = append(report.Aborted, order.ID)
				zapLogger.Error(ctx, "fill aborted on ledger invariant",
					zap.String("order_id", order.ID),
					zap.String("symbol", symbol),
					zap.Error(err),
				)
				continue
			}
			if err != nil {
				return report, fmt.Errorf("%s: %w", op, err)
			}

			report.Fills = append(report.Fills, fill)
			if !filled.Status.IsOpen() {
				stillOpen--
			}
		}
	}

	report.Duration = a.now().Sub(start)
	a.metrics.ObserveTick(report.Duration, stillOpen)

	return report, nil
}

// fillOrder settles one fill and commits the order with the touched balances.
func (a *Actor) fillOrder(ctx context.Context, order models.Order, price, qty decimal.Decimal) (models.Order, models.Fill, error) {
	book, err := a.loadBook(ctx)
	if err != nil {
		return models.Order{}, models.Fill{}, err
	}

	fill, err := applyFill(book, &order, price, qty, a.now())
	if err != nil {
		return models.Order{}, models.Fill{}, err
	}

	batch := redis.NewBatch()
	if err = a.orders.Stage(batch, order, true); err != nil {
		return models.Order{}, models.Fill{}, err
	}
	if err = a.commit(ctx, batch, book); err != nil {
		return models.Order{}, models.Fill{}, err
	}

	zapLogger.Info(ctx, "order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.Stringer("side", order.Side),
		zap.String("price", price.String()),
		zap.String("quantity", qty.String()),
		zap.Stringer("status", order.Status),
	)

	a.publishFills(ctx, []models.Fill{fill})

	return order, fill, nil
}

// publishFills hands committed fills to the delivery queue without waiting on any sink.
func (a *Actor) publishFills(ctx context.Context, fills []models.Fill) {
	for _, fill := range fills {
		a.metrics.ObserveFill(fill.Symbol, fill.Side.String())

		if a.fills != nil {
			a.fills.Enqueue(ctx, fill)
		}
	}
}
