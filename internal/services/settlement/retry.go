package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	redigo "github.com/gomodule/redigo/redis"
	"go.uber.org/zap"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	"github.com/nastyazhadan/paper-exchange/internal/services/ledger"
	repositoryErrors "github.com/nastyazhadan/paper-exchange/shared/errors/repository"
	serviceErrors "github.com/nastyazhadan/paper-exchange/shared/errors/service"
	"github.com/nastyazhadan/paper-exchange/shared/infra/redis"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

const maxStoreBackoff = 2 * time.Second

// backoffDelay is base * 2^attempt, capped at maxStoreBackoff.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		return base
	}
	if attempt > 30 {
		return maxStoreBackoff
	}

	delay := base * time.Duration(1<<attempt)
	if delay > maxStoreBackoff || delay <= 0 {
		return maxStoreBackoff
	}

	return delay
}

// permanent errors describe the data, retrying them cannot help
func isPermanent(err error) bool {
	var replyErr redigo.Error

	return errors.Is(err, repositoryErrors.ErrOrderNotFound) ||
		errors.Is(err, repositoryErrors.ErrPriceUnavailable) ||
		errors.Is(err, repositoryErrors.ErrInvalidRecord) ||
		errors.Is(err, repositoryErrors.ErrEmptySymbol) ||
		errors.As(err, &replyErr)
}

// withStore runs fn with StoreTimeout per attempt and retries transient failures.
// Exhausted retries surface as ErrStoreUnavailable.
func (a *Actor) withStore(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error

	for attempt := 0; attempt <= a.cfg.StoreRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoffDelay(a.cfg.StoreBackoff, attempt-1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: %w: %v", op, serviceErrors.ErrStoreUnavailable, ctx.Err())
			case <-timer.C:
			}
		}

		storeCtx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout)
		err = fn(storeCtx)
		cancel()

		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return err
		}

		zapLogger.Warn(ctx, "store call failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return fmt.Errorf("%s: %w: %v", op, serviceErrors.ErrStoreUnavailable, err)
}

// loadBook returns a working copy of the cached book, loading it first when needed.
func (a *Actor) loadBook(ctx context.Context) (*ledger.Book, error) {
	if a.book == nil {
		var balances []models.AssetBalance
		err := a.withStore(ctx, "BalanceStore.List", func(ctx context.Context) error {
			var err error
			balances, err = a.balances.List(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}

		a.book = ledger.NewBook(balances)
	}

	return a.book.Clone(), nil
}

// commit applies batch atomically and then adopts book as the cached state.
// Any failure drops the cache so the next command reloads from the store.
func (a *Actor) commit(ctx context.Context, batch *redis.Batch, book *ledger.Book) error {
	if book != nil {
		if err := a.balances.Stage(batch, book.Touched()...); err != nil {
			a.book = nil
			return err
		}
	}

	err := a.withStore(ctx, "Committer.Exec", func(ctx context.Context) error {
		return a.committer.Exec(ctx, batch)
	})
	if err != nil {
		a.book = nil
		return err
	}

	if book != nil {
		a.book = book
	}

	return nil
}

func (a *Actor) readTicker(ctx context.Context, symbol string) (models.Ticker, bool, error) {
	var (
		ticker models.Ticker
		ok     bool
	)

	err := a.withStore(ctx, "MarketReader.Ticker", func(ctx context.Context) error {
		var err error
		ticker, ok, err = a.market.Ticker(ctx, symbol)
		return err
	})

	return ticker, ok, err
}

// fresh applies the staleness policy. Without a timestamp the age is unknown.
func (a *Actor) fresh(ticker models.Ticker, now time.Time) bool {
	if a.cfg.MaxTickerAge <= 0 {
		return true
	}
	if ticker.Timestamp.IsZero() {
		return false
	}

	return ticker.Age(now) <= a.cfg.MaxTickerAge
}

func (a *Actor) getOrder(ctx context.Context, id string) (models.Order, error) {
	var order models.Order

	err := a.withStore(ctx, "OrderStore.Get", func(ctx context.Context) error {
		var err error
		order, err = a.orders.Get(ctx, id, true)
		return err
	})
	if errors.Is(err, repositoryErrors.ErrOrderNotFound) {
		return models.Order{}, serviceErrors.ErrOrderNotFound
	}

	return order, err
}

func (a *Actor) listOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var orders []models.Order

	err := a.withStore(ctx, "OrderStore.List", func(ctx context.Context) error {
		var err error
		orders, err = a.orders.List(ctx, filter)
		return err
	})

	return orders, err
}
