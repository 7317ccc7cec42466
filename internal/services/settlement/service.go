package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	"github.com/nastyazhadan/paper-exchange/shared/infra/redis"
)

type OrderStore interface {
	Get(ctx context.Context, id string, includeHistory bool) (models.Order, error)
	List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	Stage(batch *redis.Batch, order models.Order, withHistory bool) error
	StageRemove(batch *redis.Batch, order models.Order)
	StageClear(ctx context.Context) (*redis.Batch, error)
}

type MarketReader interface {
	Ticker(ctx context.Context, symbol string) (models.Ticker, bool, error)
}

type BalanceStore interface {
	List(ctx context.Context) ([]models.AssetBalance, error)
	Stage(batch *redis.Batch, balances ...models.AssetBalance) error
}

// Committer applies a staged batch atomically.
type Committer interface {
	Exec(ctx context.Context, batch *redis.Batch) error
}

type RateLimiter interface {
	Allow(ctx context.Context, symbol string) (bool, error)
}

// FillQueue accepts committed fills for asynchronous delivery and never blocks.
type FillQueue interface {
	Enqueue(ctx context.Context, fill models.Fill) bool
}

type Metrics interface {
	ObserveCommand(kind, result string, elapsed time.Duration)
	ObserveFill(symbol, side string)
	ObserveTick(elapsed time.Duration, open int)
	ObserveSkippedSymbol(symbol string)
}

type SubmitRequest struct {
	Symbol string
	Side   models.Side
	Type   models.Type
	Amount decimal.Decimal
	Price  *decimal.Decimal
}

type TickReport struct {
	Evaluated      int
	Fills          []models.Fill
	SkippedSymbols []string
	Aborted        []string
	Duration       time.Duration
}

type Dependencies struct {
	Orders    OrderStore
	Market    MarketReader
	Balances  BalanceStore
	Committer Committer
	Limiter   RateLimiter
	Fills     FillQueue
	Metrics   Metrics
	Clock     func() time.Time
}
