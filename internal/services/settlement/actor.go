package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	"github.com/nastyazhadan/paper-exchange/internal/services/ledger"
	"github.com/nastyazhadan/paper-exchange/shared/config"
	serviceErrors "github.com/nastyazhadan/paper-exchange/shared/errors/service"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

const (
	kindSubmit   = "submit"
	kindCancel   = "cancel"
	kindTick     = "tick"
	kindRemove   = "remove"
	kindClearAll = "clear_all"
	kindDeposit  = "deposit"
)

type result struct {
	value any
	err   error
}

type command struct {
	kind  string
	ctx   context.Context
	run   func(ctx context.Context) (any, error)
	reply chan result
}

// Actor is the only writer of orders and balances. Mutating calls are queued
// into its inbox and executed one at a time by Run.
type Actor struct {
	cfg config.SettlementConfig

	orders    OrderStore
	market    MarketReader
	balances  BalanceStore
	committer Committer
	limiter   RateLimiter
	fills     FillQueue
	metrics   Metrics
	now       func() time.Time

	inbox chan command

	// owned by the Run goroutine; nil means reload from the store
	book *ledger.Book

	running  atomic.Bool
	started  atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

func NewActor(cfg config.SettlementConfig, deps Dependencies) *Actor {
	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = 1
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}

	actor := &Actor{
		cfg:       cfg,
		orders:    deps.Orders,
		market:    deps.Market,
		balances:  deps.Balances,
		committer: deps.Committer,
		limiter:   deps.Limiter,
		fills:     deps.Fills,
		metrics:   deps.Metrics,
		now:       deps.Clock,
		inbox:     make(chan command, inboxSize),
		done:      make(chan struct{}),
	}

	if actor.metrics == nil {
		actor.metrics = noopMetrics{}
	}
	if actor.now == nil {
		actor.now = func() time.Time { return time.Now().UTC() }
	}

	return actor
}

// Running reports whether the event loop is alive.
func (a *Actor) Running() bool {
	return a.running.Load()
}

// Run executes queued commands and periodic ticks until ctx is canceled.
// It must be called once.
func (a *Actor) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return errors.New("settlement actor already started")
	}

	a.running.Store(true)
	defer func() {
		a.running.Store(false)
		a.doneOnce.Do(func() { close(a.done) })
	}()

	var tickC <-chan time.Time
	if a.cfg.TickInterval > 0 {
		ticker := time.NewTicker(a.cfg.TickInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	zapLogger.Info(ctx, "settlement actor started",
		zap.Duration("tick_interval", a.cfg.TickInterval),
		zap.Int("inbox_size", cap(a.inbox)),
	)

	for {
		select {
		case <-ctx.Done():
			zapLogger.Info(ctx, "settlement actor stopping")
			return nil
		case cmd := <-a.inbox:
			a.dispatch(cmd)
		case <-tickC:
			a.dispatch(command{
				kind:  kindTick,
				ctx:   zapLogger.ContextWithTraceID(ctx, uuid.NewString()),
				run:   func(ctx context.Context) (any, error) { return a.tick(ctx) },
				reply: make(chan result, 1),
			})
		}
	}
}

func (a *Actor) dispatch(cmd command) {
	start := time.Now()
	ctx := zapLogger.ContextWithCommand(cmd.ctx, cmd.kind)

	var res result
	func() {
		defer func() {
			if r := recover(); r != nil {
				a.book = nil
				zapLogger.Error(ctx, "CRITICAL: settlement command panicked",
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				res = result{err: fmt.Errorf("%s: panic: %v: %w", cmd.kind, r, serviceErrors.ErrInvariantViolation)}
			}
		}()

		// the caller already gave up, so the command must not take effect
		if err := cmd.ctx.Err(); err != nil {
			res = result{err: fmt.Errorf("%s: %w", cmd.kind, serviceErrors.ErrCommandTimeout)}
			return
		}

		value, err := cmd.run(context.WithoutCancel(ctx))
		res = result{value: value, err: err}
	}()

	a.metrics.ObserveCommand(cmd.kind, outcome(res.err), time.Since(start))
	if res.err != nil {
		zapLogger.Debug(ctx, "settlement command failed", zap.Error(res.err))
	}

	cmd.reply <- res
}

// execute queues fn and waits for its result within CommandTimeout.
func execute[T any](ctx context.Context, a *Actor, kind string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if zapLogger.TraceIDFromContext(ctx) == "" {
		ctx = zapLogger.ContextWithTraceID(ctx, uuid.NewString())
	}

	cmdCtx, cancel := context.WithTimeout(ctx, a.cfg.CommandTimeout)
	defer cancel()

	cmd := command{
		kind: kind,
		ctx:  cmdCtx,
		run: func(ctx context.Context) (any, error) {
			return fn(ctx)
		},
		reply: make(chan result, 1),
	}

	select {
	case <-a.done:
		return zero, fmt.Errorf("%s: %w", kind, serviceErrors.ErrEngineStopped)
	default:
	}

	select {
	case a.inbox <- cmd:
	case <-a.done:
		return zero, fmt.Errorf("%s: %w", kind, serviceErrors.ErrEngineStopped)
	case <-cmdCtx.Done():
		return zero, fmt.Errorf("%s: %w", kind, serviceErrors.ErrEngineBusy)
	}

	select {
	case res := <-cmd.reply:
		value, _ := res.value.(T)
		return value, res.err
	case <-a.done:
		return zero, fmt.Errorf("%s: %w", kind, serviceErrors.ErrEngineStopped)
	case <-cmdCtx.Done():
		return zero, fmt.Errorf("%s: %w", kind, serviceErrors.ErrCommandTimeout)
	}
}

func (a *Actor) Submit(ctx context.Context, request SubmitRequest) (models.Order, error) {
	return execute(ctx, a, kindSubmit, func(ctx context.Context) (models.Order, error) {
		return a.submit(ctx, request)
	})
}

func (a *Actor) Cancel(ctx context.Context, id string) (models.Order, error) {
	return execute(ctx, a, kindCancel, func(ctx context.Context) (models.Order, error) {
		return a.cancel(ctx, id)
	})
}

func (a *Actor) Tick(ctx context.Context) (TickReport, error) {
	return execute(ctx, a, kindTick, a.tick)
}

func (a *Actor) Remove(ctx context.Context, id string) error {
	_, err := execute(ctx, a, kindRemove, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.remove(ctx, id)
	})
	return err
}

func (a *Actor) ClearAll(ctx context.Context) error {
	_, err := execute(ctx, a, kindClearAll, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.clearAll(ctx)
	})
	return err
}

func (a *Actor) Deposit(ctx context.Context, asset string, amount decimal.Decimal) (models.AssetBalance, error) {
	return execute(ctx, a, kindDeposit, func(ctx context.Context) (models.AssetBalance, error) {
		return a.deposit(ctx, asset, amount)
	})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, serviceErrors.ErrValidation),
		errors.Is(err, serviceErrors.ErrInsufficientFunds),
		errors.Is(err, serviceErrors.ErrInvalidAmount):
		return "rejected"
	case errors.Is(err, serviceErrors.ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, serviceErrors.ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, serviceErrors.ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, serviceErrors.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, serviceErrors.ErrCommandTimeout):
		return "timeout"
	default:
		return "error"
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveCommand(string, string, time.Duration) {}
func (noopMetrics) ObserveFill(string, string)                   {}
func (noopMetrics) ObserveTick(time.Duration, int)               {}
func (noopMetrics) ObserveSkippedSymbol(string)                  {}
