package recorder

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	"github.com/nastyazhadan/paper-exchange/shared/config"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

// Sink is an external destination for executed fills.
type Sink interface {
	RecordFill(ctx context.Context, fill models.Fill) error
}

// Breaker guards a Sink with a circuit breaker so a dead sink is skipped quickly.
type Breaker struct {
	name           string
	sink           Sink
	circuitBreaker *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(name string, sink Sink, cfg config.CircuitBreakerConfig) *Breaker {
	circuitBreaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zapLogger.Warn(context.Background(), "fill recorder breaker state changed",
				zap.String("recorder", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Breaker{
		name:           name,
		sink:           sink,
		circuitBreaker: circuitBreaker,
	}
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) State() gobreaker.State {
	return b.circuitBreaker.State()
}

func (b *Breaker) RecordFill(ctx context.Context, fill models.Fill) error {
	_, err := b.circuitBreaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.sink.RecordFill(ctx, fill)
	})
	if err != nil {
		return fmt.Errorf("circuit breaker %s: %w", b.name, err)
	}

	return nil
}
