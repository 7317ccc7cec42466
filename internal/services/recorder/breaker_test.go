package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	"github.com/nastyazhadan/paper-exchange/internal/services/recorder/mocks"
	"github.com/nastyazhadan/paper-exchange/shared/config"
)

var testFill = models.Fill{
	OrderID:    "order-1",
	Symbol:     "BTC/USDT",
	Side:       models.SideBuy,
	Price:      decimal.NewFromInt(49000),
	Quantity:   decimal.NewFromInt(1),
	Notional:   decimal.NewFromInt(49000),
	ExecutedAt: time.Unix(1700000000, 0).UTC(),
}

func breakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		MaxFailures: 2,
	}
}

func TestBreakerPassesThrough(t *testing.T) {
	sink := &mocks.MockSink{}
	sink.On("RecordFill", mock.Anything, testFill).Return(nil).Once()

	breaker := NewBreaker("journal", sink, breakerConfig())
	require.NoError(t, breaker.RecordFill(context.Background(), testFill))

	assert.Equal(t, "journal", breaker.Name())
	assert.Equal(t, gobreaker.StateClosed, breaker.State())
	sink.AssertExpectations(t)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	sinkErr := errors.New("broker down")

	sink := &mocks.MockSink{}
	sink.On("RecordFill", mock.Anything, mock.AnythingOfType("models.Fill")).Return(sinkErr).Times(2)

	breaker := NewBreaker("kafka", sink, breakerConfig())

	for i := 0; i < 2; i++ {
		err := breaker.RecordFill(context.Background(), testFill)
		assert.ErrorIs(t, err, sinkErr)
	}

	assert.Equal(t, gobreaker.StateOpen, breaker.State())

	err := breaker.RecordFill(context.Background(), testFill)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	sink.AssertNumberOfCalls(t, "RecordFill", 2)
}
