package recorder

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	"github.com/nastyazhadan/paper-exchange/shared/config"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

// Recorder is a named fill destination, usually a Breaker.
type Recorder interface {
	Name() string
	RecordFill(ctx context.Context, fill models.Fill) error
}

type Metrics interface {
	ObserveRecorderError(recorder string)
	ObserveDroppedFill()
}

type queuedFill struct {
	fill    models.Fill
	traceID string
}

// Dispatcher delivers committed fills to the recorders from its own goroutine.
// Enqueue never blocks: a full queue drops the fill and counts it.
type Dispatcher struct {
	recorders []Recorder
	timeout   time.Duration
	metrics   Metrics
	queue     chan queuedFill
}

func NewDispatcher(cfg config.RecorderConfig, metrics Metrics, recorders ...Recorder) *Dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Dispatcher{
		recorders: recorders,
		timeout:   cfg.Timeout,
		metrics:   metrics,
		queue:     make(chan queuedFill, queueSize),
	}
}

func (d *Dispatcher) Enqueue(ctx context.Context, fill models.Fill) bool {
	if len(d.recorders) == 0 {
		return true
	}

	select {
	case d.queue <- queuedFill{fill: fill, traceID: zapLogger.TraceIDFromContext(ctx)}:
		return true
	default:
		d.metrics.ObserveDroppedFill()
		zapLogger.Warn(ctx, "fill queue full, fill dropped",
			zap.String("order_id", fill.OrderID),
			zap.Int("queue_size", cap(d.queue)),
		)
		return false
	}
}

// Pending is the number of fills waiting for delivery.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Run delivers queued fills until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if pending := len(d.queue); pending > 0 {
				zapLogger.Warn(ctx, "fill dispatcher stopped with undelivered fills", zap.Int("pending", pending))
			}
			return nil
		case item := <-d.queue:
			d.deliver(ctx, item)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, item queuedFill) {
	if item.traceID != "" {
		ctx = zapLogger.ContextWithTraceID(ctx, item.traceID)
	}

	for _, recorder := range d.recorders {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := recorder.RecordFill(callCtx, item.fill)
		cancel()

		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}

		d.metrics.ObserveRecorderError(recorder.Name())
		zapLogger.Warn(ctx, "fill recorder failed",
			zap.String("recorder", recorder.Name()),
			zap.String("order_id", item.fill.OrderID),
			zap.Error(err),
		)
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveRecorderError(string) {}
func (noopMetrics) ObserveDroppedFill()         {}
