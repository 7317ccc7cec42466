package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/nastyazhadan/paper-exchange/internal/infrastructure/kafka"
	"github.com/nastyazhadan/paper-exchange/internal/repository/postgres"
	"github.com/nastyazhadan/paper-exchange/internal/services/recorder"
	"github.com/nastyazhadan/paper-exchange/internal/services/settlement"
	"github.com/nastyazhadan/paper-exchange/migrations"
	"github.com/nastyazhadan/paper-exchange/shared/config"
	"github.com/nastyazhadan/paper-exchange/shared/infra/db"
	"github.com/nastyazhadan/paper-exchange/shared/infra/health"
	logInterceptor "github.com/nastyazhadan/paper-exchange/shared/interceptors/logger"
	"github.com/nastyazhadan/paper-exchange/shared/interceptors/recovery"
	"github.com/nastyazhadan/paper-exchange/shared/interceptors/xrequestid"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

const actorStopTimeout = 10 * time.Second

// MetricsServer exposes the Prometheus registry over HTTP.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
}

func (m *MetricsServer) Addr() net.Addr {
	return m.listener.Addr()
}

func Run(ctx context.Context, cfg config.EngineConfig) {
	app := fx.New(Module(ctx, cfg))

	app.Run()
}

func Module(ctx context.Context, cfg config.EngineConfig) fx.Option {
	return fx.Options(
		fx.Provide(
			func() context.Context {
				return ctx
			},
			func() config.EngineConfig {
				return cfg
			}),
		fx.Provide(
			provideContainer,
			provideRecorders,
			provideDispatcher,
			provideActor,
			provideListener,
			provideGRPCServer,
			provideMetricsServer,
		),
		fx.Invoke(
			registerLogger,
			seedBalances,
			startDispatcher,
			startActor,
			startGRPCServer,
			startMetricsServer,
		),
	)
}

func registerLogger(lifeCycle fx.Lifecycle, cfg config.EngineConfig) error {
	if err := zapLogger.Init(cfg.LogLevel, cfg.LogFormat == "json"); err != nil {
		return err
	}

	lifeCycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = zapLogger.Sync()

			return nil
		},
	})

	return nil
}

func provideContainer(
	ctx context.Context,
	lifeCycle fx.Lifecycle,
	cfg config.EngineConfig,
) (*DiContainer, error) {
	container := NewDIContainer(cfg)

	if err := container.RedisClient().Ping(ctx); err != nil {
		_ = container.RedisPool().Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Address(), err)
	}

	lifeCycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return container.RedisPool().Close()
		},
	})

	return container, nil
}

func seedBalances(ctx context.Context, container *DiContainer, cfg config.EngineConfig) error {
	balances, err := cfg.Settlement.Balances()
	if err != nil {
		return err
	}

	return container.BalanceStore().Seed(ctx, balances)
}

// provideRecorders builds the optional fill sinks, each behind its own breaker.
func provideRecorders(
	ctx context.Context,
	lifeCycle fx.Lifecycle,
	cfg config.EngineConfig,
) ([]recorder.Recorder, error) {
	var recorders []recorder.Recorder

	if cfg.Journal.Enabled() {
		pool, err := db.SetupDB(ctx, cfg.Journal.DBURI, migrations.Migrations)
		if err != nil {
			return nil, fmt.Errorf("db.SetupDB: %w", err)
		}
		lifeCycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				pool.Close()
				return nil
			},
		})

		recorders = append(recorders, recorder.NewBreaker("journal", postgres.NewFillJournal(pool), cfg.CircuitBreaker))
	}

	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			return nil, err
		}
		publisher := kafka.NewFillPublisher(producer, cfg.Kafka.FillsTopic)
		lifeCycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return publisher.Close()
			},
		})

		recorders = append(recorders, recorder.NewBreaker("kafka", publisher, cfg.CircuitBreaker))
	}

	return recorders, nil
}

func provideDispatcher(
	container *DiContainer,
	recorders []recorder.Recorder,
	cfg config.EngineConfig,
) *recorder.Dispatcher {
	return recorder.NewDispatcher(cfg.Recorder, container.Metrics(), recorders...)
}

func provideActor(
	container *DiContainer,
	dispatcher *recorder.Dispatcher,
	cfg config.EngineConfig,
) *settlement.Actor {
	return settlement.NewActor(cfg.Settlement, settlement.Dependencies{
		Orders:    container.OrderStore(),
		Market:    container.MarketReader(),
		Balances:  container.BalanceStore(),
		Committer: container.RedisClient(),
		Limiter:   container.SubmitRateLimiter(),
		Fills:     dispatcher,
		Metrics:   container.Metrics(),
	})
}

func startActor(lifeCycle fx.Lifecycle, actor *settlement.Actor) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lifeCycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				if err := actor.Run(runCtx); err != nil {
					zapLogger.Error(runCtx, "settlement actor failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()

			stopCtx, stopCancel := context.WithTimeout(ctx, actorStopTimeout)
			defer stopCancel()

			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return fmt.Errorf("settlement actor stop: %w", stopCtx.Err())
			}
		},
	})
}

// startDispatcher is invoked before startActor so that it stops after the actor.
func startDispatcher(lifeCycle fx.Lifecycle, dispatcher *recorder.Dispatcher) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lifeCycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				if err := dispatcher.Run(runCtx); err != nil {
					zapLogger.Error(runCtx, "fill dispatcher failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()

			stopCtx, stopCancel := context.WithTimeout(ctx, actorStopTimeout)
			defer stopCancel()

			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return fmt.Errorf("fill dispatcher stop: %w", stopCtx.Err())
			}
		},
	})
}

func provideListener(
	lifeCycle fx.Lifecycle,
	cfg config.EngineConfig,
) (net.Listener, error) {
	listener, err := net.Listen("tcp", cfg.HealthAddress)
	if err != nil {
		return nil, fmt.Errorf("net.Listen: %w", err)
	}

	lifeCycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			errClose := listener.Close()
			if errClose != nil && !errors.Is(errClose, net.ErrClosed) {
				return errClose
			}

			return nil
		},
	})

	return listener, nil
}

func provideGRPCServer(
	lifeCycle fx.Lifecycle,
	actor *settlement.Actor,
) *grpc.Server {
	tracer := xrequestid.Server
	logger := logInterceptor.LoggerInterceptor()
	recoverer := recovery.Unary

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			tracer,
			logger,
			recoverer,
		),
	)

	reflection.Register(grpcServer)
	health.RegisterService(grpcServer, actor.Running)

	lifeCycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			grpcServer.GracefulStop()
			return nil
		},
	})

	return grpcServer
}

func startGRPCServer(
	lifeCycle fx.Lifecycle,
	server *grpc.Server,
	listener net.Listener,
) {
	lifeCycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			zapLogger.Info(ctx, fmt.Sprintf("Starting gRPC health server on %s", listener.Addr()))
			go func() {
				if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
					zapLogger.Error(ctx, "gRPC health server error", zap.Error(err))
				}
			}()

			return nil
		},
	})
}

func provideMetricsServer(
	lifeCycle fx.Lifecycle,
	container *DiContainer,
	cfg config.EngineConfig,
) (*MetricsServer, error) {
	listener, err := net.Listen("tcp", cfg.MetricsAddress)
	if err != nil {
		return nil, fmt.Errorf("net.Listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", container.Metrics().Handler())

	metricsServer := &MetricsServer{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
	}

	lifeCycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return metricsServer.server.Shutdown(ctx)
		},
	})

	return metricsServer, nil
}

func startMetricsServer(lifeCycle fx.Lifecycle, metricsServer *MetricsServer) {
	lifeCycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			zapLogger.Info(ctx, fmt.Sprintf("Starting metrics server on %s", metricsServer.Addr()))
			go func() {
				err := metricsServer.server.Serve(metricsServer.listener)
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					zapLogger.Error(ctx, "metrics server error", zap.Error(err))
				}
			}()

			return nil
		},
	})
}
