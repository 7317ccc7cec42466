package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	"github.com/nastyazhadan/paper-exchange/internal/services/settlement"
	"github.com/nastyazhadan/paper-exchange/shared/config"
	"github.com/nastyazhadan/paper-exchange/shared/infra/health"
)

func testConfig(server *miniredis.Miniredis) config.EngineConfig {
	return config.EngineConfig{
		LogLevel:       "error",
		LogFormat:      "console",
		HealthAddress:  "127.0.0.1:0",
		MetricsAddress: "127.0.0.1:0",
		Redis: config.RedisConfig{
			Host:              server.Host(),
			Port:              server.Port(),
			MaxIdle:           4,
			MaxActive:         8,
			IdleTimeout:       time.Minute,
			ConnectionTimeout: time.Second,
			TickersRoot:       "tickers:",
		},
		Settlement: config.SettlementConfig{
			InboxSize:       16,
			CommandTimeout:  2 * time.Second,
			StoreTimeout:    time.Second,
			StoreRetries:    1,
			StoreBackoff:    10 * time.Millisecond,
			InitialBalances: "USDT:60000",
		},
		CircuitBreaker: config.CircuitBreakerConfig{
			MaxRequests: 1,
			Interval:    time.Second,
			Timeout:     time.Second,
			MaxFailures: 3,
		},
		Recorder: config.RecorderConfig{
			QueueSize: 16,
			Timeout:   time.Second,
		},
	}
}

func TestEngineAppServesSettlement(t *testing.T) {
	server := miniredis.RunT(t)
	server.HSet("tickers:BTC/USDT", "price", "51000")

	var (
		actor         *settlement.Actor
		listener      net.Listener
		metricsServer *MetricsServer
	)

	app := fxtest.New(t,
		Module(context.Background(), testConfig(server)),
		fx.Populate(&actor, &listener, &metricsServer),
		fx.NopLogger,
	)
	app.RequireStart()
	defer app.RequireStop()

	require.Eventually(t, actor.Running, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	price := decimal.RequireFromString("50000")
	order, err := actor.Submit(ctx, settlement.SubmitRequest{
		Symbol: "BTC/USDT",
		Side:   models.SideBuy,
		Type:   models.TypeLimit,
		Amount: decimal.RequireFromString("1"),
		Price:  &price,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, order.Status)

	balances, err := actor.ListBalances(ctx)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, decimal.RequireFromString("10000").Equal(balances[0].Free))

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, health.Probe(probeCtx, listener.Addr().String()))

	response, err := http.Get(fmt.Sprintf("http://%s/metrics", metricsServer.Addr()))
	require.NoError(t, err)
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Contains(t, string(body), `paper_exchange_commands_total{kind="submit",result="ok"} 1`)
}

func TestEngineAppKeepsExistingBalances(t *testing.T) {
	server := miniredis.RunT(t)
	server.HSet("balances", "USDT", `{"free":"5","used":"0"}`)

	var actor *settlement.Actor
	app := fxtest.New(t,
		Module(context.Background(), testConfig(server)),
		fx.Populate(&actor),
		fx.NopLogger,
	)
	app.RequireStart()
	defer app.RequireStop()

	balances, err := actor.ListBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, decimal.RequireFromString("5").Equal(balances[0].Free))
}

func TestEngineAppFailsWithoutRedis(t *testing.T) {
	server := miniredis.RunT(t)
	cfg := testConfig(server)
	server.Close()

	app := fx.New(Module(context.Background(), cfg), fx.NopLogger)
	assert.Error(t, app.Err())
}
