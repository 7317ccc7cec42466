package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	fakeValue "github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	repositoryErrors "github.com/nastyazhadan/paper-exchange/shared/errors/repository"
	"github.com/nastyazhadan/paper-exchange/shared/infra/redis"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

var baseTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestClient(t *testing.T) (redis.Client, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	pool := redis.NewPool(server.Addr(), 0, "", 4, 8, time.Minute, time.Second)
	t.Cleanup(func() { _ = pool.Close() })

	return redis.NewClient(pool, zapLogger.Logger(), time.Second), server
}

func newOrder(symbol string, side models.Side, status models.Status, updated time.Time) models.Order {
	price := decimal.NewFromFloat(fakeValue.Float64Range(1, 1000)).Round(2)
	return models.Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Type:      models.TypeLimit,
		Amount:    decimal.NewFromInt(int64(fakeValue.IntRange(1, 10))),
		Price:     &price,
		Filled:    decimal.Zero,
		Reserved:  decimal.Zero,
		Status:    status,
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

func ids(orders []models.Order) []string {
	out := make([]string, 0, len(orders))
	for _, order := range orders {
		out = append(out, order.ID)
	}
	return out
}

func TestOrderStorePutMaintainsOpenIndex(t *testing.T) {
	ctx := context.Background()
	client, server := newTestClient(t)
	store := NewOrderStore(client)

	order := newOrder("BTC/USDT", models.SideBuy, models.StatusNew, baseTime)
	require.NoError(t, store.Put(ctx, order))

	assert.True(t, server.Exists("open:set"))
	members, err := server.SMembers("open:BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, []string{order.ID}, members)

	order.Status = models.StatusFilled
	order.Touch(baseTime.Add(time.Second))
	require.NoError(t, store.Update(ctx, order))

	assert.False(t, server.Exists("open:set"))
	assert.False(t, server.Exists("open:BTC/USDT"))

	stored, err := store.Get(ctx, order.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, stored.Status)
}

func TestOrderStoreHistoryOnlyWhenRequested(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	store := NewOrderStore(client)

	order := newOrder("ETH/USDT", models.SideSell, models.StatusNew, baseTime)
	order.AppendHistory(models.HistoryEntry{At: baseTime, Status: models.StatusNew, Note: "created"})

	require.NoError(t, store.Put(ctx, order))
	stored, err := store.Get(ctx, order.ID, true)
	require.NoError(t, err)
	assert.Empty(t, stored.History)

	require.NoError(t, store.Update(ctx, order))
	stored, err = store.Get(ctx, order.ID, true)
	require.NoError(t, err)
	require.Len(t, stored.History, 1)
	assert.Equal(t, "created", stored.History[0].Note)

	stored, err = store.Get(ctx, order.ID, false)
	require.NoError(t, err)
	assert.Empty(t, stored.History)
}

func TestOrderStoreGetNotFound(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewOrderStore(client)

	_, err := store.Get(context.Background(), uuid.NewString(), false)
	assert.ErrorIs(t, err, repositoryErrors.ErrOrderNotFound)
}

func TestOrderStoreListIndexMatchesScan(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	store := NewOrderStore(client)

	symbols := []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}
	for i := 0; i < 60; i++ {
		status := models.AllStatuses()[i%len(models.AllStatuses())]
		side := models.SideBuy
		if i%2 == 0 {
			side = models.SideSell
		}
		order := newOrder(symbols[i%len(symbols)], side, status, baseTime.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Put(ctx, order))
	}

	filters := []models.OrderFilter{
		{Statuses: models.OpenStatuses()},
		{Statuses: []models.Status{models.StatusNew}},
		{Statuses: models.OpenStatuses(), Symbol: "ETH/USDT"},
		{Statuses: []models.Status{models.StatusPartiallyFilled}, Symbol: "SOL/USDT", Side: models.SideSell},
		{Statuses: models.OpenStatuses(), Limit: 5},
	}

	for _, filter := range filters {
		indexed, err := store.List(ctx, filter)
		require.NoError(t, err)

		scanned, err := store.ScanAll(ctx, filter)
		require.NoError(t, err)

		assert.Equal(t, ids(scanned), ids(indexed))
		for _, order := range indexed {
			assert.True(t, filter.Match(order))
		}
	}
}

func TestOrderStoreListOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	store := NewOrderStore(client)

	older := newOrder("BTC/USDT", models.SideBuy, models.StatusFilled, baseTime)
	newer := newOrder("BTC/USDT", models.SideBuy, models.StatusNew, baseTime.Add(time.Minute))
	newest := newOrder("ETH/USDT", models.SideSell, models.StatusCanceled, baseTime.Add(time.Hour))
	for _, order := range []models.Order{older, newer, newest} {
		require.NoError(t, store.Put(ctx, order))
	}

	all, err := store.List(ctx, models.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{newest.ID, newer.ID, older.ID}, ids(all))

	limited, err := store.List(ctx, models.OrderFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{newest.ID, newer.ID}, ids(limited))

	closed, err := store.List(ctx, models.OrderFilter{Statuses: []models.Status{models.StatusFilled, models.StatusCanceled}})
	require.NoError(t, err)
	assert.Equal(t, []string{newest.ID, older.ID}, ids(closed))
}

func TestOrderStoreListToleratesStaleIndex(t *testing.T) {
	ctx := context.Background()
	client, server := newTestClient(t)
	store := NewOrderStore(client)

	order := newOrder("BTC/USDT", models.SideBuy, models.StatusFilled, baseTime)
	require.NoError(t, store.Put(ctx, order))

	// индекс указывает на закрытый и на отсутствующий ордер
	_, _ = server.SetAdd("open:set", order.ID, "ghost")
	server.HSet("orders", "broken", "{not json")
	_, _ = server.SetAdd("open:set", "broken")

	open, err := store.List(ctx, models.OrderFilter{Statuses: models.OpenStatuses()})
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := store.List(ctx, models.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{order.ID}, ids(all))
}

func TestOrderStoreRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client, server := newTestClient(t)
	store := NewOrderStore(client)

	order := newOrder("BTC/USDT", models.SideBuy, models.StatusNew, baseTime)
	require.NoError(t, store.Put(ctx, order))

	require.NoError(t, store.Remove(ctx, order.ID))
	require.NoError(t, store.Remove(ctx, order.ID))

	_, err := store.Get(ctx, order.ID, false)
	assert.ErrorIs(t, err, repositoryErrors.ErrOrderNotFound)
	assert.False(t, server.Exists("open:set"))
	assert.False(t, server.Exists("open:BTC/USDT"))
}

func TestOrderStoreClear(t *testing.T) {
	ctx := context.Background()
	client, server := newTestClient(t)
	store := NewOrderStore(client)

	for _, symbol := range []string{"BTC/USDT", "ETH/USDT"} {
		require.NoError(t, store.Put(ctx, newOrder(symbol, models.SideBuy, models.StatusNew, baseTime)))
	}
	require.NoError(t, server.Set("tickers:BTC/USDT", "kept"))

	require.NoError(t, store.Clear(ctx))

	assert.False(t, server.Exists("orders"))
	assert.False(t, server.Exists("open:set"))
	assert.False(t, server.Exists("open:BTC/USDT"))
	assert.False(t, server.Exists("open:ETH/USDT"))
	assert.True(t, server.Exists("tickers:BTC/USDT"))

	orders, err := store.List(ctx, models.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOrderStoreStageJoinsCallerBatch(t *testing.T) {
	ctx := context.Background()
	client, server := newTestClient(t)
	store := NewOrderStore(client)

	order := newOrder("BTC/USDT", models.SideSell, models.StatusPartiallyFilled, baseTime)
	batch := redis.NewBatch()
	require.NoError(t, store.Stage(batch, order, true))
	batch.HSet("balances", "BTC", `{"free":"1","used":"0"}`)

	assert.Equal(t, []string{"HSET", "SADD", "SADD", "HSET"}, batch.Commands())
	require.NoError(t, client.Exec(ctx, batch))
	assert.Equal(t, `{"free":"1","used":"0"}`, server.HGet("balances", "BTC"))

	assert.Error(t, store.Stage(redis.NewBatch(), models.Order{}, false))
}
