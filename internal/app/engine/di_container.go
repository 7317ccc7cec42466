package engine

import (
	"sync"

	redigo "github.com/gomodule/redigo/redis"

	"github.com/nastyazhadan/paper-exchange/internal/metrics"
	repoRedis "github.com/nastyazhadan/paper-exchange/internal/repository/redis"
	"github.com/nastyazhadan/paper-exchange/shared/config"
	"github.com/nastyazhadan/paper-exchange/shared/infra/redis"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

type DiContainer struct {
	engineConfig config.EngineConfig

	redisPool     *redigo.Pool
	redisPoolOnce sync.Once

	redisClient     redis.Client
	redisClientOnce sync.Once

	orderStore     *repoRedis.OrderStore
	orderStoreOnce sync.Once

	marketReader     *repoRedis.MarketReader
	marketReaderOnce sync.Once

	balanceStore     *repoRedis.BalanceStore
	balanceStoreOnce sync.Once

	submitRateLimiter     *repoRedis.SubmitRateLimiter
	submitRateLimiterOnce sync.Once

	metrics     *metrics.Engine
	metricsOnce sync.Once
}

func NewDIContainer(engineConfig config.EngineConfig) *DiContainer {
	return &DiContainer{
		engineConfig: engineConfig,
	}
}

func (d *DiContainer) RedisPool() *redigo.Pool {
	d.redisPoolOnce.Do(func() {
		cfg := d.engineConfig.Redis
		d.redisPool = redis.NewPool(
			cfg.Address(),
			cfg.DB,
			cfg.Password,
			cfg.MaxIdle,
			cfg.MaxActive,
			cfg.IdleTimeout,
			cfg.ConnectionTimeout,
		)
	})

	return d.redisPool
}

func (d *DiContainer) RedisClient() redis.Client {
	d.redisClientOnce.Do(func() {
		d.redisClient = redis.NewClient(
			d.RedisPool(),
			zapLogger.Logger(),
			d.engineConfig.Redis.ConnectionTimeout,
		)
	})

	return d.redisClient
}

func (d *DiContainer) OrderStore() *repoRedis.OrderStore {
	d.orderStoreOnce.Do(func() {
		d.orderStore = repoRedis.NewOrderStore(d.RedisClient())
	})

	return d.orderStore
}

func (d *DiContainer) MarketReader() *repoRedis.MarketReader {
	d.marketReaderOnce.Do(func() {
		d.marketReader = repoRedis.NewMarketReader(d.RedisClient(), d.engineConfig.Redis.TickersRoot)
	})

	return d.marketReader
}

func (d *DiContainer) BalanceStore() *repoRedis.BalanceStore {
	d.balanceStoreOnce.Do(func() {
		d.balanceStore = repoRedis.NewBalanceStore(d.RedisClient())
	})

	return d.balanceStore
}

func (d *DiContainer) SubmitRateLimiter() *repoRedis.SubmitRateLimiter {
	d.submitRateLimiterOnce.Do(func() {
		d.submitRateLimiter = repoRedis.NewSubmitRateLimiter(
			d.RedisClient(),
			d.engineConfig.RateLimiter.SubmitPerWindow,
			d.engineConfig.RateLimiter.Window,
		)
	})

	return d.submitRateLimiter
}

func (d *DiContainer) Metrics() *metrics.Engine {
	d.metricsOnce.Do(func() {
		d.metrics = metrics.New()
	})

	return d.metrics
}
