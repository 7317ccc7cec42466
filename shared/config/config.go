package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type EngineConfig struct {
	LogLevel       string `env:"ENGINE_LOG_LEVEL"       env-default:"info"`
	LogFormat      string `env:"ENGINE_LOG_FORMAT"      env-default:"console"`
	HealthAddress  string `env:"ENGINE_HEALTH_ADDRESS"  env-default:":50061"`
	MetricsAddress string `env:"ENGINE_METRICS_ADDRESS" env-default:":9108"`

	Redis          RedisConfig
	Settlement     SettlementConfig
	RateLimiter    RateLimiterConfig
	CircuitBreaker CircuitBreakerConfig
	Journal        JournalConfig
	Kafka          KafkaConfig
	Recorder       RecorderConfig
}

type RedisConfig struct {
	Host              string        `env:"REDIS_HOST"               env-default:"127.0.0.1"`
	Port              string        `env:"REDIS_PORT"               env-default:"6379"`
	DB                int           `env:"REDIS_DB"                 env-default:"0"`
	Password          string        `env:"REDIS_PASSWORD"`
	MaxIdle           int           `env:"REDIS_MAX_IDLE"           env-default:"10"`
	MaxActive         int           `env:"REDIS_MAX_ACTIVE"         env-default:"50"`
	IdleTimeout       time.Duration `env:"REDIS_IDLE_TIMEOUT"       env-default:"5m"`
	ConnectionTimeout time.Duration `env:"REDIS_CONNECTION_TIMEOUT" env-default:"2s"`
	TickersRoot       string        `env:"REDIS_TICKERS_ROOT"       env-default:"tickers:"`
}

type SettlementConfig struct {
	TickInterval    time.Duration `env:"ENGINE_TICK_INTERVAL"     env-default:"1s"`
	InboxSize       int           `env:"ENGINE_INBOX_SIZE"        env-default:"1024"`
	CommandTimeout  time.Duration `env:"ENGINE_COMMAND_TIMEOUT"   env-default:"5s"`
	StoreTimeout    time.Duration `env:"ENGINE_STORE_TIMEOUT"     env-default:"2s"`
	StoreRetries    int           `env:"ENGINE_STORE_RETRIES"     env-default:"3"`
	StoreBackoff    time.Duration `env:"ENGINE_STORE_BACKOFF"     env-default:"50ms"`
	MaxTickerAge    time.Duration `env:"ENGINE_MAX_TICKER_AGE"    env-default:"0s"`
	LiquidityCapped bool          `env:"ENGINE_LIQUIDITY_CAPPED"  env-default:"false"`
	InitialBalances string        `env:"ENGINE_INITIAL_BALANCES"  env-default:"USDT:100000"`
}

type RateLimiterConfig struct {
	SubmitPerWindow int64         `env:"RATE_LIMIT_SUBMIT" env-default:"0"`
	Window          time.Duration `env:"RATE_LIMIT_WINDOW" env-default:"1s"`
}

type CircuitBreakerConfig struct {
	MaxRequests uint32        `env:"CB_MAX_REQUESTS" env-default:"3"`
	Interval    time.Duration `env:"CB_INTERVAL"     env-default:"10s"`
	Timeout     time.Duration `env:"CB_TIMEOUT"      env-default:"5s"`
	MaxFailures uint32        `env:"CB_MAX_FAILURES" env-default:"5"`
}

type RecorderConfig struct {
	QueueSize int           `env:"RECORDER_QUEUE_SIZE" env-default:"1024"`
	Timeout   time.Duration `env:"RECORDER_TIMEOUT"    env-default:"2s"`
}

type JournalConfig struct {
	DBURI string `env:"JOURNAL_DB_URI"`
}

type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS"     env-separator:","`
	FillsTopic string   `env:"KAFKA_FILLS_TOPIC" env-default:"paper-exchange.fills"`
}

func (r RedisConfig) Address() string {
	return net.JoinHostPort(r.Host, r.Port)
}

func (j JournalConfig) Enabled() bool {
	return j.DBURI != ""
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Load reads the optional dotenv files and then the process environment.
func Load(dotenvPaths ...string) (EngineConfig, error) {
	for _, path := range dotenvPaths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return EngineConfig{}, fmt.Errorf("godotenv.Load %s: %w", path, err)
		}
	}

	var cfg EngineConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("cleanenv.ReadEnv: %w", err)
	}

	if _, err := cfg.Settlement.Balances(); err != nil {
		return EngineConfig{}, err
	}

	return cfg, nil
}

// Balances parses ENGINE_INITIAL_BALANCES, e.g. "USDT:100000,BTC:0.5".
func (s SettlementConfig) Balances() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	if strings.TrimSpace(s.InitialBalances) == "" {
		return out, nil
	}

	for _, pair := range strings.Split(s.InitialBalances, ",") {
		asset, rawAmount, found := strings.Cut(strings.TrimSpace(pair), ":")
		if !found || asset == "" {
			return nil, fmt.Errorf("initial balance %q: expected ASSET:AMOUNT", pair)
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(rawAmount))
		if err != nil {
			return nil, fmt.Errorf("initial balance %q: %w", pair, err)
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("initial balance %q: negative amount", pair)
		}

		out[strings.ToUpper(strings.TrimSpace(asset))] = amount
	}

	return out, nil
}
