package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	"github.com/nastyazhadan/paper-exchange/internal/repository/redis/dto"
	repositoryErrors "github.com/nastyazhadan/paper-exchange/shared/errors/repository"
	"github.com/nastyazhadan/paper-exchange/shared/infra/redis"
)

const DefaultTickersRoot = "tickers:"

// MarketReader reads tickers written by the price feed. It never judges staleness.
type MarketReader struct {
	client redis.Client
	root   string
}

func NewMarketReader(client redis.Client, root string) *MarketReader {
	if root == "" {
		root = DefaultTickersRoot
	}

	return &MarketReader{
		client: client,
		root:   root,
	}
}

// Ticker returns false without an error when the symbol has no usable ticker.
func (m *MarketReader) Ticker(ctx context.Context, symbol string) (models.Ticker, bool, error) {
	const op = "MarketReader.Ticker"

	values, err := m.client.HGetAll(ctx, m.root+symbol)
	if err != nil {
		return models.Ticker{}, false, fmt.Errorf("%s: %w", op, err)
	}
	if len(values) == 0 {
		return models.Ticker{}, false, nil
	}

	ticker, ok := dto.TickerFromHash(values).ToDomain(symbol)
	return ticker, ok, nil
}

func (m *MarketReader) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	const op = "MarketReader.LastPrice"

	ticker, ok, err := m.Ticker(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %s: %w", op, symbol, repositoryErrors.ErrPriceUnavailable)
	}

	return ticker.Price, nil
}

func (m *MarketReader) Symbols(ctx context.Context) ([]string, error) {
	const op = "MarketReader.Symbols"

	keys, err := m.client.Keys(ctx, m.root+"*")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	symbols := make([]string, 0, len(keys))
	for _, key := range keys {
		symbol := strings.TrimPrefix(key, m.root)
		if symbol == "" || symbol == key {
			continue
		}
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	return symbols, nil
}

func (m *MarketReader) SetTicker(ctx context.Context, ticker models.Ticker) error {
	const op = "MarketReader.SetTicker"

	if strings.TrimSpace(ticker.Symbol) == "" {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrEmptySymbol)
	}

	if err := m.client.HashSet(ctx, m.root+ticker.Symbol, dto.FromDomain(ticker)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
