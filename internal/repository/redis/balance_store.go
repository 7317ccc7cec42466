package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	"github.com/nastyazhadan/paper-exchange/internal/repository/redis/dto"
	repositoryErrors "github.com/nastyazhadan/paper-exchange/shared/errors/repository"
	"github.com/nastyazhadan/paper-exchange/shared/infra/redis"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

const balancesKey = "balances"

type BalanceStore struct {
	client redis.Client
}

func NewBalanceStore(client redis.Client) *BalanceStore {
	return &BalanceStore{
		client: client,
	}
}

// List returns every stored balance sorted by asset.
func (s *BalanceStore) List(ctx context.Context) ([]models.AssetBalance, error) {
	const op = "BalanceStore.List"

	var balances []models.AssetBalance
	err := s.client.HScan(ctx, balancesKey, func(asset string, data []byte) error {
		var view dto.BalanceRedisView
		if err := json.Unmarshal(data, &view); err != nil {
			return fmt.Errorf("%s: %w: %v", asset, repositoryErrors.ErrInvalidRecord, err)
		}

		balances = append(balances, view.ToDomain(asset))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sort.Slice(balances, func(i, j int) bool { return balances[i].Asset < balances[j].Asset })

	return balances, nil
}

// Stage appends balance writes to a caller-owned batch.
func (s *BalanceStore) Stage(batch *redis.Batch, balances ...models.AssetBalance) error {
	const op = "BalanceStore.Stage"

	for _, balance := range balances {
		data, err := json.Marshal(dto.BalanceFromDomain(balance))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		batch.HSet(balancesKey, balance.Asset, data)
	}

	return nil
}

// Seed creates missing balances and never overwrites existing ones.
func (s *BalanceStore) Seed(ctx context.Context, initial map[string]decimal.Decimal) error {
	const op = "BalanceStore.Seed"

	assets := make([]string, 0, len(initial))
	for asset := range initial {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	for _, asset := range assets {
		data, err := json.Marshal(dto.BalanceRedisView{Free: initial[asset], Used: decimal.Zero})
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		created, err := s.client.HSetNX(ctx, balancesKey, asset, data)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if created {
			zapLogger.Info(ctx, "seeded balance",
				zap.String("asset", asset),
				zap.String("free", initial[asset].String()),
			)
		}
	}

	return nil
}
