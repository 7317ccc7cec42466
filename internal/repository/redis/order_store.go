package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	redigo "github.com/gomodule/redigo/redis"
	"go.uber.org/zap"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	repositoryErrors "github.com/nastyazhadan/paper-exchange/shared/errors/repository"
	"github.com/nastyazhadan/paper-exchange/shared/infra/redis"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

const (
	ordersKey       = "orders"
	openSetKey      = "open:set"
	openSymbolKey   = "open:"
	openKeysPattern = "open:*"
)

type OrderStore struct {
	client redis.Client
}

func NewOrderStore(client redis.Client) *OrderStore {
	return &OrderStore{
		client: client,
	}
}

func openKey(symbol string) string {
	return openSymbolKey + symbol
}

// Put writes the record without history and reconciles the open indexes.
func (s *OrderStore) Put(ctx context.Context, order models.Order) error {
	const op = "OrderStore.Put"

	batch := redis.NewBatch()
	if err := s.Stage(batch, order, false); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.client.Exec(ctx, batch); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Update is Put with the full history written.
func (s *OrderStore) Update(ctx context.Context, order models.Order) error {
	const op = "OrderStore.Update"

	batch := redis.NewBatch()
	if err := s.Stage(batch, order, true); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.client.Exec(ctx, batch); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Stage appends the record write and the index change to a caller-owned batch.
func (s *OrderStore) Stage(batch *redis.Batch, order models.Order, withHistory bool) error {
	const op = "OrderStore.Stage"

	if order.ID == "" {
		return fmt.Errorf("%s: %w: empty id", op, repositoryErrors.ErrInvalidRecord)
	}

	record := order
	if !withHistory {
		record = order.WithoutHistory()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	batch.HSet(ordersKey, order.ID, data)
	if order.Status.IsOpen() {
		batch.SAdd(openSetKey, order.ID)
		batch.SAdd(openKey(order.Symbol), order.ID)
	} else {
		batch.SRem(openSetKey, order.ID)
		batch.SRem(openKey(order.Symbol), order.ID)
	}

	return nil
}

func (s *OrderStore) Get(ctx context.Context, id string, includeHistory bool) (models.Order, error) {
	const op = "OrderStore.Get"

	data, err := s.client.HGet(ctx, ordersKey, id)
	if err != nil {
		if errors.Is(err, redigo.ErrNil) {
			return models.Order{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
		}
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	order, err := decodeOrder(data)
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	if !includeHistory {
		order = order.WithoutHistory()
	}

	return order, nil
}

// List serves open-only queries from the indexes and everything else from a full scan.
func (s *OrderStore) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	const op = "OrderStore.List"

	var (
		orders []models.Order
		err    error
	)

	if filter.OnlyOpen() {
		orders, err = s.listOpen(ctx, filter)
	} else {
		orders, err = s.scan(ctx, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return finalize(orders, filter), nil
}

// ScanAll always walks the canonical hash.
func (s *OrderStore) ScanAll(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	const op = "OrderStore.ScanAll"

	orders, err := s.scan(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return finalize(orders, filter), nil
}

func (s *OrderStore) listOpen(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	indexKey := openSetKey
	if filter.Symbol != "" {
		indexKey = openKey(filter.Symbol)
	}

	ids, err := s.client.SMembers(ctx, indexKey)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	records, err := s.client.HMGet(ctx, ordersKey, ids...)
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(records))
	for i, data := range records {
		// index entry without a record
		if data == nil {
			continue
		}

		order, err := decodeOrder(data)
		if err != nil {
			zapLogger.Warn(ctx, "skipping malformed order record",
				zap.String("order_id", ids[i]),
				zap.Error(err),
			)
			continue
		}

		if filter.Match(order) {
			orders = append(orders, order)
		}
	}

	return orders, nil
}

func (s *OrderStore) scan(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var orders []models.Order

	err := s.client.HScan(ctx, ordersKey, func(id string, data []byte) error {
		order, err := decodeOrder(data)
		if err != nil {
			zapLogger.Warn(ctx, "skipping malformed order record",
				zap.String("order_id", id),
				zap.Error(err),
			)
			return nil
		}

		if filter.Match(order) {
			orders = append(orders, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return orders, nil
}

// Remove is idempotent: deleting an unknown id is not an error.
func (s *OrderStore) Remove(ctx context.Context, id string) error {
	const op = "OrderStore.Remove"

	batch := redis.NewBatch()

	data, err := s.client.HGet(ctx, ordersKey, id)
	switch {
	case errors.Is(err, redigo.ErrNil):
		return nil
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}

	if order, decodeErr := decodeOrder(data); decodeErr == nil {
		batch.SRem(openKey(order.Symbol), id)
	}
	batch.SRem(openSetKey, id)
	batch.HDel(ordersKey, id)

	if err = s.client.Exec(ctx, batch); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// StageRemove appends a hard delete of order to a caller-owned batch.
func (s *OrderStore) StageRemove(batch *redis.Batch, order models.Order) {
	batch.SRem(openKey(order.Symbol), order.ID)
	batch.SRem(openSetKey, order.ID)
	batch.HDel(ordersKey, order.ID)
}

// Clear deletes every order and every open index.
func (s *OrderStore) Clear(ctx context.Context) error {
	const op = "OrderStore.Clear"

	batch, err := s.StageClear(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = s.client.Exec(ctx, batch); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// StageClear returns a batch deleting the canonical hash and all index sets.
func (s *OrderStore) StageClear(ctx context.Context) (*redis.Batch, error) {
	const op = "OrderStore.StageClear"

	keys, err := s.client.Keys(ctx, openKeysPattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return redis.NewBatch().Del(append([]string{ordersKey, openSetKey}, keys...)...), nil
}

func decodeOrder(data []byte) (models.Order, error) {
	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return models.Order{}, fmt.Errorf("%w: %v", repositoryErrors.ErrInvalidRecord, err)
	}
	if order.ID == "" {
		return models.Order{}, fmt.Errorf("%w: missing id", repositoryErrors.ErrInvalidRecord)
	}

	return order, nil
}

func finalize(orders []models.Order, filter models.OrderFilter) []models.Order {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].UpdatedAt.Equal(orders[j].UpdatedAt) {
			return orders[i].UpdatedAt.After(orders[j].UpdatedAt)
		}
		return orders[i].ID < orders[j].ID
	})

	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}

	if !filter.IncludeHistory {
		for i := range orders {
			orders[i] = orders[i].WithoutHistory()
		}
	}

	return orders
}
