package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	"github.com/nastyazhadan/paper-exchange/internal/repository/postgres/dto"
	repositoryErrors "github.com/nastyazhadan/paper-exchange/shared/errors/repository"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

const PostgresErrorCode = "23505"

// FillJournal is an append-only SQL record of executed fills.
type FillJournal struct {
	pool *pgxpool.Pool
}

func NewFillJournal(pool *pgxpool.Pool) *FillJournal {
	return &FillJournal{
		pool: pool,
	}
}

// RecordFill inserts the fill. A fill already journaled is not an error.
func (j *FillJournal) RecordFill(ctx context.Context, fill models.Fill) error {
	const op = "FillJournal.RecordFill"

	err := j.insert(ctx, fill)
	if errors.Is(err, repositoryErrors.ErrFillAlreadyRecorded) {
		zapLogger.Debug(ctx, "fill already journaled",
			zap.String("order_id", fill.OrderID),
			zap.Time("executed_at", fill.ExecutedAt),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (j *FillJournal) insert(ctx context.Context, fill models.Fill) error {
	fillDTO := dto.FillFromDomain(fill)

	_, err := j.pool.Exec(ctx,
		`INSERT INTO fills (order_id, symbol, side, price, quantity, notional, executed_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		fillDTO.OrderID,
		fillDTO.Symbol,
		fillDTO.Side,
		fillDTO.Price,
		fillDTO.Quantity,
		fillDTO.Notional,
		fillDTO.ExecutedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return repositoryErrors.ErrFillAlreadyRecorded
		}

		return fmt.Errorf("exec: %w", err)
	}

	return nil
}

// ListFills returns the fills of one order, oldest first.
func (j *FillJournal) ListFills(ctx context.Context, orderID string) ([]models.Fill, error) {
	const op = "FillJournal.ListFills"

	rows, err := j.pool.Query(ctx,
		`SELECT order_id, symbol, side, price::text AS price, quantity::text AS quantity,
                notional::text AS notional, executed_at
         FROM fills
         WHERE order_id = $1
         ORDER BY executed_at`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	fillDTOs, err := pgx.CollectRows(rows, pgx.RowToStructByName[dto.Fill])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	fills := make([]models.Fill, 0, len(fillDTOs))
	for _, fillDTO := range fillDTOs {
		fill, err := fillDTO.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", op, repositoryErrors.ErrInvalidRecord, err)
		}
		fills = append(fills, fill)
	}

	return fills, nil
}

func isDuplicateKey(err error) bool {
	var postgresErr *pgconn.PgError

	if errors.As(err, &postgresErr) {
		return postgresErr.Code == PostgresErrorCode
	}

	return false
}
