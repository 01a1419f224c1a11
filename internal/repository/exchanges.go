package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/tierpeak/apollo-middleman/internal/model"
)

// ExchangesRepository persists journal records. The same queries run on MySQL
// (live journal) and ClickHouse (archive).
type ExchangesRepository interface {
	Insert(ctx context.Context, ex model.Exchange) error
	InsertBatch(ctx context.Context, rows []model.Exchange) error
}

type exchangesRepository struct {
	db    *sqlx.DB
	table string
}

func NewExchangesRepository(db *sqlx.DB, table string) ExchangesRepository {
	if table == "" {
		table = "exchanges"
	}
	return &exchangesRepository{db: db, table: table}
}

const exchangeColumns = `id, method, upstream_status, outcome, phone_found, request_bytes, response_bytes, latency_ms, created_at`

func (r *exchangesRepository) insertQuery() string {
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, r.table, exchangeColumns)
}

// exchangeArgs uses fixed-width ints so the ClickHouse column types match exactly.
func exchangeArgs(ex model.Exchange) []any {
	return []any{
		ex.ID,
		ex.Method,
		int32(ex.UpstreamStatus),
		ex.Outcome,
		ex.PhoneFound,
		int32(ex.RequestBytes),
		int32(ex.ResponseBytes),
		ex.LatencyMs,
		ex.CreatedAt,
	}
}

func (r *exchangesRepository) Insert(ctx context.Context, ex model.Exchange) error {
	if _, err := r.db.ExecContext(ctx, r.insertQuery(), exchangeArgs(ex)...); err != nil {
		return fmt.Errorf("insert exchange %s: %w", ex.ID, err)
	}
	return nil
}

// InsertBatch writes rows in one transaction; on ClickHouse this becomes a single block insert.
func (r *exchangesRepository) InsertBatch(ctx context.Context, rows []model.Exchange) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, r.insertQuery())
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ex := range rows {
		if _, err := stmt.ExecContext(ctx, exchangeArgs(ex)...); err != nil {
			return fmt.Errorf("insert exchange %s: %w", ex.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit exchanges: %w", err)
	}
	return nil
}
