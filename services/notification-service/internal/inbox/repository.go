// Package inbox records consumed event ids so redelivered events are applied once.
package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/ruralhealthconnect/telecare/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Once runs fn in a transaction that also records eventID. It returns false
// without calling fn when the event was already recorded.
func (r *Repository) Once(ctx context.Context, eventID, eventType string, fn func(ctx context.Context, tx pgx.Tx) error) (bool, error) {
	applied := false
	err := r.pool.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO inbox_events (event_id, event_type)
			VALUES ($1, $2)
			ON CONFLICT (event_id) DO NOTHING
		`, eventID, eventType)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
