package activity

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bx-custody/internal/errs"
	"bx-custody/internal/model"
	"bx-custody/internal/types"
)

// Log is the append-only activity record. Rows are never mutated except by
// UpdateByReferenceID, which evolves a pending entry in place instead of
// inserting a duplicate.
type Log struct {
	pool *pgxpool.Pool
}

func NewLog(pool *pgxpool.Pool) *Log {
	return &Log{pool: pool}
}

func (l *Log) Append(ctx context.Context, a model.Activity) (string, error) {
	meta, err := metadataJSON(a.Metadata)
	if err != nil {
		return "", err
	}
	var id string
	err = l.pool.QueryRow(ctx, `
		INSERT INTO activity_log (actor, type, category, currency, amount, quote_amount, status, reference_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $10)
		RETURNING id::text
	`, a.Actor, string(a.Type), string(a.Category), a.Currency, a.Amount, a.QuoteAmount,
		string(a.Status), a.ReferenceID, meta, time.Now().UTC()).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateByReferenceID finds the most recent activity row for the reference
// and evolves its status (and optionally type), merging any new metadata
// keys over the old ones.
func (l *Log) UpdateByReferenceID(ctx context.Context, referenceID string, status types.ActivityStatus, newType types.ActivityType, mergedMetadata map[string]any) error {
	meta, err := metadataJSON(mergedMetadata)
	if err != nil {
		return err
	}
	tag, err := l.pool.Exec(ctx, `
		UPDATE activity_log
		SET status = $2,
			type = COALESCE(NULLIF($3, ''), type),
			metadata = metadata || $4::jsonb,
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM activity_log
			WHERE reference_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
	`, referenceID, string(status), string(newType), meta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// AppendLogged appends after a committed transition. Audit failures must
// not convert a successful financial transition into a failure, so errors
// are retried once and then alerted in the operator log.
func (l *Log) AppendLogged(ctx context.Context, a model.Activity) {
	if _, err := l.Append(ctx, a); err != nil {
		if _, err = l.Append(ctx, a); err != nil {
			log.Printf("[audit] append %s ref=%s failed, manual review required: %v", a.Type, a.ReferenceID, err)
		}
	}
}

// EvolveOrAppend turns the pending audit row for a.ReferenceID into its
// terminal form, appending a fresh row when no pending row exists. Same
// failure policy as AppendLogged.
func (l *Log) EvolveOrAppend(ctx context.Context, a model.Activity) {
	err := l.UpdateByReferenceID(ctx, a.ReferenceID, a.Status, a.Type, a.Metadata)
	if errors.Is(err, errs.ErrNotFound) {
		_, err = l.Append(ctx, a)
	}
	if err != nil {
		log.Printf("[audit] evolve %s ref=%s failed, manual review required: %v", a.Type, a.ReferenceID, err)
	}
}

func (l *Log) ListByActor(ctx context.Context, actor string, limit int) ([]model.Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx, `
		SELECT id::text, actor, type, category, currency, amount, quote_amount, status, reference_id, metadata, created_at, updated_at
		FROM activity_log
		WHERE actor = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, actor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActivities(rows)
}

func (l *Log) List(ctx context.Context, category types.ActivityCategory, status types.ActivityStatus, limit int) ([]model.Activity, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx, `
		SELECT id::text, actor, type, category, currency, amount, quote_amount, status, reference_id, metadata, created_at, updated_at
		FROM activity_log
		WHERE ($1 = '' OR category = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, string(category), string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActivities(rows)
}

func scanActivities(rows pgx.Rows) ([]model.Activity, error) {
	var out []model.Activity
	for rows.Next() {
		var a model.Activity
		var typ, category, status string
		var meta []byte
		if err := rows.Scan(&a.ID, &a.Actor, &typ, &category, &a.Currency, &a.Amount, &a.QuoteAmount, &status, &a.ReferenceID, &meta, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Type = types.ActivityType(typ)
		a.Category = types.ActivityCategory(category)
		a.Status = types.ActivityStatus(status)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func metadataJSON(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	buf, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.New("activity metadata is not serializable")
	}
	return buf, nil
}
