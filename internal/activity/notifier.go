package activity

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bx-custody/internal/model"
)

// Notifier is best-effort: a failed notification is logged and never fails
// or rolls back the financial transition that produced it.
type Notifier interface {
	Notify(ctx context.Context, wallet, typ, title, message, link string)
}

// TxNotifier additionally writes the notification inside the caller's unit
// of work, so a rolled-back transition leaves no orphan notification.
type TxNotifier interface {
	Notifier
	NotifyTx(ctx context.Context, tx pgx.Tx, wallet, typ, title, message, link string) error
}

type PGNotifier struct {
	pool *pgxpool.Pool
}

func NewPGNotifier(pool *pgxpool.Pool) *PGNotifier {
	return &PGNotifier{pool: pool}
}

func (n *PGNotifier) Notify(ctx context.Context, wallet, typ, title, message, link string) {
	_, err := n.pool.Exec(ctx, `
		INSERT INTO notifications (wallet, type, title, message, link, read, created_at)
		VALUES ($1, $2, $3, $4, $5, false, NOW())
	`, wallet, typ, title, message, link)
	if err != nil {
		log.Printf("[notify] failed to store notification for %s: %v", wallet, err)
	}
}

func (n *PGNotifier) NotifyTx(ctx context.Context, tx pgx.Tx, wallet, typ, title, message, link string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (wallet, type, title, message, link, read, created_at)
		VALUES ($1, $2, $3, $4, $5, false, NOW())
	`, wallet, typ, title, message, link)
	return err
}

func (n *PGNotifier) ListByWallet(ctx context.Context, wallet string, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := n.pool.Query(ctx, `
		SELECT id::text, wallet, type, title, message, COALESCE(link, ''), read, created_at
		FROM notifications
		WHERE wallet = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, wallet, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var m model.Notification
		if err := rows.Scan(&m.ID, &m.Wallet, &m.Type, &m.Title, &m.Message, &m.Link, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (n *PGNotifier) MarkRead(ctx context.Context, wallet, id string) error {
	_, err := n.pool.Exec(ctx, `
		UPDATE notifications SET read = true WHERE wallet = $1 AND id = $2::uuid
	`, wallet, id)
	return err
}

// NoopNotifier is used in tests and when the sink is disabled.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, wallet, typ, title, message, link string) {}

func (NoopNotifier) NotifyTx(ctx context.Context, tx pgx.Tx, wallet, typ, title, message, link string) error {
	return nil
}
