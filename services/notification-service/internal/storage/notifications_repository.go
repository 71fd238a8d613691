package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ruralhealthconnect/telecare/libs/db"
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"user_id"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	Type          string     `json:"notification_type"`
	AppointmentID string     `json:"related_appointment,omitempty"`
	IsRead        bool       `json:"is_read"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes n with q, normally the consumer's inbox transaction.
func (r *Repository) Insert(ctx context.Context, q execer, n Notification) error {
	_, err := q.Exec(ctx, `
		INSERT INTO notifications (user_id, title, message, notification_type, appointment_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`, n.UserID, n.Title, n.Message, n.Type, n.AppointmentID)
	return err
}

// List returns the user's notifications, unread first within each instant,
// newest first.
func (r *Repository) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, message, notification_type, COALESCE(appointment_id, ''), is_read, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC, is_read
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.AppointmentID, &n.IsRead, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead marks one of the user's notifications read. Marking twice keeps the first read_at.
func (r *Repository) MarkRead(ctx context.Context, userID string, id int64) (Notification, error) {
	var n Notification
	err := r.pool.QueryRow(ctx, `
		UPDATE notifications
		SET is_read = TRUE,
			read_at = COALESCE(read_at, now()),
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, title, message, notification_type, COALESCE(appointment_id, ''), is_read, read_at, created_at
	`, id, userID).Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.AppointmentID, &n.IsRead, &n.ReadAt, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, ErrNotFound
	}
	return n, err
}

func (r *Repository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = now(), updated_at = now()
		WHERE user_id = $1 AND NOT is_read
	`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT is_read
	`, userID).Scan(&n)
	return n, err
}
