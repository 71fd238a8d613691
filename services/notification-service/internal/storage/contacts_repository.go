package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrNoContact = errors.New("no contact details on file")

// Contact is where a user wants out-of-app notifications delivered.
type Contact struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	EmailEnabled bool      `json:"email_enabled"`
	SMSEnabled   bool      `json:"sms_enabled"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r *Repository) GetContact(ctx context.Context, userID string) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, email, phone, email_enabled, sms_enabled, updated_at
		FROM contact_preferences
		WHERE user_id = $1
	`, userID).Scan(&c.UserID, &c.Email, &c.Phone, &c.EmailEnabled, &c.SMSEnabled, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNoContact
	}
	return c, err
}

func (r *Repository) UpsertContact(ctx context.Context, c Contact) (Contact, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO contact_preferences (user_id, email, phone, email_enabled, sms_enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			email_enabled = EXCLUDED.email_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			updated_at = now()
		RETURNING updated_at
	`, c.UserID, c.Email, c.Phone, c.EmailEnabled, c.SMSEnabled).Scan(&c.UpdatedAt)
	return c, err
}
