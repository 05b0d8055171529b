package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
)

// VerificationRepository stores one-time email verification codes.
type VerificationRepository struct {
	db *sqlx.DB
}

// NewVerificationRepository instantiates the repository.
func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Create persists a new code.
func (r *VerificationRepository) Create(ctx context.Context, code *models.VerificationCode) error {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO verification_codes (id, user_id, email, code, expires_at, used, created_at) VALUES (:id, :user_id, :email, :code, :expires_at, :used, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, code); err != nil {
		return fmt.Errorf("create verification code: %w", err)
	}
	return nil
}

// FindLatestValid returns the most recent unused, unexpired code matching email and code.
func (r *VerificationRepository) FindLatestValid(ctx context.Context, email, code string, now time.Time) (*models.VerificationCode, error) {
	const query = `SELECT id, user_id, email, code, expires_at, used, created_at FROM verification_codes
WHERE LOWER(email) = LOWER($1) AND code = $2 AND used = FALSE AND expires_at > $3
ORDER BY created_at DESC LIMIT 1`
	var vc models.VerificationCode
	if err := r.db.GetContext(ctx, &vc, query, email, code, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find verification code: %w", err)
	}
	return &vc, nil
}

// MarkUsed consumes a code.
func (r *VerificationRepository) MarkUsed(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE verification_codes SET used = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark verification code used: %w", err)
	}
	return nil
}
