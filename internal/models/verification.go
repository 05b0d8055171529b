package models

import "time"

// VerificationCode is a one-time email verification code.
type VerificationCode struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Email     string    `db:"email" json:"email"`
	Code      string    `db:"code" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Used      bool      `db:"used" json:"used"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SendCodeRequest asks for a verification code to be emailed.
type SendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyCodeRequest confirms a previously sent code.
type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}
