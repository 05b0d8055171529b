package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleUser       UserRole = "USER"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	IsVerified   bool      `db:"is_verified" json:"is_verified"`
	DegreeID     *string   `db:"degree_id" json:"degree_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// UserSummary is the admin listing row: a user plus its degree name and subject count.
type UserSummary struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	Role         UserRole  `db:"role" json:"role"`
	IsVerified   bool      `db:"is_verified" json:"is_verified"`
	DegreeID     *string   `db:"degree_id" json:"degree_id,omitempty"`
	DegreeName   *string   `db:"degree_name" json:"degree_name,omitempty"`
	SubjectCount int       `db:"subject_count" json:"subject_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role     *UserRole
	Search   string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
