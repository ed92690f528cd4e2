package types

import "time"

// User tables. Each gets its own seeded admin account on first run.
const (
	UserTableLab        = "users"
	UserTableQuarantine = "vet_users"
)

// UserTables lists the distinct user tables.
var UserTables = []string{UserTableLab, UserTableQuarantine}

// Roles.
const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleReviewer = "reviewer"
)

// User is a staff account. PasswordHash is a bcrypt hash and never leaves
// the store boundary in JSON.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
