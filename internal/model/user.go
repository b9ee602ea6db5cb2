package model

import "time"

// Roles recognised by the API.  ADMIN manages the schedule and sees
// every purchase; CUSTOMER buys seats for themselves.
const (
	RoleAdmin    = "ADMIN"
	RoleCustomer = "CUSTOMER"
)

// User represents an application user record as stored in the
// `users` table.  The reservation core only checks that a user exists;
// the remaining fields serve the authentication endpoints.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – ADMIN or CUSTOMER.
//  IsActive     – whether the account is active.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Actor identifies the caller of a mutating operation.  It is built per
// request from the access token and passed explicitly into the engines.
type Actor struct {
	UserID uint64
	Role   string
}

// IsAdmin reports whether the actor may act on other users' records.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// CanActFor reports whether the actor may act on records owned by userID.
func (a Actor) CanActFor(userID uint64) bool {
	return a.IsAdmin() || a.UserID == userID
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
