package entity

import (
	"strings"
	"time"
)

// UserType is the account role.
type UserType string

const (
	UserTypeFarmer UserType = "farmer"
	UserTypeBuyer  UserType = "buyer"
	UserTypeAdmin  UserType = "admin"
)

// ParseUserType normalizes s and reports whether it names a known role.
func ParseUserType(s string) (UserType, bool) {
	t := UserType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case UserTypeFarmer, UserTypeBuyer, UserTypeAdmin:
		return t, true
	}
	return "", false
}

// User represents an account row in the `users` table.
type User struct {
	ID            string
	Email         string
	Name          string
	Password      StoredPassword
	UserType      UserType
	IsActive      bool
	EmailVerified bool
	LoginAttempts int
	LockedUntil   *time.Time
	Coins         int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLogin     *time.Time
}

// LockedAt reports whether a lockout window is active at now.
func (u *User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// HasRole compares the account role case-insensitively.
func (u *User) HasRole(role string) bool {
	return strings.EqualFold(string(u.UserType), strings.TrimSpace(role))
}

// PublicUser is the sanitized projection returned to clients.
type PublicUser struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	UserType      UserType   `json:"user_type"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	Coins         int64      `json:"coins"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		UserType:      u.UserType,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		Coins:         u.Coins,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
		LastLogin:     u.LastLogin,
	}
}
