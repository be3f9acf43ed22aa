package models

import (
	"database/sql"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// User represents an account principal. The stored refresh token is the
// single active session credential: overwriting it invalidates any token
// issued earlier.
type User struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	Username     string         `json:"username" db:"username"`
	PasswordHash string         `json:"-" db:"password_hash"`
	RefreshToken sql.NullString `json:"-" db:"refresh_token"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User with a bcrypt-hashed password.
// The username is stored lowercased; uniqueness is case-insensitive.
func NewUser(username, password string, bcryptCost int) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &User{
		ID:           uuid.New(),
		Username:     NormalizeUsername(username),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CheckPassword compares a candidate password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Sanitized returns a copy with secret fields stripped. Handlers must never
// return the raw record.
func (u *User) Sanitized() *User {
	return &User{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// NormalizeUsername lowercases and trims a username for case-insensitive matching.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidUsername reports whether a username satisfies the signup rules:
// 3-30 characters, letters, digits and underscores only.
func ValidUsername(username string) bool {
	if len(username) < 3 || len(username) > 30 {
		return false
	}
	return usernameRegex.MatchString(username)
}

// ValidPassword reports whether a password satisfies the signup rules:
// at least 8 characters with at least one digit and one symbol.
func ValidPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune("!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~", r):
			hasSymbol = true
		}
	}
	return hasDigit && hasSymbol
}
