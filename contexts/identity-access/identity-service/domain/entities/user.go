package entities

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type User struct {
	UserID       string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Identity is what the rest of the system consumes after authentication.
type Identity struct {
	UserID string
	Role   Role
}

// RoleForEmail assigns the admin role to addresses containing "admin",
// everyone else registers as a regular user.
func RoleForEmail(email string) Role {
	if strings.Contains(strings.ToLower(email), "admin") {
		return RoleAdmin
	}
	return RoleUser
}
