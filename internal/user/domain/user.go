package domain

import (
	"errors"
	"time"
)

// User is the core user entity. Rows are never physically deleted; deactivation
// flips IsActive instead.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	UserType     UserType
	IsActive     bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time // nil until first successful login
}

// UserType is a flat classification; it carries no authorization semantics here.
type UserType string

const (
	UserTypeEndUser   UserType = "end_user"
	UserTypeAdmin     UserType = "admin"
	UserTypePartner   UserType = "partner"
	UserTypeModerator UserType = "moderator"
)

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Username == "" {
		return errors.New("username is required")
	}
	if u.UserType == "" {
		u.UserType = UserTypeEndUser
	}
	switch u.UserType {
	case UserTypeEndUser, UserTypeAdmin, UserTypePartner, UserTypeModerator:
	default:
		return errors.New("unknown user type")
	}
	return nil
}
