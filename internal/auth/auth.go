package auth

import (
	"context"
	"fmt"
)

// User is an authenticated identity, valid between sign-in and sign-out.
type User struct {
	ID          string
	Email       string
	DisplayName string
}

// Category classifies a sign-in rejection for presentation.
type Category string

const (
	CategoryInvalidEmail       Category = "invalid-email"
	CategoryInvalidCredentials Category = "invalid-credentials"
	CategoryUnknown            Category = "unknown"
)

// Error is a categorized rejection from the identity service. Code retains
// the provider's raw error code for logging.
type Error struct {
	Category Category
	Code     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth rejected (%s): %s", e.Category, e.Code)
}

// Service is the identity service contract consumed by the session manager.
// OnSessionChange fires the callback immediately with the current user (nil
// when signed out) and again on every sign-in and sign-out.
type Service interface {
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	OnSessionChange(fn func(*User)) (unsubscribe func())
	CurrentUser() *User
}
