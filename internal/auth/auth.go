package auth

import (
	"context"

	"github.com/kjstillabower/tropicnights/internal/models"
)

// AuthError is a signup or login rejection whose message is safe to surface
// to the user (duplicate email, wrong password, weak password, and so on).
// Anything that is not an *AuthError is an infrastructure failure.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// Gateway authenticates users. The web layer holds no credentials beyond the
// request lifetime; it receives an opaque user record on success.
type Gateway interface {
	SignUp(ctx context.Context, email, password string) error
	SignIn(ctx context.Context, email, password string) (models.User, error)
}
