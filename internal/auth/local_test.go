package auth

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// TestLocalSignUp_Validation verifies the credential checks that run before
// any database access.
func TestLocalSignUp_Validation(t *testing.T) {
	g := NewLocalGateway(nil, zap.NewNop())

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", "password123"},
		{"whitespace email", "   ", "password123"},
		{"empty password", "a@example.com", ""},
		{"short password", "a@example.com", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.SignUp(context.Background(), tt.email, tt.password)
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Errorf("SignUp(%q, %q) error = %v, want *AuthError", tt.email, tt.password, err)
			}
		})
	}
}

// TestNormalizeEmail verifies lowercasing and trimming.
func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"A@Example.COM", "a@example.com"},
		{"  a@example.com  ", "a@example.com"},
		{"a@example.com", "a@example.com"},
	}
	for _, tt := range tests {
		if got := normalizeEmail(tt.input); got != tt.want {
			t.Errorf("normalizeEmail(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// TestAuthError_Error verifies that AuthError exposes its message as the
// error string.
func TestAuthError_Error(t *testing.T) {
	err := &AuthError{Message: "invalid email or password"}
	if err.Error() != "invalid email or password" {
		t.Errorf("Error() = %q", err.Error())
	}
}
