package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kjstillabower/tropicnights/internal/models"
)

// uniqueViolation is the Postgres error code for unique constraint breaches.
const uniqueViolation = "23505"

// LocalGateway stores users in the application's own Postgres database with
// bcrypt password hashes. Selected with AUTH_BACKEND=local; useful when no
// external auth service is deployed.
type LocalGateway struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLocalGateway creates a LocalGateway on an existing connection pool.
func NewLocalGateway(db *sql.DB, logger *zap.Logger) *LocalGateway {
	return &LocalGateway{db: db, logger: logger}
}

// SignUp creates a user with a bcrypt-hashed password. A duplicate email is a
// user-facing rejection, not an infrastructure failure.
func (g *LocalGateway) SignUp(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return &AuthError{Message: "email and password are required"}
	}
	if len(password) < 8 {
		return &AuthError{Message: "password must be at least 8 characters"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	query := `
        INSERT INTO users (id, email, password_hash)
        VALUES ($1, $2, $3)
    `
	if _, err := g.db.ExecContext(ctx, query, uuid.New(), email, string(hash)); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return &AuthError{Message: "an account with this email already exists"}
		}
		g.logger.Error("create user failed", zap.Error(err))
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// SignIn validates email and password. A wrong password and an unknown email
// produce the same rejection message.
func (g *LocalGateway) SignIn(ctx context.Context, email, password string) (models.User, error) {
	email = normalizeEmail(email)

	query := `
        SELECT id, email, password_hash
        FROM users
        WHERE email = $1
    `
	var user models.User
	var passwordHash string
	err := g.db.QueryRowContext(ctx, query, email).Scan(&user.ID, &user.Email, &passwordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, &AuthError{Message: "invalid email or password"}
		}
		g.logger.Error("query user failed", zap.Error(err))
		return models.User{}, fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return models.User{}, &AuthError{Message: "invalid email or password"}
	}

	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
