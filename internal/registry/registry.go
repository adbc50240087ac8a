package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kjstillabower/tropicnights/internal/models"
)

// ErrInvalidIdentifier is returned when a caller-supplied identifier is not a
// well-formed UUID. Malformed input never reaches the database.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Registry persists the set of cities each user has saved. All operations are
// scoped by the owning user id.
type Registry struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to Postgres using the given connection string and verifies
// the connection with a ping.
func Open(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// New creates a Registry using an existing connection pool.
func New(db *sql.DB, logger *zap.Logger) *Registry {
	return &Registry{db: db, logger: logger}
}

// Add saves a city name for the user. The name is free-form; it is not
// validated against the catalog at write time.
func (r *Registry) Add(ctx context.Context, userID, cityName string) error {
	uid, err := parseID(userID)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO user_cities (id, user_id, city)
        VALUES ($1, $2, $3)
    `
	if _, err := r.db.ExecContext(ctx, query, uuid.New(), uid, cityName); err != nil {
		r.logger.Error("add city failed", zap.String("user_id", uid.String()), zap.Error(err))
		return fmt.Errorf("add city: %w", err)
	}
	return nil
}

// List returns the user's saved cities ordered by creation time.
func (r *Registry) List(ctx context.Context, userID string) ([]models.City, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}

	query := `
        SELECT id, user_id, city, created_at
        FROM user_cities
        WHERE user_id = $1
        ORDER BY created_at ASC
    `
	rows, err := r.db.QueryContext(ctx, query, uid)
	if err != nil {
		r.logger.Error("list cities failed", zap.String("user_id", uid.String()), zap.Error(err))
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	var cities []models.City
	for rows.Next() {
		var c models.City
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt); err != nil {
			r.logger.Error("scan city row failed", zap.Error(err))
			return nil, fmt.Errorf("scan city: %w", err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	return cities, nil
}

// Get returns one of the user's cities by id. sql.ErrNoRows is returned when
// the row does not exist or belongs to another user; callers must not be able
// to tell the two apart.
func (r *Registry) Get(ctx context.Context, userID, cityID string) (models.City, error) {
	uid, err := parseID(userID)
	if err != nil {
		return models.City{}, err
	}
	cid, err := parseID(cityID)
	if err != nil {
		return models.City{}, err
	}

	query := `
        SELECT id, user_id, city, created_at
        FROM user_cities
        WHERE id = $1 AND user_id = $2
    `
	var c models.City
	err = r.db.QueryRowContext(ctx, query, cid, uid).Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.City{}, err
		}
		r.logger.Error("get city failed", zap.String("city_id", cid.String()), zap.Error(err))
		return models.City{}, fmt.Errorf("get city: %w", err)
	}
	return c, nil
}

// Delete removes the user's city. Deleting a missing row, or a row owned by
// another user, is a no-op rather than an error.
func (r *Registry) Delete(ctx context.Context, userID, cityID string) error {
	uid, err := parseID(userID)
	if err != nil {
		return err
	}
	cid, err := parseID(cityID)
	if err != nil {
		return err
	}

	query := `DELETE FROM user_cities WHERE id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, cid, uid); err != nil {
		r.logger.Error("delete city failed", zap.String("city_id", cid.String()), zap.Error(err))
		return fmt.Errorf("delete city: %w", err)
	}
	return nil
}

// parseID validates a UUID-shaped identifier string.
func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	return id, nil
}
