package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kjstillabower/tropicnights/internal/models"
)

// CookieName is the session cookie set on login and cleared on logout.
const CookieName = "session"

// TTL is how long an issued session stays valid.
const TTL = 24 * time.Hour

// ErrNoSession is returned when the request carries no usable session: cookie
// absent, expired, tampered, or signed with another key. Callers treat all of
// these as unauthenticated, never as server errors.
var ErrNoSession = errors.New("no valid session")

// Claims is the signed session payload.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Manager issues and verifies signed session cookies. The signing key comes
// from SESSION_KEY and never leaves the process.
type Manager struct {
	signingKey []byte
	secure     bool
}

// NewManager creates a Manager. secure controls the cookie Secure flag; leave
// it off only for plain-HTTP local development.
func NewManager(signingKey string, secure bool) *Manager {
	return &Manager{signingKey: []byte(signingKey), secure: secure}
}

// Issue writes a signed session cookie for the user onto the response.
func (m *Manager) Issue(w http.ResponseWriter, user models.User) error {
	now := time.Now()
	claims := Claims{
		UserID: user.ID.String(),
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// UserFromRequest verifies the session cookie and returns the authenticated
// user. Any verification failure maps to ErrNoSession.
func (m *Manager) UserFromRequest(r *http.Request) (models.User, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return models.User{}, ErrNoSession
	}

	token, err := jwt.ParseWithClaims(cookie.Value, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		return models.User{}, ErrNoSession
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return models.User{}, ErrNoSession
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return models.User{}, ErrNoSession
	}

	return models.User{ID: id, Email: claims.Email}, nil
}
