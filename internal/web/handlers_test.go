package web

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/tropicnights/internal/auth"
	"github.com/kjstillabower/tropicnights/internal/catalog"
	"github.com/kjstillabower/tropicnights/internal/degraded"
	"github.com/kjstillabower/tropicnights/internal/lifecycle"
	"github.com/kjstillabower/tropicnights/internal/meteo"
	"github.com/kjstillabower/tropicnights/internal/models"
	"github.com/kjstillabower/tropicnights/internal/registry"
	"github.com/kjstillabower/tropicnights/internal/session"
)

type fakePlots struct {
	fragment string
	err      error
}

func (f *fakePlots) GetCityPlot(ctx context.Context, cityName string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.fragment, nil
}

type fakeCities struct {
	cities  map[string]models.City
	added   []string
	deleted []string
	listErr error
}

func newFakeCities(cities ...models.City) *fakeCities {
	f := &fakeCities{cities: make(map[string]models.City)}
	for _, c := range cities {
		f.cities[c.ID.String()] = c
	}
	return f
}

func (f *fakeCities) Add(ctx context.Context, userID, cityName string) error {
	f.added = append(f.added, cityName)
	return nil
}

func (f *fakeCities) List(ctx context.Context, userID string) ([]models.City, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.City
	for _, c := range f.cities {
		if c.UserID.String() == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCities) Get(ctx context.Context, userID, cityID string) (models.City, error) {
	if _, err := uuid.Parse(cityID); err != nil {
		return models.City{}, registry.ErrInvalidIdentifier
	}
	c, ok := f.cities[cityID]
	if !ok || c.UserID.String() != userID {
		return models.City{}, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeCities) Delete(ctx context.Context, userID, cityID string) error {
	if _, err := uuid.Parse(cityID); err != nil {
		return registry.ErrInvalidIdentifier
	}
	// Scoped like the real registry: a row owned by another user is untouched.
	c, ok := f.cities[cityID]
	if !ok || c.UserID.String() != userID {
		return nil
	}
	f.deleted = append(f.deleted, cityID)
	delete(f.cities, cityID)
	return nil
}

type fakeGateway struct {
	signUpErr error
	signInErr error
	user      models.User
}

func (f *fakeGateway) SignUp(ctx context.Context, email, password string) error {
	return f.signUpErr
}

func (f *fakeGateway) SignIn(ctx context.Context, email, password string) (models.User, error) {
	if f.signInErr != nil {
		return models.User{}, f.signInErr
	}
	return f.user, nil
}

const testSessionKey = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	handler  *Handler
	router   http.Handler
	sessions *session.Manager
	plots    *fakePlots
	cities   *fakeCities
	gateway  *fakeGateway
	user     models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	degraded.Reset()

	user := models.User{ID: uuid.New(), Email: "a@example.com"}
	env := &testEnv{
		sessions: session.NewManager(testSessionKey, false),
		plots:    &fakePlots{fragment: `<div class="tropical-nights-plot">ok</div>`},
		cities:   newFakeCities(),
		gateway:  &fakeGateway{user: user},
		user:     user,
	}

	logger := zap.NewNop()
	h, err := NewHandler(logger, env.plots, env.cities, env.gateway, env.sessions, nil, nil,
		5*time.Minute, 50)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	env.handler = h
	env.router = NewRouter(logger, h, env.sessions, RouterOptions{PlotTimeout: 5 * time.Second})
	return env
}

func (e *testEnv) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := e.sessions.Issue(rec, e.user); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func (e *testEnv) authedRequest(t *testing.T, method, target string, form url.Values) *http.Request {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.AddCookie(e.sessionCookie(t))
	return req
}

// TestGetPublic verifies that the landing page is served without a session.
func TestGetPublic(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Tropical Nights") {
		t.Error("landing page missing title")
	}
}

// TestGetPublic_RedirectsAuthenticated verifies that a logged-in user landing
// on / is sent to their cities page.
func TestGetPublic_RedirectsAuthenticated(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodGet, "/", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("GET / status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/cities" {
		t.Errorf("GET / redirect = %q, want /cities", loc)
	}
}

// TestRequireAuth_Redirects verifies that protected routes redirect
// unauthenticated requests to the login page instead of erroring.
func TestRequireAuth_Redirects(t *testing.T) {
	env := newTestEnv(t)
	for _, target := range []string{"/cities", "/cities/" + uuid.New().String()} {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		if rec.Code != http.StatusFound {
			t.Errorf("GET %s status = %d, want 302", target, rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != "/login" {
			t.Errorf("GET %s redirect = %q, want /login", target, loc)
		}
	}
}

// TestPostSignup_RedirectsToLogin verifies that a successful signup redirects
// to the login page without issuing a session.
func TestPostSignup_RedirectsToLogin(t *testing.T) {
	env := newTestEnv(t)
	form := url.Values{"email": {"a@example.com"}, "password": {"password123"}}
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("POST /signup status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("POST /signup redirect = %q, want /login", loc)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			t.Error("POST /signup issued a session cookie")
		}
	}
}

// TestPostSignup_Rejection verifies that an auth rejection re-renders the
// form with the rejection message and a 200 status.
func TestPostSignup_Rejection(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.signUpErr = &auth.AuthError{Message: "an account with this email already exists"}

	form := url.Values{"email": {"a@example.com"}, "password": {"password123"}}
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /signup status = %d, want 200 with form error", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "already exists") {
		t.Error("POST /signup response missing rejection message")
	}
}

// TestPostLogin_IssuesSession verifies that a successful login sets the
// session cookie and redirects to the cities page.
func TestPostLogin_IssuesSession(t *testing.T) {
	env := newTestEnv(t)
	form := url.Values{"email": {"a@example.com"}, "password": {"password123"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("POST /login status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/cities" {
		t.Errorf("POST /login redirect = %q, want /cities", loc)
	}
	var got *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			got = c
		}
	}
	if got == nil || got.Value == "" {
		t.Fatal("POST /login did not set the session cookie")
	}
}

// TestPostLogin_BadCredentials verifies that a rejection re-renders the login
// form with the message.
func TestPostLogin_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.signInErr = &auth.AuthError{Message: "invalid email or password"}

	form := url.Values{"email": {"a@example.com"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /login status = %d, want 200 with form error", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid email or password") {
		t.Error("POST /login response missing rejection message")
	}
}

// TestGetLogout verifies that logout clears the cookie and redirects home.
func TestGetLogout(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodGet, "/logout", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("GET /logout status = %d, want 302", rec.Code)
	}
	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			cleared = c
		}
	}
	if cleared == nil || cleared.MaxAge != -1 {
		t.Error("GET /logout did not expire the session cookie")
	}
}

// TestGetCities_ListsOwnCities verifies that the page shows only the user's
// cities.
func TestGetCities_ListsOwnCities(t *testing.T) {
	env := newTestEnv(t)
	mine := models.City{ID: uuid.New(), UserID: env.user.ID, Name: "Berlin"}
	other := models.City{ID: uuid.New(), UserID: uuid.New(), Name: "Madrid"}
	env.cities.cities[mine.ID.String()] = mine
	env.cities.cities[other.ID.String()] = other

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodGet, "/cities", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /cities status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Berlin") {
		t.Error("GET /cities missing the user's city")
	}
	if strings.Contains(body, "Madrid") {
		t.Error("GET /cities leaked another user's city")
	}
}

// TestPostCity_Saves verifies that a valid name is saved and the user is
// redirected back to the list.
func TestPostCity_Saves(t *testing.T) {
	env := newTestEnv(t)
	form := url.Values{"city": {"  Berlin  "}}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodPost, "/cities", form))

	if rec.Code != http.StatusFound {
		t.Fatalf("POST /cities status = %d, want 302", rec.Code)
	}
	if len(env.cities.added) != 1 || env.cities.added[0] != "Berlin" {
		t.Errorf("saved cities = %v, want [Berlin] (trimmed)", env.cities.added)
	}
}

// TestPostCity_InvalidName verifies that validation failures re-render the
// page with a message and save nothing.
func TestPostCity_InvalidName(t *testing.T) {
	env := newTestEnv(t)
	form := url.Values{"city": {"<script>alert(1)</script>"}}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodPost, "/cities", form))

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /cities status = %d, want 200 with form error", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unsupported characters") {
		t.Error("POST /cities missing validation message")
	}
	if len(env.cities.added) != 0 {
		t.Errorf("saved cities = %v, want none", env.cities.added)
	}
}

// TestPostDeleteCity verifies deletion redirects back to the list.
func TestPostDeleteCity(t *testing.T) {
	env := newTestEnv(t)
	city := models.City{ID: uuid.New(), UserID: env.user.ID, Name: "Berlin"}
	env.cities.cities[city.ID.String()] = city

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodPost, "/cities/"+city.ID.String()+"/delete", url.Values{}))

	if rec.Code != http.StatusFound {
		t.Fatalf("POST delete status = %d, want 302", rec.Code)
	}
	if len(env.cities.deleted) != 1 {
		t.Errorf("deleted %d cities, want 1", len(env.cities.deleted))
	}
}

// TestPostDeleteCity_OtherUsersCity verifies that deleting another user's
// city is a quiet no-op: the row survives and the response is the same
// redirect a successful delete gets, leaking nothing about ownership.
func TestPostDeleteCity_OtherUsersCity(t *testing.T) {
	env := newTestEnv(t)
	other := models.City{ID: uuid.New(), UserID: uuid.New(), Name: "Berlin"}
	env.cities.cities[other.ID.String()] = other

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodPost, "/cities/"+other.ID.String()+"/delete", url.Values{}))

	if rec.Code != http.StatusFound {
		t.Fatalf("POST delete status = %d, want 302", rec.Code)
	}
	if _, ok := env.cities.cities[other.ID.String()]; !ok {
		t.Error("another user's city was deleted")
	}
	if len(env.cities.deleted) != 0 {
		t.Errorf("deleted %d cities, want 0", len(env.cities.deleted))
	}
}

// TestPostDeleteCity_MalformedID verifies that a malformed id is a quiet
// redirect, not an error page.
func TestPostDeleteCity_MalformedID(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodPost, "/cities/not-a-uuid/delete", url.Values{}))

	if rec.Code != http.StatusFound {
		t.Fatalf("POST delete status = %d, want 302", rec.Code)
	}
}

// TestGetCityDetail_RendersPlot verifies the happy path embeds the plot
// fragment.
func TestGetCityDetail_RendersPlot(t *testing.T) {
	env := newTestEnv(t)
	city := models.City{ID: uuid.New(), UserID: env.user.ID, Name: "Berlin"}
	env.cities.cities[city.ID.String()] = city

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodGet, "/cities/"+city.ID.String(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET city status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tropical-nights-plot") {
		t.Error("GET city missing plot fragment")
	}
}

// TestGetCityDetail_UnsupportedCity verifies that a saved city outside the
// catalog renders an in-page notice with a 200.
func TestGetCityDetail_UnsupportedCity(t *testing.T) {
	env := newTestEnv(t)
	env.plots.err = catalog.ErrCityNotInCatalog
	city := models.City{ID: uuid.New(), UserID: env.user.ID, Name: "Smallville"}
	env.cities.cities[city.ID.String()] = city

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodGet, "/cities/"+city.ID.String(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET city status = %d, want 200 with notice", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not supported") {
		t.Error("GET city missing unsupported-city notice")
	}
}

// TestGetCityDetail_SourceUnavailable verifies that archive failures render a
// temporary-unavailability notice rather than an error status.
func TestGetCityDetail_SourceUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.plots.err = meteo.ErrDataSourceUnavailable
	city := models.City{ID: uuid.New(), UserID: env.user.ID, Name: "Berlin"}
	env.cities.cities[city.ID.String()] = city

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodGet, "/cities/"+city.ID.String(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET city status = %d, want 200 with notice", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "temporarily unavailable") {
		t.Error("GET city missing unavailability notice")
	}
}

// TestGetCityDetail_OtherUsersCity verifies that another user's city id
// yields 404, indistinguishable from a missing row.
func TestGetCityDetail_OtherUsersCity(t *testing.T) {
	env := newTestEnv(t)
	other := models.City{ID: uuid.New(), UserID: uuid.New(), Name: "Berlin"}
	env.cities.cities[other.ID.String()] = other

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, env.authedRequest(t, http.MethodGet, "/cities/"+other.ID.String(), nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("GET city status = %d, want 404", rec.Code)
	}
}

// TestGetHealth_Healthy verifies the healthy state with no database wired.
func TestGetHealth_Healthy(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "healthy" {
		t.Errorf("GET /health body = %q, want healthy", body)
	}
}

// TestGetHealth_ShuttingDown verifies 503 while shutdown is in progress.
func TestGetHealth_ShuttingDown(t *testing.T) {
	env := newTestEnv(t)
	lifecycle.SetShuttingDown(true)
	defer lifecycle.SetShuttingDown(false)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health status = %d, want 503 while shutting down", rec.Code)
	}
}

// TestGetHealth_Degraded verifies that a high recent plot error rate flips
// the health body to degraded while keeping a 200 status.
func TestGetHealth_Degraded(t *testing.T) {
	env := newTestEnv(t)
	defer degraded.Reset()
	for i := 0; i < 6; i++ {
		degraded.RecordError()
	}
	for i := 0; i < 4; i++ {
		degraded.RecordSuccess()
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "degraded" {
		t.Errorf("GET /health body = %q, want degraded", body)
	}
}

// TestMetricsEndpoint verifies that /metrics serves the private registry.
func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	// Serve one page first so the request counter has a sample.
	env.router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "httpRequestsTotal") {
		t.Error("GET /metrics missing request counter")
	}
}

// TestCorrelationID verifies that responses carry a correlation id and echo a
// provided one.
func TestCorrelationID(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("response missing generated correlation id")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("correlation id = %q, want abc-123 echoed", got)
	}
}
