package web

import (
	"context"
	"database/sql"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/tropicnights/internal/auth"
	"github.com/kjstillabower/tropicnights/internal/catalog"
	"github.com/kjstillabower/tropicnights/internal/degraded"
	"github.com/kjstillabower/tropicnights/internal/lifecycle"
	"github.com/kjstillabower/tropicnights/internal/meteo"
	"github.com/kjstillabower/tropicnights/internal/models"
	"github.com/kjstillabower/tropicnights/internal/registry"
	"github.com/kjstillabower/tropicnights/internal/session"
	"github.com/kjstillabower/tropicnights/internal/validation"
)

// PlotProvider produces the rendered heatmap fragment for a catalog city.
type PlotProvider interface {
	GetCityPlot(ctx context.Context, cityName string) (string, error)
}

// CityRegistry is the per-user saved-city store consumed by the handlers.
type CityRegistry interface {
	Add(ctx context.Context, userID, cityName string) error
	List(ctx context.Context, userID string) ([]models.City, error)
	Get(ctx context.Context, userID, cityID string) (models.City, error)
	Delete(ctx context.Context, userID, cityID string) error
}

// Pinger reports reachability of a backing store. Used by the health endpoint.
type Pinger interface {
	Ping() error
}

// Handler serves the HTML pages and the health endpoint.
type Handler struct {
	logger    *zap.Logger
	templates *template.Template
	plots     PlotProvider
	cities    CityRegistry
	gateway   auth.Gateway
	sessions  *session.Manager
	db        *sql.DB
	cachePing Pinger

	degradedWindow   time.Duration
	degradedErrorPct float64
}

// NewHandler builds the page handler. cachePing may be nil when the in-memory
// cache backend is active.
func NewHandler(logger *zap.Logger, plots PlotProvider, cities CityRegistry, gateway auth.Gateway, sessions *session.Manager, db *sql.DB, cachePing Pinger, degradedWindow time.Duration, degradedErrorPct float64) (*Handler, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Handler{
		logger:           logger,
		templates:        tmpl,
		plots:            plots,
		cities:           cities,
		gateway:          gateway,
		sessions:         sessions,
		db:               db,
		cachePing:        cachePing,
		degradedWindow:   degradedWindow,
		degradedErrorPct: degradedErrorPct,
	}, nil
}

func (h *Handler) loggerFrom(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return h.logger
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.loggerFrom(r).Error("failed to render template",
			zap.String("template", name),
			zap.Error(err))
	}
}

type authPageData struct {
	Error string
	Email string
}

// GetPublic serves the landing page. No session required.
func (h *Handler) GetPublic(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.UserFromRequest(r); err == nil {
		http.Redirect(w, r, "/cities", http.StatusFound)
		return
	}
	h.render(w, r, "public.html", nil)
}

// GetSignup serves the registration form.
func (h *Handler) GetSignup(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "signup.html", authPageData{})
}

// PostSignup registers a new account. Success redirects to the login page; a
// session is never issued here.
func (h *Handler) PostSignup(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerFrom(r)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission.", http.StatusBadRequest)
		return
	}
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	if err := h.gateway.SignUp(r.Context(), email, password); err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			h.render(w, r, "signup.html", authPageData{Error: authErr.Message, Email: email})
			return
		}
		logger.Error("signup failed", zap.Error(err))
		h.render(w, r, "signup.html", authPageData{Error: "Something went wrong, please try again later.", Email: email})
		return
	}

	logger.Info("account created")
	http.Redirect(w, r, "/login", http.StatusFound)
}

// GetLogin serves the login form.
func (h *Handler) GetLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login.html", authPageData{})
}

// PostLogin authenticates the user and issues the session cookie.
func (h *Handler) PostLogin(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerFrom(r)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission.", http.StatusBadRequest)
		return
	}
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	user, err := h.gateway.SignIn(r.Context(), email, password)
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			h.render(w, r, "login.html", authPageData{Error: authErr.Message, Email: email})
			return
		}
		logger.Error("login failed", zap.Error(err))
		h.render(w, r, "login.html", authPageData{Error: "Something went wrong, please try again later.", Email: email})
		return
	}

	if err := h.sessions.Issue(w, user); err != nil {
		logger.Error("failed to issue session", zap.Error(err))
		http.Error(w, "Something went wrong, please try again later.", http.StatusInternalServerError)
		return
	}

	logger.Info("user signed in", zap.String("user_id", user.ID.String()))
	http.Redirect(w, r, "/cities", http.StatusFound)
}

// GetLogout clears the session cookie and redirects to the landing page.
func (h *Handler) GetLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

type citiesPageData struct {
	Email   string
	Cities  []models.City
	Catalog []string
	Error   string
}

// GetCities lists the user's saved cities with the add-city form.
func (h *Handler) GetCities(w http.ResponseWriter, r *http.Request) {
	h.renderCities(w, r, "")
}

func (h *Handler) renderCities(w http.ResponseWriter, r *http.Request, formError string) {
	logger := h.loggerFrom(r)
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	cities, err := h.cities.List(r.Context(), user.ID.String())
	if err != nil {
		logger.Error("failed to list cities", zap.Error(err))
		http.Error(w, "Something went wrong, please try again later.", http.StatusInternalServerError)
		return
	}

	h.render(w, r, "cities.html", citiesPageData{
		Email:   user.Email,
		Cities:  cities,
		Catalog: catalog.Names(),
		Error:   formError,
	})
}

// PostCity saves a city for the user. Validation rejects malformed names
// before they reach the database; membership in the catalog is checked later,
// at plot time.
func (h *Handler) PostCity(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerFrom(r)
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission.", http.StatusBadRequest)
		return
	}
	cityName := r.PostFormValue("city")

	validated, err := validation.ValidateCityName(cityName)
	if err != nil {
		h.renderCities(w, r, validationMessage(err))
		return
	}

	if err := h.cities.Add(r.Context(), user.ID.String(), validated); err != nil {
		logger.Error("failed to save city", zap.Error(err))
		http.Error(w, "Something went wrong, please try again later.", http.StatusInternalServerError)
		return
	}

	logger.Info("city saved",
		zap.String("user_id", user.ID.String()),
		zap.String("city", validated))
	http.Redirect(w, r, "/cities", http.StatusFound)
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, validation.ErrCityNameEmpty):
		return "City name must not be empty."
	case errors.Is(err, validation.ErrCityNameTooLong):
		return "City name is too long."
	case errors.Is(err, validation.ErrCityNameInvalidChars):
		return "City name contains unsupported characters."
	default:
		return "Invalid city name."
	}
}

// PostDeleteCity removes a saved city. Deleting a city that does not exist or
// belongs to someone else is a no-op.
func (h *Handler) PostDeleteCity(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerFrom(r)
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	cityID := mux.Vars(r)["id"]
	if err := h.cities.Delete(r.Context(), user.ID.String(), cityID); err != nil {
		if errors.Is(err, registry.ErrInvalidIdentifier) {
			http.Redirect(w, r, "/cities", http.StatusFound)
			return
		}
		logger.Error("failed to delete city", zap.Error(err))
		http.Error(w, "Something went wrong, please try again later.", http.StatusInternalServerError)
		return
	}

	logger.Info("city deleted",
		zap.String("user_id", user.ID.String()),
		zap.String("city_id", cityID))
	http.Redirect(w, r, "/cities", http.StatusFound)
}

type cityPageData struct {
	Email string
	City  models.City
	Plot  template.HTML
	Error string
}

// GetCityDetail renders the tropical-nights heatmap for one saved city.
// Source failures and cities outside the catalog render an in-page notice
// rather than an error status.
func (h *Handler) GetCityDetail(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerFrom(r)
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	cityID := mux.Vars(r)["id"]
	city, err := h.cities.Get(r.Context(), user.ID.String(), cityID)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidIdentifier) || errors.Is(err, sql.ErrNoRows) {
			http.NotFound(w, r)
			return
		}
		logger.Error("failed to load city", zap.Error(err))
		http.Error(w, "Something went wrong, please try again later.", http.StatusInternalServerError)
		return
	}

	fragment, err := h.plots.GetCityPlot(r.Context(), city.Name)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrCityNotInCatalog):
			// A stored name outside the catalog is a user-data state, not a
			// service failure; it stays out of the degraded error rate.
			h.render(w, r, "city.html", cityPageData{
				Email: user.Email,
				City:  city,
				Error: "This city is not supported yet, so no data is available for it.",
			})
		case errors.Is(err, meteo.ErrDataSourceUnavailable), errors.Is(err, context.DeadlineExceeded):
			degraded.RecordError()
			logger.Warn("plot unavailable", zap.String("city", city.Name), zap.Error(err))
			h.render(w, r, "city.html", cityPageData{
				Email: user.Email,
				City:  city,
				Error: "Weather data is temporarily unavailable, please try again later.",
			})
		default:
			degraded.RecordError()
			logger.Error("failed to build plot", zap.String("city", city.Name), zap.Error(err))
			http.Error(w, "Something went wrong, please try again later.", http.StatusInternalServerError)
		}
		return
	}
	degraded.RecordSuccess()

	h.render(w, r, "city.html", cityPageData{
		Email: user.Email,
		City:  city,
		Plot:  template.HTML(fragment),
	})
}

// GetHealth reports service health for load balancers and monitors.
// Returns 503 while shutting down or when the database is unreachable,
// "degraded" when the recent plot error rate crosses the threshold.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if lifecycle.IsShuttingDown() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			h.loggerFrom(r).Error("health check failed: database unreachable", zap.Error(err))
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
	}

	if h.cachePing != nil {
		if err := h.cachePing.Ping(); err != nil {
			h.loggerFrom(r).Warn("cache unreachable", zap.Error(err))
		}
	}

	errCount, total := degraded.ErrorRate(h.degradedWindow)
	if total > 0 && float64(errCount)/float64(total)*100 >= h.degradedErrorPct {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("degraded"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("healthy"))
}
