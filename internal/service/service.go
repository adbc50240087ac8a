package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/tropicnights/internal/cache"
	"github.com/kjstillabower/tropicnights/internal/catalog"
	"github.com/kjstillabower/tropicnights/internal/meteo"
	"github.com/kjstillabower/tropicnights/internal/observability"
	"github.com/kjstillabower/tropicnights/internal/plot"
	"github.com/kjstillabower/tropicnights/internal/tropical"
)

// windowYears is the historical window: from five years before today (same
// month/day) through today.
const windowYears = 5

// PlotService memoizes the fetch-aggregate-render pipeline behind a TTL cache.
// Identical calls within the cache window return the previously rendered
// fragment without re-fetching or re-rendering.
type PlotService struct {
	source    meteo.Source
	cache     cache.Cache
	ttl       time.Duration
	coalescer *requestCoalescer
	now       func() time.Time
}

// NewPlotService creates a PlotService. ttl is the memoization window (24h in
// production). coalesceTimeout bounds how long a caller waits on another
// caller's in-flight render; 0 disables coalescing and lets concurrent misses
// compute redundantly, which is harmless since the render is pure.
func NewPlotService(source meteo.Source, cache cache.Cache, ttl time.Duration, coalesceTimeout time.Duration) *PlotService {
	var coalescer *requestCoalescer
	if coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &PlotService{
		source:    source,
		cache:     cache,
		ttl:       ttl,
		coalescer: coalescer,
		now:       time.Now,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetCityPlot resolves the city against the static catalog and returns the
// rendered tropical-nights fragment for its coordinates. Unknown cities return
// catalog.ErrCityNotInCatalog; source failures surface as
// meteo.ErrDataSourceUnavailable.
func (s *PlotService) GetCityPlot(ctx context.Context, cityName string) (string, error) {
	display := strings.TrimSpace(cityName)
	name := normalizeCity(cityName)
	coords, err := catalog.Lookup(name)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s|%.4f|%.4f", name, coords.Lat, coords.Lon)
	logger := loggerFromContext(ctx)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		if logger != nil {
			logger.Warn("cache get failed", zap.String("city", name), zap.Error(err))
		}
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues("plot").Inc()
		if logger != nil {
			logger.Debug("plot cache hit", zap.String("city", name))
		}
		return cached, nil
	}

	if logger != nil {
		logger.Debug("plot cache miss, rendering", zap.String("city", name))
	}

	var fragment string
	if s.coalescer != nil {
		fragment, err = s.coalescer.GetOrDo(ctx, key, func() (string, error) {
			return s.renderPlot(ctx, display, coords.Lat, coords.Lon)
		})
	} else {
		fragment, err = s.renderPlot(ctx, display, coords.Lat, coords.Lon)
	}
	if err != nil {
		return "", err
	}

	if setErr := s.cache.Set(ctx, key, fragment, s.ttl); setErr != nil && logger != nil {
		logger.Warn("cache set failed", zap.String("city", name), zap.Error(setErr))
	}
	return fragment, nil
}

// renderPlot runs the full pipeline: fetch five years of hourly observations,
// classify days, summarize years, render the fragment. displayName keeps the
// caller's casing; normalization is for the cache key and catalog only.
func (s *PlotService) renderPlot(ctx context.Context, displayName string, lat, lon float64) (string, error) {
	start := time.Now()

	end := s.now().UTC()
	windowStart := end.AddDate(-windowYears, 0, 0)

	observations, err := s.source.FetchHourly(ctx, lat, lon, windowStart, end)
	if err != nil {
		return "", err
	}

	days := tropical.Classify(observations)
	summaries := tropical.Summarize(days)
	fragment := plot.Render(displayName, days, summaries)

	observability.PlotRenderDuration.Observe(time.Since(start).Seconds())
	observability.PlotRendersTotal.Inc()
	return fragment, nil
}

// normalizeCity normalizes city names so cache keys and catalog lookups agree
// regardless of input casing or padding.
func normalizeCity(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
