package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PlotFetcher is implemented by the service layer to render (and thereby
// cache) the plot for a city. Declared here to avoid a circular dependency on
// the service package.
type PlotFetcher interface {
	GetCityPlot(ctx context.Context, cityName string) (string, error)
}

// Warmer pre-renders plots for a list of catalog cities so first page loads
// hit the cache instead of the slow archive fetch.
type Warmer struct {
	fetcher PlotFetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer that uses the given fetcher and logger.
func NewWarmer(fetcher PlotFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm renders the plot for each city concurrently, populating the cache via
// the fetcher. Returns an aggregated error if any city failed.
func (w *Warmer) Warm(ctx context.Context, cities []string) error {
	start := time.Now()
	if w.logger != nil {
		w.logger.Info("warming plot cache", zap.Int("cities", len(cities)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(cities))
	for _, city := range cities {
		city := city
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.fetcher.GetCityPlot(ctx, city)
			if err != nil {
				errCh <- fmt.Errorf("warm %s: %w", city, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if w.logger != nil {
		w.logger.Info("plot cache warming complete",
			zap.Int("cities", len(cities)),
			zap.Int("errors", len(errs)),
			zap.Duration("duration", time.Since(start)))
	}
	if len(errs) > 0 {
		return fmt.Errorf("plot cache warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval
// until ctx is done. Run it slightly more often than the cache TTL so the
// fragments for warmed cities never expire between sweeps.
func (w *Warmer) WarmPeriodic(ctx context.Context, cities []string, interval time.Duration) error {
	if err := w.Warm(ctx, cities); err != nil && w.logger != nil {
		w.logger.Warn("initial plot cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, cities); err != nil && w.logger != nil {
				w.logger.Warn("periodic plot cache warm failed", zap.Error(err))
			}
		}
	}
}
