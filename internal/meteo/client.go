package meteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/tropicnights/internal/models"
	"github.com/kjstillabower/tropicnights/internal/observability"
)

// ErrDataSourceUnavailable wraps every transport failure, timeout, and non-2xx
// response from the weather source. Callers branch on this error rather than
// on raw HTTP or net errors.
var ErrDataSourceUnavailable = errors.New("weather data source unavailable")

// Source fetches hourly temperature observations for a geographic point over
// a date range.
type Source interface {
	FetchHourly(ctx context.Context, lat, lon float64, start, end time.Time) ([]models.HourlyObservation, error)
}

// Client is a Source backed by the Open-Meteo ERA5 archive API. The archive
// endpoint needs no API key but is rate limited, hence the retry budget and
// circuit breaker.
type Client struct {
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *gobreaker.CircuitBreaker
}

// NewClient creates an archive API client with default retry settings.
func NewClient(apiURL string, timeout time.Duration) *Client {
	return NewClientWithRetry(apiURL, timeout, 3, 200*time.Millisecond, 3*time.Second)
}

// NewClientWithRetry creates an archive API client with explicit retry settings.
func NewClientWithRetry(apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) *Client {
	return &Client{
		apiURL:         apiURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "open-meteo-archive",
			MaxRequests: 3,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
	}
}

// archiveResponse mirrors the Open-Meteo archive payload. Hours the archive
// has no reading for carry null temperatures.
type archiveResponse struct {
	Hourly struct {
		Time          []string   `json:"time"`
		Temperature2M []*float64 `json:"temperature_2m"`
	} `json:"hourly"`
}

// archive timestamps look like "2021-07-14T00:00" with no zone suffix; the
// request pins timezone=UTC so they are parsed as UTC.
const archiveTimeLayout = "2006-01-02T15:04"

// FetchHourly retrieves hourly temperature observations for the point over
// [start, end]. Hours without a reading are skipped, so a fully unobserved day
// simply yields no observations for that date. All failures map to
// ErrDataSourceUnavailable.
func (c *Client) FetchHourly(ctx context.Context, lat, lon float64, start, end time.Time) ([]models.HourlyObservation, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrDataSourceUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := c.callAPI(ctx, lat, lon, start, end)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// An open breaker will fail every attempt; stop early.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrDataSourceUnavailable, lastErr)
}

// callAPI performs one request through the circuit breaker and maps the
// response to observations.
func (c *Client) callAPI(ctx context.Context, lat, lon float64, start, end time.Time) ([]models.HourlyObservation, error) {
	startTime := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, lat, lon, start, end)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
		}

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read response body: %w", readErr)
		}
		var apiResp archiveResponse
		if jsonErr := json.Unmarshal(body, &apiResp); jsonErr != nil {
			return nil, fmt.Errorf("parse response: %w", jsonErr)
		}
		return mapResponse(apiResp)
	})

	duration := time.Since(startTime).Seconds()
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)
		return nil, err
	}
	observability.WeatherAPICallsTotal.WithLabelValues("2xx").Inc()
	observability.WeatherAPIDuration.WithLabelValues("2xx").Observe(duration)

	return result.([]models.HourlyObservation), nil
}

func (c *Client) buildRequest(ctx context.Context, lat, lon float64, start, end time.Time) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	params.Set("start_date", start.UTC().Format("2006-01-02"))
	params.Set("end_date", end.UTC().Format("2006-01-02"))
	params.Set("hourly", "temperature_2m")
	params.Set("timezone", "UTC")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

// mapResponse pairs the parallel time/temperature arrays into observations,
// dropping null temperatures and unparseable timestamps.
func mapResponse(apiResp archiveResponse) ([]models.HourlyObservation, error) {
	times := apiResp.Hourly.Time
	temps := apiResp.Hourly.Temperature2M
	if len(times) != len(temps) {
		return nil, fmt.Errorf("malformed response: %d timestamps, %d temperatures", len(times), len(temps))
	}

	observations := make([]models.HourlyObservation, 0, len(times))
	for i, raw := range times {
		if temps[i] == nil {
			continue
		}
		ts, err := time.ParseInLocation(archiveTimeLayout, raw, time.UTC)
		if err != nil {
			continue
		}
		observations = append(observations, models.HourlyObservation{
			Timestamp:   ts,
			Temperature: *temps[i],
		})
	}
	return observations, nil
}
