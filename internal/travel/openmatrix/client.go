package openmatrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/fieldroute/fieldroute/internal/geo"
	"github.com/fieldroute/fieldroute/internal/travel"
)

const (
	// ProviderName identifies this estimator.
	ProviderName = "openmatrix"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultProfile is the routing profile used for field-crew vehicles.
	DefaultProfile = "driving-car"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 10 * time.Second
)

// ClientConfig holds configuration for the matrix client.
type ClientConfig struct {
	// APIKey is the provider API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to the ORS API).
	BaseURL string

	// Profile is the routing profile (optional, defaults to driving-car).
	Profile string

	// Timeout is the per-request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts on transient
	// failures. Default: 3.
	MaxRetries uint64

	// RequestsPerSecond limits outbound calls to respect provider quotas.
	// Default: 2 rps with a burst of 4.
	RequestsPerSecond float64

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client calls an ORS-compatible matrix endpoint and implements
// travel.Estimator. All calls pass through a shared circuit breaker; 5xx
// responses and network timeouts are retried with exponential backoff.
// Other network errors, 4xx responses and decode failures are not retried.
type Client struct {
	apiKey     string
	baseURL    string
	profile    string
	maxRetries uint64
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*matrixResponse]
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient creates a new matrix client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	profile := cfg.Profile
	if profile == "" {
		profile = DefaultProfile
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}

	breaker := gobreaker.NewCircuitBreaker[*matrixResponse](gobreaker.Settings{
		Name:    ProviderName,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		profile:    profile,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		limiter:    rate.NewLimiter(rate.Limit(rps), 4),
		logger:     cfg.Logger,
	}
}

// Name implements travel.Estimator.
func (c *Client) Name() string { return ProviderName }

// Minutes implements travel.Estimator for a single pair. Callers that need
// many pairs should wrap the client in a travel.Cache or use Durations.
func (c *Client) Minutes(ctx context.Context, from, to geo.Point) (int, error) {
	if !from.Valid() || !to.Valid() {
		return 0, travel.ErrInvalidCoordinates
	}
	if from == to {
		return 0, nil
	}

	m, err := c.Durations(ctx, []geo.Point{from, to})
	if err != nil {
		return 0, err
	}
	return m[0][1], nil
}

// Durations returns the full pairwise travel-time matrix in minutes for the
// given points.
func (c *Client) Durations(ctx context.Context, points []geo.Point) (travel.Matrix, error) {
	for _, p := range points {
		if !p.Valid() {
			return nil, travel.ErrInvalidCoordinates
		}
	}

	body := matrixRequest{
		Locations: make([][]float64, len(points)),
		Metrics:   []string{"duration"},
	}
	for i, p := range points {
		body.Locations[i] = []float64{p.Lon, p.Lat}
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	if len(resp.Durations) != len(points) {
		return nil, fmt.Errorf("matrix provider returned %d rows for %d points", len(resp.Durations), len(points))
	}

	m := make(travel.Matrix, len(points))
	for i, row := range resp.Durations {
		if len(row) != len(points) {
			return nil, fmt.Errorf("matrix provider row %d has %d columns for %d points", i, len(row), len(points))
		}
		m[i] = make([]int, len(points))
		for j, seconds := range row {
			m[i][j] = int(math.Round(seconds / 60))
		}
	}
	return m, nil
}

func (c *Client) post(ctx context.Context, body matrixRequest) (*matrixResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal matrix request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/matrix/%s", c.baseURL, c.profile)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0

	var result *matrixResponse
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.breaker.Execute(func() (*matrixResponse, error) {
			return c.doOnce(ctx, url, payload)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(travel.ErrEstimatorUnavailable)
			}
			var serverErr *ServerError
			if errors.As(err, &serverErr) {
				return err // retryable
			}
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return err // retryable
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			// 4xx and decode errors are not retryable.
			return backoff.Permanent(err)
		}
		result = resp
		return nil
	}

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
	if err != nil {
		c.logger.Error().Err(err).Str("url", url).Msg("matrix request failed")
		return nil, err
	}
	return result, nil
}

func (c *Client) doOnce(ctx context.Context, url string, payload []byte) (*matrixResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build matrix request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read matrix response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, &ServerError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("matrix provider status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("matrix provider status %d", resp.StatusCode)
	}

	var out matrixResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode matrix response: %w", err)
	}
	return &out, nil
}
