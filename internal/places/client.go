// Package places is a client for the Google Places Nearby Search API.
package places

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/hamori-app/hamori/internal/metrics"
	"github.com/hamori-app/hamori/internal/models"
	"github.com/hamori-app/hamori/internal/resilience"
)

const (
	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"

	placeType = "restaurant"
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("places: api key not configured")

	// ErrZeroResults is returned when the provider found nothing.
	ErrZeroResults = errors.New("places: zero results")
)

// StatusError is a provider-reported status other than OK or ZERO_RESULTS
// (e.g. REQUEST_DENIED, OVER_QUERY_LIMIT).
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return "places: status " + e.Status
	}
	return fmt.Sprintf("places: status %s: %s", e.Status, e.Message)
}

// Config configures a Client.
type Config struct {
	APIKey     string
	BaseURL    string
	Language   string
	RatePerSec float64
	Burst      int
	Timeout    time.Duration
}

// Client searches nearby restaurants. Outbound calls are rate limited and
// go through a circuit breaker.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker[[]models.Candidate]
}

// New creates a Client. A nil httpClient uses a client with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		breaker: resilience.NewBreaker[[]models.Candidate]("places", time.Minute, func(err error) bool {
			return errors.Is(err, ErrZeroResults)
		}),
	}
}

type nearbyResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Results      []nearbyPlace `json:"results"`
}

type nearbyPlace struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Vicinity         string   `json:"vicinity"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal *int     `json:"user_ratings_total"`
	PriceLevel       *int     `json:"price_level"`
	OpeningHours     *struct {
		OpenNow *bool `json:"open_now"`
	} `json:"opening_hours"`
	Photos []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos"`
}

func (p nearbyPlace) candidate() models.Candidate {
	c := models.Candidate{
		ID:          p.PlaceID,
		Name:        p.Name,
		Address:     p.Vicinity,
		Rating:      p.Rating,
		ReviewCount: p.UserRatingsTotal,
		PriceLevel:  p.PriceLevel,
	}
	if p.OpeningHours != nil {
		c.IsOpenNow = p.OpeningHours.OpenNow
	}
	if len(p.Photos) > 0 {
		c.PhotoRef = p.Photos[0].PhotoReference
	}
	return c
}

// SearchNearby returns restaurants within radius meters of loc matching keyword.
func (c *Client) SearchNearby(ctx context.Context, loc models.Location, keyword string, radius int) ([]models.Candidate, error) {
	if c.cfg.APIKey == "" {
		metrics.ExternalCalls.WithLabelValues("places", "nearby", "skipped").Inc()
		return nil, ErrMissingAPIKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("places rate limiter: %w", err)
	}

	start := time.Now()
	candidates, err := c.breaker.Execute(func() ([]models.Candidate, error) {
		return c.nearby(ctx, loc, keyword, radius)
	})

	outcome := "ok"
	switch {
	case resilience.IsRejected(err):
		outcome = "rejected"
	case errors.Is(err, ErrZeroResults):
		outcome = "zero_results"
	case err != nil:
		outcome = "error"
	}
	metrics.ExternalCalls.WithLabelValues("places", "nearby", outcome).Inc()

	if err != nil {
		slog.Warn("Places search failed", "keyword", keyword, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	slog.Info("Places search completed", "keyword", keyword, "results", len(candidates), "duration_ms", time.Since(start).Milliseconds())
	return candidates, nil
}

func (c *Client) nearby(ctx context.Context, loc models.Location, keyword string, radius int) ([]models.Candidate, error) {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", loc.Latitude, loc.Longitude))
	params.Set("radius", strconv.Itoa(radius))
	params.Set("type", placeType)
	params.Set("keyword", keyword)
	if c.cfg.Language != "" {
		params.Set("language", c.cfg.Language)
	}
	params.Set("key", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/nearbysearch/json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: strconv.Itoa(resp.StatusCode), Message: string(body)}
	}

	var out nearbyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	switch out.Status {
	case statusOK:
	case statusZeroResults:
		return nil, ErrZeroResults
	default:
		return nil, &StatusError{Status: out.Status, Message: out.ErrorMessage}
	}

	candidates := make([]models.Candidate, len(out.Results))
	for i, p := range out.Results {
		candidates[i] = p.candidate()
	}
	return candidates, nil
}

// PhotoURL returns the photo endpoint URL for a candidate's photo reference,
// or "" when the candidate has no photo.
func (c *Client) PhotoURL(photoRef string, maxWidth int) string {
	if photoRef == "" {
		return ""
	}
	params := url.Values{}
	params.Set("maxwidth", strconv.Itoa(maxWidth))
	params.Set("photoreference", photoRef)
	params.Set("key", c.cfg.APIKey)
	return c.cfg.BaseURL + "/photo?" + params.Encode()
}

// DirectionsURL returns a Google Maps search URL for a venue.
func DirectionsURL(name, address string) string {
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(name+" "+address)
}
