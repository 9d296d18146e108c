package passport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"resty.dev/v3"

	"battery-passport/internal/domain"
)

// DefaultBaseURL is the backend address used when none is configured.
const DefaultBaseURL = "http://localhost:5001"

var (
	// ErrBatteryIDRequired is returned before any request when the id is blank.
	ErrBatteryIDRequired = errors.New("Battery ID is required")
	// ErrMarketIDRequired is returned before any request when the market id is blank.
	ErrMarketIDRequired = errors.New("Market ID is required")
)

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Error returns the backend's message, suitable for display.
func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Client talks to the battery passport backend.
type Client struct {
	http    *resty.Client
	baseURL string
	logger  zerolog.Logger
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	base := NormalizeBaseURL(baseURL)
	return &Client{
		http: resty.New().
			SetBaseURL(base).
			SetHeader("Accept", "application/json").
			SetTimeout(30 * time.Second),
		baseURL: base,
		logger:  logger.With().Str("component", "passport").Logger(),
	}
}

// NormalizeBaseURL trims whitespace and one trailing slash, falling back to the default.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return DefaultBaseURL
	}
	return strings.TrimSuffix(base, "/")
}

// BaseURL returns the backend address requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// FetchStatus loads the owner-facing status of a battery.
func (c *Client) FetchStatus(ctx context.Context, batteryID string) (domain.BatteryStatus, error) {
	id := strings.TrimSpace(batteryID)
	if id == "" {
		return domain.BatteryStatus{}, ErrBatteryIDRequired
	}

	var out domain.BatteryStatus
	err := c.do(ctx, http.MethodGet, "/proprietaire/status/{id}", id, nil, &out)
	return out, err
}

// FetchDetails loads the garage view of a battery.
func (c *Client) FetchDetails(ctx context.Context, batteryID string) (domain.BatteryDetails, error) {
	id := strings.TrimSpace(batteryID)
	if id == "" {
		return domain.BatteryDetails{}, ErrBatteryIDRequired
	}

	var out domain.BatteryDetails
	err := c.do(ctx, http.MethodGet, "/garagist/battery/{id}", id, nil, &out)
	return out, err
}

// CreateBattery registers a new battery with its first measurements.
func (c *Client) CreateBattery(ctx context.Context, payload domain.CreateBatteryPayload) (domain.CreateBatteryResponse, error) {
	payload.BatteryID = strings.TrimSpace(payload.BatteryID)
	if payload.BatteryID == "" {
		return domain.CreateBatteryResponse{}, ErrBatteryIDRequired
	}

	var out domain.CreateBatteryResponse
	err := c.do(ctx, http.MethodPost, "/garagist/battery", "", payload, &out)
	return out, err
}

// UpdateMeasurements corrects stored measurements of a battery.
func (c *Client) UpdateMeasurements(ctx context.Context, batteryID string, update domain.MeasurementUpdate) error {
	id := strings.TrimSpace(batteryID)
	if id == "" {
		return ErrBatteryIDRequired
	}
	if update.Empty() {
		return errors.New("no measurements to update")
	}

	return c.do(ctx, http.MethodPatch, "/garagist/battery/{id}", id, update, nil)
}

// Evaluate asks the recycler model to score dispositions for a battery.
func (c *Client) Evaluate(ctx context.Context, req domain.EvaluationRequest) (domain.Evaluation, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.MarketID = strings.TrimSpace(req.MarketID)
	if req.ID == "" {
		return nil, ErrBatteryIDRequired
	}
	if req.MarketID == "" {
		return nil, ErrMarketIDRequired
	}

	out := domain.Evaluation{}
	err := c.do(ctx, http.MethodPost, "/recycler/evaluate", "", req, &out)
	return out, err
}

// do sends one JSON request and decodes a non-empty success body into out.
func (c *Client) do(ctx context.Context, method, path, id string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if id != "" {
		req.SetPathParam("id", id)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		c.logger.Error().Err(err).Str("method", method).Str("path", path).Msg("request failed (network or client error)")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	raw := res.String()
	if res.IsError() || res.StatusCode() >= 300 {
		apiErr := &APIError{Status: res.StatusCode(), Message: errorMessage(raw, res.StatusCode())}
		c.logger.Warn().Int("status", apiErr.Status).Str("method", method).Str("path", path).Str("response", raw).Msg("request failed (HTTP error)")
		return apiErr
	}

	if out == nil || strings.TrimSpace(raw) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage prefers the backend's "error" field over a generic status text.
func errorMessage(body string, status int) string {
	if gjson.Valid(body) {
		if field := gjson.Get(body, "error"); field.Exists() && field.Type != gjson.Null {
			if msg := field.String(); msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("API error (%d)", status)
}
