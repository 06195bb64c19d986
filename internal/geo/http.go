package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPLocator queries a device-local location daemon, e.g. a GPS bridge
// exposed by the mobile shell.
type HTTPLocator struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPLocator creates a locator against baseURL.
func NewHTTPLocator(baseURL string) *HTTPLocator {
	return &HTTPLocator{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: DefaultTimeout + 2*time.Second},
	}
}

// Locate performs GET /locate and maps daemon failures onto the geo errors.
func (l *HTTPLocator) Locate(ctx context.Context, opts Options) (Position, error) {
	q := url.Values{}
	q.Set("high_accuracy", strconv.FormatBool(opts.HighAccuracy))
	q.Set("maximum_age_ms", strconv.FormatInt(opts.MaximumAge.Milliseconds(), 10))
	if opts.Timeout > 0 {
		q.Set("timeout_ms", strconv.FormatInt(opts.Timeout.Milliseconds(), 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.BaseURL+"/locate?"+q.Encode(), nil)
	if err != nil {
		return Position{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.HTTP.Do(req)
	if err != nil {
		return Position{}, fmt.Errorf("location service request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return Position{}, ErrPermissionDenied
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return Position{}, ErrTimeout
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Position{}, fmt.Errorf("%w: location service error %s: %s", ErrPositionUnavailable, resp.Status, string(body))
	}

	var out struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Accuracy  float64 `json:"accuracy"`
		Timestamp int64   `json:"timestamp"` // unix milliseconds
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Position{}, fmt.Errorf("%w: failed to decode response: %v", ErrPositionUnavailable, err)
	}
	pos := Position{Latitude: out.Latitude, Longitude: out.Longitude, Accuracy: out.Accuracy}
	if out.Timestamp > 0 {
		pos.Timestamp = time.UnixMilli(out.Timestamp)
	}
	return pos, nil
}
