package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ReverseGeocoder resolves a position to a display address using a
// Nominatim-compatible /reverse endpoint.
type ReverseGeocoder struct {
	BaseURL   string
	UserAgent string
	HTTP      *http.Client
	Logger    *slog.Logger
}

// NewReverseGeocoder creates a geocoder. An empty baseURL disables lookups.
func NewReverseGeocoder(baseURL, userAgent string, logger *slog.Logger) *ReverseGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReverseGeocoder{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		HTTP:      &http.Client{Timeout: 5 * time.Second},
		Logger:    logger,
	}
}

// Reverse looks up the display name for pos.
func (g *ReverseGeocoder) Reverse(ctx context.Context, pos Position) (string, error) {
	if g.BaseURL == "" {
		return "", errors.New("geocoder not configured")
	}
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(pos.Latitude, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(pos.Longitude, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	if g.UserAgent != "" {
		req.Header.Set("User-Agent", g.UserAgent)
	}

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocoder request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("geocoder error %s: %s", resp.Status, string(body))
	}

	var out struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if strings.TrimSpace(out.DisplayName) == "" {
		return "", errors.New("geocoder returned no address")
	}
	return out.DisplayName, nil
}

// Label returns the reverse-geocoded address, or formatted coordinates when
// the lookup is disabled or fails.
func (g *ReverseGeocoder) Label(ctx context.Context, pos Position) string {
	if g == nil || g.BaseURL == "" {
		return FormatCoordinates(pos)
	}
	name, err := g.Reverse(ctx, pos)
	if err != nil {
		g.Logger.Warn("reverse geocoding failed, using coordinates", "error", err)
		return FormatCoordinates(pos)
	}
	return name
}
