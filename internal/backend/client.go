// Package backend talks to the attendance REST service: login, employee
// lookup and multipart attendance submission.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultAttendancePath is the submission endpoint relative to BaseURL.
const DefaultAttendancePath = "/attendance"

var (
	// ErrSubmissionFailed wraps every failed attendance submission.
	ErrSubmissionFailed = errors.New("backend: attendance submission failed")
	// ErrInvalidSubmission is returned before any request is made.
	ErrInvalidSubmission = errors.New("backend: invalid submission")
	// ErrUnauthorized is returned for 401 responses.
	ErrUnauthorized = errors.New("backend: unauthorized")
)

// StatusError carries a non-2xx response.
type StatusError struct {
	Code    int
	Message string
	Body    string
	// submission marks errors from the attendance endpoint.
	submission bool
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Code, e.Body)
}

// Unwrap lets errors.Is match ErrSubmissionFailed and ErrUnauthorized.
func (e *StatusError) Unwrap() []error {
	var errs []error
	if e.submission {
		errs = append(errs, ErrSubmissionFailed)
	}
	if e.Code == http.StatusUnauthorized {
		errs = append(errs, ErrUnauthorized)
	}
	return errs
}

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() string
}

// Client calls the attendance backend.
type Client struct {
	BaseURL        string
	AttendancePath string
	HTTP           *http.Client
	Tokens         TokenSource
}

// New creates a client with configurable timeout. Requests are traced with
// otelhttp.
func New(baseURL, attendancePath string, timeout time.Duration, tokens TokenSource) *Client {
	if attendancePath == "" {
		attendancePath = DefaultAttendancePath
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		AttendancePath: attendancePath,
		Tokens:         tokens,
		HTTP: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.Tokens != nil {
		if tok := c.Tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, nil
}

// send performs req and returns the body of a 2xx response.
func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, body)
	}
	return body, nil
}

// do sends req and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) do(req *http.Request, out any) error {
	body, err := c.send(req)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func newStatusError(code int, body []byte) *StatusError {
	se := &StatusError{Code: code, Body: strings.TrimSpace(string(body))}
	var msg struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &msg) == nil {
		se.Message = msg.Message
		if se.Message == "" {
			se.Message = msg.Error
		}
	}
	return se
}
