package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
)

var (
	// ErrNoAccessToken is returned when login succeeds without a token.
	ErrNoAccessToken = errors.New("backend: login returned no access token")
	// ErrNoEmployee is returned when the employee lookup has no data.
	ErrNoEmployee = errors.New("backend: no employee record")
)

// LoginResult is the body of a successful login.
type LoginResult struct {
	AccessToken string          `json:"accessToken"`
	User        json.RawMessage `json:"user,omitempty"`
}

// Employee is the signed-in user's employee record.
type Employee struct {
	ID         FlexibleID      `json:"id"`
	EmployeeID FlexibleID      `json:"employeeId"`
	FirstName  string          `json:"firstName,omitempty"`
	LastName   string          `json:"lastName,omitempty"`
	Email      string          `json:"email,omitempty"`
	Phone      string          `json:"phone,omitempty"`
	Role       string          `json:"role,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// Identifier returns the id attendance records are filed under.
func (e Employee) Identifier() string {
	if e.EmployeeID != "" {
		return string(e.EmployeeID)
	}
	return string(e.ID)
}

// FlexibleID decodes ids sent as either JSON strings or numbers.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	*f = FlexibleID(rawID(b))
	return nil
}

// Login exchanges credentials for an access token. Credentials travel as
// query parameters, which is what the backend expects.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("password", password)
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/login?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Del("Authorization")

	var out LoginResult
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	return &out, nil
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/logout", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Me returns the current user as sent by the backend.
func (c *Client) Me(ctx context.Context) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EmployeeData fetches the employee record of the signed-in user.
func (c *Client) EmployeeData(ctx context.Context) (*Employee, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/employees/getemployeedata", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || string(out.Data) == "null" {
		return nil, ErrNoEmployee
	}
	var emp Employee
	if err := json.Unmarshal(out.Data, &emp); err != nil {
		return nil, err
	}
	emp.Raw = out.Data
	return &emp, nil
}
