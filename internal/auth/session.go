package auth

import (
	"sync"
	"time"
)

// Session holds the signed-in user's access token and employee identifier
// for the life of the agent process.
type Session struct {
	mu         sync.RWMutex
	token      string
	claims     Claims
	employeeID string
	now        func() time.Time
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{now: time.Now}
}

// SetToken stores token after checking it decodes and has not expired.
func (s *Session) SetToken(token string) error {
	claims, err := Inspect(token, s.now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token {
		s.employeeID = ""
	}
	s.token = token
	s.claims = claims
	return nil
}

// SetEmployeeID records the employee identifier resolved from the backend.
func (s *Session) SetEmployeeID(id string) {
	s.mu.Lock()
	s.employeeID = id
	s.mu.Unlock()
}

// Token returns the access token, or "" when signed out. Session satisfies
// backend.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// EmployeeID returns the resolved employee identifier, falling back to the
// identity in the token claims.
func (s *Session) EmployeeID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.employeeID != "" {
		return s.employeeID
	}
	if s.token == "" {
		return ""
	}
	return s.claims.Identity()
}

// Claims returns the decoded claims of the current token.
func (s *Session) Claims() Claims {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims
}

// Valid reports whether a token is held and has not expired.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return false
	}
	exp := s.claims.ExpiresAt
	return exp == nil || s.now().Before(exp.Time)
}

// Clear signs the session out.
func (s *Session) Clear() {
	s.mu.Lock()
	s.token = ""
	s.claims = Claims{}
	s.employeeID = ""
	s.mu.Unlock()
}
