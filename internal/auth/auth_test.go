package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestInspect(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	live := signToken(t, Claims{
		EmployeeID:       "EMP-7",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "42", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	})
	expired := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "42", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))},
	})

	tests := []struct {
		name    string
		token   string
		wantErr error
		wantID  string
	}{
		{name: "live token", token: live, wantID: "EMP-7"},
		{name: "expired token", token: expired, wantErr: ErrTokenExpired},
		{name: "empty", token: "  ", wantErr: ErrNoToken},
		{name: "garbage", token: "not-a-jwt", wantErr: ErrMalformedToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := Inspect(tt.token, now)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Inspect() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantID != "" && claims.Identity() != tt.wantID {
				t.Errorf("Identity() = %q, want %q", claims.Identity(), tt.wantID)
			}
		})
	}
}

func TestClaimsIdentityFallback(t *testing.T) {
	c := Claims{Email: "a@b.c"}
	if c.Identity() != "a@b.c" {
		t.Errorf("Identity() = %q", c.Identity())
	}
	c.Subject = "sub-1"
	if c.Identity() != "sub-1" {
		t.Errorf("Identity() = %q", c.Identity())
	}
}

func TestSession(t *testing.T) {
	s := NewSession()
	if s.Valid() || s.EmployeeID() != "" {
		t.Fatal("new session should be signed out")
	}
	tok := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "42", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}})
	if err := s.SetToken(tok); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	if !s.Valid() || s.Token() != tok {
		t.Fatal("session should hold the token")
	}
	if s.EmployeeID() != "42" {
		t.Errorf("EmployeeID() = %q, want claim subject", s.EmployeeID())
	}
	s.SetEmployeeID("EMP-42")
	if s.EmployeeID() != "EMP-42" {
		t.Errorf("EmployeeID() = %q, want resolved id", s.EmployeeID())
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if s.Valid() {
		t.Error("session should lapse with its token")
	}

	s.Clear()
	if s.Token() != "" || s.EmployeeID() != "" {
		t.Error("Clear() should drop token and employee id")
	}
}

func TestRequireSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewSession()
	r := gin.New()
	r.GET("/p", RequireSession(s), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(authz string) int {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	held := signToken(t, Claims{EmployeeID: "EMP-1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}})
	other := signToken(t, Claims{EmployeeID: "EMP-2", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}})
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		EmployeeID:       "ATTACKER",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign unsigned token: %v", err)
	}

	if code := do(""); code != http.StatusUnauthorized {
		t.Errorf("signed out: status = %d, want 401", code)
	}
	if code := do("Bearer " + held); code != http.StatusUnauthorized {
		t.Errorf("bearer while signed out: status = %d, want 401", code)
	}
	if s.Valid() {
		t.Fatal("a request token must not sign the agent in")
	}

	if err := s.SetToken(held); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	tests := []struct {
		name  string
		authz string
		want  int
	}{
		{name: "held token implied", authz: "", want: http.StatusNoContent},
		{name: "held token presented", authz: "Bearer " + held, want: http.StatusNoContent},
		{name: "lower-case scheme", authz: "bearer " + held, want: http.StatusNoContent},
		{name: "another signed token", authz: "Bearer " + other, want: http.StatusUnauthorized},
		{name: "unsigned token", authz: "Bearer " + unsigned, want: http.StatusUnauthorized},
		{name: "junk", authz: "Bearer junk", want: http.StatusUnauthorized},
		{name: "basic auth", authz: "Basic dXNlcjpwdw==", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := do(tt.authz); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
			if s.Token() != held || s.EmployeeID() != "EMP-1" {
				t.Errorf("held session changed: employee %q", s.EmployeeID())
			}
		})
	}
}
