package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireSession rejects requests unless the agent holds a live access
// token obtained through login. A bearer token on the request must be the
// held token; it never replaces it.
func RequireSession(s *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Valid() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		if authz := c.GetHeader("Authorization"); authz != "" {
			token, ok := bearerToken(authz)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token())) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token does not match the signed-in session"})
				return
			}
		}
		c.Set("claims", s.Claims())
		c.Next()
	}
}

func bearerToken(authz string) (string, bool) {
	const prefix = "bearer "
	if len(authz) < len(prefix) || !strings.EqualFold(authz[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(authz[len(prefix):])
	return token, token != ""
}
