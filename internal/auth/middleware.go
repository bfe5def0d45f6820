package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsKey = "auth_claims"

// RequireAuth rejects requests without a valid bearer token.
func (s *Service) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := s.authenticate(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// OptionalAuth records the caller when a valid token is present.
func (s *Service) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := s.authenticate(c); ok {
			c.Set(claimsKey, claims)
		}
		c.Next()
	}
}

func (s *Service) authenticate(c *gin.Context) (*Claims, bool) {
	header := c.GetHeader("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		return nil, false
	}
	claims, err := s.ParseToken(strings.TrimSpace(raw))
	if err != nil {
		return nil, false
	}
	return claims, true
}

// CurrentClaims returns the authenticated caller, if any.
func CurrentClaims(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

// Subject returns the authenticated subject or "".
func Subject(c *gin.Context) string {
	if claims, ok := CurrentClaims(c); ok {
		return claims.Subject
	}
	return ""
}
