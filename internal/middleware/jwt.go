package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

// tokenSource selects where a middleware looks for the bearer token.
type tokenSource int

const (
	// fromHeaderOrQuery reads Authorization first, then ?token= for EventSource clients.
	fromHeaderOrQuery tokenSource = iota
	// fromQuery reads only ?token=, used for WebSocket upgrades.
	fromQuery
)

// RequireStudentJWT admits student tokens from the Authorization header.
func RequireStudentJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireToken(authService, service.TokenTypeStudent, fromHeaderOrQuery)
}

// RequireAdminJWT admits admin tokens from the Authorization header.
func RequireAdminJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireToken(authService, service.TokenTypeAdmin, fromHeaderOrQuery)
}

// RequireStudentWSAuth admits student tokens passed as ?token= on the attempt stream upgrade.
func RequireStudentWSAuth(authService *service.AuthService) gin.HandlerFunc {
	return requireToken(authService, service.TokenTypeStudent, fromQuery)
}

func requireToken(authService *service.AuthService, want service.TokenType, src tokenSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractToken(c, src)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			// A student whose token lapsed mid-exam must re-login; the attempt keeps running.
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			return
		case err != nil:
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if claims.TokenType != want {
			code := response.ErrStudentAccessOnly
			if want == service.TokenTypeAdmin {
				code = response.ErrAdminAccessOnly
			}
			response.AbortFail(c, http.StatusForbidden, code)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func extractToken(c *gin.Context, src tokenSource) string {
	if src == fromHeaderOrQuery {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if ok && strings.EqualFold(scheme, "bearer") && token != "" {
			return strings.TrimSpace(token)
		}
	}
	return c.Query("token")
}
