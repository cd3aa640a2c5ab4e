package middleware

import (
	"strings"

	"roomrelay/pkg/errors"

	"github.com/gin-gonic/gin"
)

// StaticTokenMatcher reports whether a credential equals the static token.
type StaticTokenMatcher interface {
	MatchesStaticToken(credential string) bool
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// StaticTokenAuthMiddleware admits requests carrying the static shared token
// as a bearer credential.
func StaticTokenAuthMiddleware(matcher StaticTokenMatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok || !matcher.MatchesStaticToken(token) {
			_ = c.Error(errors.NewUnauthorizedError(nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
