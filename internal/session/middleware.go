package session

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CookieName is the cookie that carries the session token.
const CookieName = "leafcheck_session"

type contextKey string

const sessionIDKey contextKey = "sessionID"

// GetID retrieves the session id from context.
func GetID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(sessionIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// Middleware resolves the session cookie, issuing a fresh session when the
// cookie is missing or fails verification. Valid cookies are re-issued
// once they pass half of their lifetime, so only idle sessions expire.
func Middleware(tokens *Tokens, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("session")

	return func(c *gin.Context) {
		var id, token string
		if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" {
			if parsed, renewed, err := tokens.Refresh(cookie); err == nil {
				id, token = parsed, renewed
			} else {
				logger.Debug("discarding session cookie", zap.Error(err))
			}
		}

		if id == "" {
			newID, newToken, err := tokens.Issue()
			if err != nil {
				logger.Error("failed to issue session token", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
				return
			}
			id, token = newID, newToken
		}

		if token != "" {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(CookieName, token, int(tokens.maxAge.Seconds()), "/", "", false, true)
		}

		ctx := context.WithValue(c.Request.Context(), sessionIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(sessionIDKey), id)

		c.Next()
	}
}
