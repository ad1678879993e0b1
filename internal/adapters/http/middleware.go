package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const sessionTokenKey = "token"

// RequestLogger writes one zerolog line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("module", "adapters.http").
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("remote_addr", c.ClientIP()).
			Msg("request completed")
	}
}

// Metrics records request counts and latency per route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// credential picks the bearer token: Authorization header, then the token
// query parameter, then the cookie session.
func credential(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	if tok, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok {
		return tok
	}
	return ""
}

// RequireIdentity verifies the caller and mirrors the user row.
func (h *Handlers) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.verifier.Verify(credential(c))
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.http").Str("path", c.Request.URL.Path).Msg("authentication failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication error"})
			return
		}
		if err := h.data.UpsertUser(c.Request.Context(), *user); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("user", string(user.ID)).Msg("mirror user failed")
		}
		c.Set(signal.UserKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	u, _ := c.MustGet(signal.UserKey).(*domain.User)
	return u
}

// respondError maps domain sentinels to status codes. Anything else is a 500
// without details.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthentication):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.Request.URL.Path).Msg("request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "server error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
