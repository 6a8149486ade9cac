package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"trading-simulator/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeaderKey)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeaderKey, requestID)
		c.Set(RequestIDContextKey, requestID)
		c.Next()
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			slog.String("request_id", c.GetString(RequestIDContextKey)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-TOTP-Code")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// totpMiddleware rejects commands without a valid one-time code when the
// guard is enabled.
func totpMiddleware(g *auth.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Enabled() {
			c.Next()
			return
		}
		if err := g.Verify(c.GetHeader(TOTPHeaderKey)); err != nil {
			msg := "invalid one-time code"
			if errors.Is(err, auth.ErrMissingCode) {
				msg = "one-time code required"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      msg,
				"request_id": c.GetString(RequestIDContextKey),
			})
			return
		}
		c.Next()
	}
}
