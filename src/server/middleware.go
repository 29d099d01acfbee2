package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	app "gallery/src/app"
)

// RequestLogger writes one log entry per request once it completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"latency":  time.Since(start).String(),
			"clientIP": c.ClientIP(),
			"bytes":    c.Writer.Size(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("http")
		case len(c.Errors) > 0:
			entry.WithField("errors", c.Errors.String()).Warn("http")
		default:
			entry.Info("http")
		}
	}
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, app.ErrAlbumNotFound), errors.Is(err, app.ErrImageNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrAlbumExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError is the single place handler errors turn into responses.
func abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"message": "error", "error": err.Error()})
}
