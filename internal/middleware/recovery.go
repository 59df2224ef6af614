package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery answers a panicking request in the shape of a health report so
// uptime monitors see a failed check instead of a dropped connection.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				id := RequestIDFrom(c)
				log.Error().
					Interface("panic", r).
					Str("path", c.Request.URL.Path).
					Str("request_id", id).
					Bytes("stack", debug.Stack()).
					Msg("http handler panicked")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"status":     "error",
					"request_id": id,
				})
			}
		}()
		c.Next()
	}
}
