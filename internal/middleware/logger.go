package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Load reports how many jobs wait in the queue and how many workers are busy.
type Load func() (queued, busy int)

// Logger writes one line per request with the job queue load at the time it
// finished. Successful uptime pings log at debug so they do not drown the
// bot's own events.
func Logger(log zerolog.Logger, load Load) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		case isPing(c.Request):
			event = log.Debug()
		default:
			event = log.Info()
		}

		if load != nil {
			queued, busy := load()
			event = event.Int("queue_depth", queued).Int("busy_workers", busy)
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("request_id", RequestIDFrom(c)).
			Msg("http request")
	}
}

func isPing(r *http.Request) bool {
	return r.URL.Path == "/" || r.URL.Path == "/health"
}
