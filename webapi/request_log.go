package webapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

var (
	statusOK       = color.New(color.FgGreen)
	statusRedirect = color.New(color.FgCyan)
	statusClient   = color.New(color.FgYellow)
	statusServer   = color.New(color.FgRed, color.Bold)
	dim            = color.New(color.FgHiBlack)
)

func statusColor(status int) *color.Color {
	switch {
	case status >= 500:
		return statusServer
	case status >= 400:
		return statusClient
	case status >= 300:
		return statusRedirect
	default:
		return statusOK
	}
}

// RequestLogConfig configures the request log middleware.
type RequestLogConfig struct {
	// Console receives one colored line per request; nil disables it
	Console io.Writer
	// SkipPaths are not logged (e.g. /health polled by a load balancer)
	SkipPaths []string
}

// RequestLogger logs every request to the structured logger at debug level
// (warn for 5xx) and, when a console is set, prints a colored summary line:
//
//	15:04:05 POST /api/telemetry 202 1ms [req-id]
func RequestLogger(cfg RequestLogConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			took := time.Since(start)
			reqID := middleware.GetReqID(r.Context())

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", took),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", reqID),
			}
			if status >= 500 {
				logger.Warn("HTTP request failed", fields...)
			} else {
				logger.Debug("HTTP request", fields...)
			}

			if cfg.Console != nil {
				fmt.Fprintf(cfg.Console, "%s %s %s %s %s %s\n",
					dim.Sprint(start.Format("15:04:05")),
					r.Method,
					r.URL.Path,
					statusColor(status).Sprint(status),
					took.Round(time.Millisecond),
					dim.Sprintf("[%s]", reqID))
			}
		})
	}
}
