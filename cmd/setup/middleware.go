package setup

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/IsaacDSC/gquery/pkg/ctxlogger"
	"github.com/IsaacDSC/gquery/pkg/logs"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggerMiddleware attaches a request-scoped logger to the context. Requests
// without an X-Request-ID get a fresh one, echoed back in the response.
func LoggerMiddleware(base *logs.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			w.Header().Set("Content-Type", "application/json")

			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			logger := base.With(
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"request_id", requestID,
			)

			ctx := ctxlogger.WithLogger(r.Context(), logger)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(ctx))

			logger.Debug("request served", "status", rec.status, "elapsed_time", time.Since(start))
		})
	}
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         86400,
	}
}

func CORSMiddleware(next http.Handler) http.Handler {
	return CORSMiddlewareWithConfig(DefaultCORSConfig())(next)
}

// CORSMiddlewareWithConfig answers preflight requests itself and decorates
// every other response with the allowed origin.
func CORSMiddlewareWithConfig(conf CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(conf.AllowedMethods, ", ")
	headers := strings.Join(conf.AllowedHeaders, ", ")
	exposed := strings.Join(conf.ExposedHeaders, ", ")
	wildcard := slices.Contains(conf.AllowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(conf.AllowedOrigins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			if exposed != "" {
				w.Header().Set("Access-Control-Expose-Headers", exposed)
			}
			if conf.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if conf.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(conf.MaxAge))
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
