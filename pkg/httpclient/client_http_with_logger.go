package httpclient

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/IsaacDSC/gquery/pkg/ctxlogger"
)

const redacted = "[REDACTED]"

// sensitiveHeaders are never written to logs verbatim.
var sensitiveHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

// LoggingTransport logs every request/response pair through the logger carried by
// the request context.
type LoggingTransport struct {
	Transport http.RoundTripper
	LogBodies bool
}

// NewDefaultTransport returns the pooled base transport used by the API client.
func NewDefaultTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DisableKeepAlives:   false,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

func NewLoggingTransport(transport http.RoundTripper, logBodies bool) *LoggingTransport {
	if transport == nil {
		transport = NewDefaultTransport()
	}
	return &LoggingTransport{
		Transport: transport,
		LogBodies: logBodies,
	}
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	logger := ctxlogger.GetLogger(req.Context())

	var reqBody string
	if t.LogBodies && req.Body != nil && req.Body != http.NoBody {
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			logger.Error("Failed to read request body", "error", err)
		} else {
			reqBody = string(bodyBytes)
		}

		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	logger.Debug("HTTP client request started",
		"method", req.Method,
		"url", req.URL.String(),
		"headers", RedactHeaders(req.Header),
		"body", reqBody,
	)

	resp, err := t.Transport.RoundTrip(req)

	elapsed := time.Since(start)

	if err != nil {
		logger.Warn("HTTP client request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"error", err.Error(),
			"elapsed_time", elapsed,
		)
		return nil, err
	}

	var respBody string
	if t.LogBodies && resp.Body != nil {
		bodyBytes, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			logger.Error("Failed to read response body", "error", err)
		} else {
			respBody = string(bodyBytes)
		}

		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	logger.Debug("HTTP client request completed",
		"method", req.Method,
		"url", req.URL.String(),
		"status_code", resp.StatusCode,
		"response_headers", RedactHeaders(resp.Header),
		"response_body", respBody,
		"elapsed_time", elapsed,
	)

	return resp, nil
}

// RedactHeaders returns a copy of h with credential-bearing headers masked.
func RedactHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, name := range sensitiveHeaders {
		if out.Get(name) != "" {
			out.Set(name, redacted)
		}
	}
	return out
}

// NewClient builds an *http.Client whose transport logs through the request context.
// No client-level timeout is set: request lifetime is governed by the caller's context.
func NewClient(transport http.RoundTripper, logBodies bool) *http.Client {
	return &http.Client{
		Transport: NewLoggingTransport(transport, logBodies),
	}
}
