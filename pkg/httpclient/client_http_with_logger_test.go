package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/IsaacDSC/gquery/pkg/ctxlogger"
	"github.com/IsaacDSC/gquery/pkg/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("X-Request-ID", "abc")

	out := RedactHeaders(h)

	assert.Equal(t, redacted, out.Get("Authorization"))
	assert.Equal(t, "abc", out.Get("X-Request-ID"))
	assert.Equal(t, "Bearer secret", h.Get("Authorization"), "original header must be untouched")
}

func TestLoggingTransport_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"name":"ada"}`, string(b))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	}))
	defer server.Close()

	var out bytes.Buffer
	logger := logs.New(logs.WithOutput(&out), logs.WithLevel(logs.LevelDebug))
	ctx := ctxlogger.WithLogger(context.Background(), logger)

	client := NewClient(nil, true)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL, strings.NewReader(`{"name":"ada"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(body), "body must still be readable after logging")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Contains(t, out.String(), "HTTP client request completed")
	assert.NotContains(t, out.String(), "Bearer secret")
}
