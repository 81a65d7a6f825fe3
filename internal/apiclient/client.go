package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/IsaacDSC/gquery/internal/apierr"
	"github.com/IsaacDSC/gquery/internal/authn"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// Requester is what the fetch and mutation controllers need from the API client.
type Requester interface {
	Do(ctx context.Context, req Request) ([]byte, error)
}

type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
	// SkipAuth suppresses the bearer header for this request.
	SkipAuth bool
}

type Client struct {
	baseURL string
	prefix  string
	http    *http.Client
}

func New(baseURL, prefix string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  "/" + strings.Trim(prefix, "/"),
		http:    hc,
	}
}

// URL joins base URL, API prefix and path, and appends q when non-empty.
func (c *Client) URL(path string, q url.Values) string {
	prefix := c.prefix
	if prefix == "/" {
		prefix = ""
	}
	u := c.baseURL + prefix + "/" + strings.TrimLeft(path, "/")
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// Do issues req and returns the raw JSON body of a 2xx response. Non-2xx
// responses become *apierr.Error and invalid JSON bodies ErrMalformedResponse.
func (c *Client) Do(ctx context.Context, r Request) ([]byte, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil && method != http.MethodDelete {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	if r.SkipAuth {
		ctx = authn.WithoutCredentials(ctx)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(r.Path, r.Query), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apierr.FromResponse(resp.Status, resp.StatusCode, data)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("null"), nil
	}
	if !json.Valid(data) {
		return nil, apierr.ErrMalformedResponse
	}

	return data, nil
}
