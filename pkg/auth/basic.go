// Package auth guards the gateway's admin routes with HTTP basic auth.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

var (
	ErrMissingCredentials = errors.New("missing basic credentials")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

type BasicAuth struct {
	users map[string]string
	realm string
}

// NewBasicAuth accepts username -> password pairs. Empty passwords never
// authenticate.
func NewBasicAuth(users map[string]string) *BasicAuth {
	cp := make(map[string]string, len(users))
	for u, p := range users {
		if p != "" {
			cp[u] = p
		}
	}
	return &BasicAuth{users: cp, realm: "gquery admin"}
}

// Authenticate returns the username carried by r's basic credentials.
func (ba *BasicAuth) Authenticate(r *http.Request) (string, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return "", ErrMissingCredentials
	}

	stored, exists := ba.users[username]
	// unknown users still pay for a comparison
	if !exists {
		stored = password + "x"
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(stored)) != 1 {
		return "", ErrInvalidCredentials
	}

	return username, nil
}

// Middleware rejects unauthenticated requests with 401 and stores the
// username in the context of the rest.
func (ba *BasicAuth) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, err := ba.Authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+ba.realm+`"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(WithUser(r.Context(), username)))
	}
}
