// Demo REST backend for the gateway. It issues short-lived HS256 access
// tokens so the refresh path gets exercised.
//
//	go run ./example/backend
//	curl -X POST localhost:8081/api/v1/login -d '{"email":"a@b.c","password":"password"}'
package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IsaacDSC/gquery/pkg/logs"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	accessTTL  = time.Minute
	refreshTTL = 24 * time.Hour
	password   = "password"
)

type user struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type apiError struct {
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

type backend struct {
	secret []byte
	logger *logs.Logger

	mu     sync.RWMutex
	users  []user
	nextID int
}

func main() {
	logger := logs.New().With("app", "backend")

	secret := os.Getenv("BACKEND_JWT_SECRET")
	if secret == "" {
		secret = "dev-secret"
	}
	addr := os.Getenv("BACKEND_ADDR")
	if addr == "" {
		addr = ":8081"
	}

	b := &backend{secret: []byte(secret), logger: logger}
	for range 42 {
		b.add(gofakeit.Name(), gofakeit.Email())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/login", b.login)
	mux.HandleFunc("POST /api/v1/refresh-token", b.refresh)
	mux.HandleFunc("GET /api/v1/users", b.authorized(b.listUsers))
	mux.HandleFunc("POST /api/v1/users", b.authorized(b.createUser))
	mux.HandleFunc("DELETE /api/v1/users/{id}", b.authorized(b.deleteUser))

	logger.Info("[*] Backend started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("backend stopped", "error", err)
		os.Exit(1)
	}
}

func (b *backend) add(name, email string) user {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	u := user{ID: b.nextID, Name: name, Email: email}
	b.users = append(b.users, u)
	return u
}

func (b *backend) issue(subject, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim("typ", kind).
		Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, b.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func (b *backend) verify(raw, kind string) (jwt.Token, error) {
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, b.secret), jwt.WithValidate(true))
	if err != nil {
		return nil, err
	}
	if typ, _ := tok.Get("typ"); typ != kind {
		return nil, errors.New("wrong token type")
	}
	return tok, nil
}

func (b *backend) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Message: err.Error()})
		return
	}
	if in.Email == "" || in.Password != password {
		writeError(w, http.StatusUnauthorized, apiError{Message: "invalid credentials"})
		return
	}

	access, err := b.issue(in.Email, "access", accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apiError{Message: err.Error()})
		return
	}
	refresh, err := b.issue(in.Email, "refresh", refreshTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apiError{Message: err.Error()})
		return
	}

	b.logger.Info("login", "subject", in.Email)
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": access, "refreshToken": refresh})
}

func (b *backend) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Message: err.Error()})
		return
	}

	tok, err := b.verify(in.RefreshToken, "refresh")
	if err != nil {
		writeError(w, http.StatusUnauthorized, apiError{Message: "invalid refresh token"})
		return
	}

	access, err := b.issue(tok.Subject(), "access", accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apiError{Message: err.Error()})
		return
	}

	b.logger.Info("token refreshed", "subject", tok.Subject())
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": access})
}

func (b *backend) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, apiError{Message: "missing bearer token"})
			return
		}
		if _, err := b.verify(raw, "access"); err != nil {
			writeError(w, http.StatusUnauthorized, apiError{Message: "invalid access token"})
			return
		}
		next(w, r)
	}
}

func (b *backend) listUsers(w http.ResponseWriter, r *http.Request) {
	page := intParam(r, "page", 1)
	size := intParam(r, "size", 10)
	if page < 1 || size < 1 || size > 100 {
		writeError(w, http.StatusUnprocessableEntity, apiError{
			Message:     "invalid pagination",
			FieldErrors: map[string]string{"page": ">= 1", "size": "1..100"},
		})
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	from := min((page-1)*size, len(b.users))
	to := min(from+size, len(b.users))
	writeJSON(w, http.StatusOK, b.users[from:to])
}

func (b *backend) createUser(w http.ResponseWriter, r *http.Request) {
	var in user
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Message: err.Error()})
		return
	}

	fields := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "required"
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		fields["email"] = "invalid"
	}
	if len(fields) > 0 {
		writeError(w, http.StatusUnprocessableEntity, apiError{Message: "invalid user", FieldErrors: fields})
		return
	}

	writeJSON(w, http.StatusCreated, b.add(in.Name, in.Email))
}

func (b *backend) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, apiError{Message: "invalid id"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, u := range b.users {
		if u.ID == id {
			b.users = append(b.users[:i], b.users[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, apiError{Message: "user not found"})
}

func intParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, map[string]apiError{"error": e})
}
