package backoffice

import (
	"encoding/json"
	"net/http"

	"github.com/IsaacDSC/gquery/internal/authn"
	"github.com/IsaacDSC/gquery/pkg/auth"
	"github.com/IsaacDSC/gquery/pkg/ctxlogger"
	"github.com/IsaacDSC/gquery/pkg/httpadapter"
	"github.com/IsaacDSC/gquery/pkg/queryparser"
)

type invalidateRequest struct {
	Path string `query:"path"`
}

// GetInvalidateHandle drops the entry for ?path= plus the remaining query
// parameters. Mounted queries refetch on their next read.
func GetInvalidateHandle(cache Cache) httpadapter.HttpHandle {
	return httpadapter.HttpHandle{
		Path:  "POST /admin/invalidate",
		Admin: true,
		Handler: func(w http.ResponseWriter, r *http.Request) {
			values := r.URL.Query()

			var in invalidateRequest
			if err := queryparser.ParseQueryParams(values, &in); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if in.Path == "" {
				http.Error(w, "path is required", http.StatusBadRequest)
				return
			}
			values.Del("path")

			invalidated := cache.InvalidateQuery(in.Path, values)
			ctxlogger.GetLogger(r.Context()).Info("query invalidated",
				"path", in.Path,
				"invalidated", invalidated,
				"admin", adminUser(r),
			)

			json.NewEncoder(w).Encode(map[string]bool{"invalidated": invalidated})
		},
	}
}

func GetClearHandle(cache Cache) httpadapter.HttpHandle {
	return httpadapter.HttpHandle{
		Path:  "POST /admin/clear",
		Admin: true,
		Handler: func(w http.ResponseWriter, r *http.Request) {
			cache.ClearCache()
			ctxlogger.GetLogger(r.Context()).Info("cache cleared", "admin", adminUser(r))
			w.WriteHeader(http.StatusNoContent)
		},
	}
}

type loginRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// GetLoginHandle stores the credential pair obtained from the backend's login
// endpoint. Cached responses from a previous session are dropped.
func GetLoginHandle(cache Cache) httpadapter.HttpHandle {
	return httpadapter.HttpHandle{
		Path:  "POST /admin/login",
		Admin: true,
		Handler: func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			var in loginRequest
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if in.AccessToken == "" && in.RefreshToken == "" {
				http.Error(w, "accessToken or refreshToken is required", http.StatusBadRequest)
				return
			}

			cache.ClearCache()
			if err := cache.Login(r.Context(), authn.Tokens{AccessToken: in.AccessToken, RefreshToken: in.RefreshToken}); err != nil {
				ctxlogger.GetLogger(r.Context()).Error("login failed", "error", err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			ctxlogger.GetLogger(r.Context()).Info("logged in", "admin", adminUser(r))
			w.WriteHeader(http.StatusNoContent)
		},
	}
}

// GetLogoutHandle clears the stored credentials together with every cached
// response.
func GetLogoutHandle(cache Cache) httpadapter.HttpHandle {
	return httpadapter.HttpHandle{
		Path:  "POST /admin/logout",
		Admin: true,
		Handler: func(w http.ResponseWriter, r *http.Request) {
			if err := cache.Logout(r.Context()); err != nil {
				ctxlogger.GetLogger(r.Context()).Error("logout failed", "error", err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			ctxlogger.GetLogger(r.Context()).Info("logged out", "admin", adminUser(r))
			w.WriteHeader(http.StatusNoContent)
		},
	}
}

func GetStatsHandle(cache Cache) httpadapter.HttpHandle {
	return httpadapter.HttpHandle{
		Path: "GET /stats",
		Handler: func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewEncoder(w).Encode(cache.Stats()); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		},
	}
}

func adminUser(r *http.Request) string {
	user, _ := auth.UserFromContext(r.Context())
	return user
}
