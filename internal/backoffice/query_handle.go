package backoffice

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/IsaacDSC/gquery/internal/apierr"
	"github.com/IsaacDSC/gquery/internal/fetcher"
	"github.com/IsaacDSC/gquery/pkg/ctxlogger"
	"github.com/IsaacDSC/gquery/pkg/httpadapter"
	"github.com/IsaacDSC/gquery/pkg/queryparser"
)

type queryRequest struct {
	Path    string `query:"path"`
	Refetch bool   `query:"refetch"`
}

type QueryResponse struct {
	Status          fetcher.Status    `json:"status"`
	Data            json.RawMessage   `json:"data,omitempty"`
	Error           string            `json:"error,omitempty"`
	FieldErrors     map[string]string `json:"field_errors,omitempty"`
	IsRevalidating  bool              `json:"is_revalidating"`
	RevalidateError string            `json:"revalidate_error,omitempty"`
	UpdatedAt       *time.Time        `json:"updated_at,omitempty"`
}

// GetQueryHandle reads ?path= through the cache. Every other query parameter
// is forwarded to the backend and is part of the cache key.
func GetQueryHandle(reader Reader) httpadapter.HttpHandle {
	return httpadapter.HttpHandle{
		Path: "GET /query",
		Handler: func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			values := r.URL.Query()

			var in queryRequest
			if err := queryparser.ParseQueryParams(values, &in); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if in.Path == "" {
				http.Error(w, "path is required", http.StatusBadRequest)
				return
			}
			if !strings.HasPrefix(in.Path, "/") {
				in.Path = "/" + in.Path
			}
			values.Del("path")
			values.Del("refetch")

			st := reader.Read(ctx, in.Path, values, in.Refetch)

			res := QueryResponse{
				Status:         st.Status,
				IsRevalidating: st.IsRevalidating,
			}
			if st.HasData {
				res.Data = st.Data
				res.UpdatedAt = &st.UpdatedAt
			}
			if st.RevalidateErr != nil {
				res.RevalidateError = st.RevalidateErr.Error()
			}

			status := http.StatusOK
			switch st.Status {
			case fetcher.StatusSuccess:
			case fetcher.StatusError:
				status = errorStatus(st.Err)
				res.Error = st.Err.Error()
				var apiErr *apierr.Error
				if errors.As(st.Err, &apiErr) {
					res.FieldErrors = apiErr.FieldErrors
				}
				ctxlogger.GetLogger(ctx).Warn("query failed", "path", in.Path, "error", st.Err)
			default:
				// aborted by the caller or unmounted before it settled
				status = http.StatusServiceUnavailable
			}

			w.WriteHeader(status)
			if err := json.NewEncoder(w).Encode(res); err != nil {
				ctxlogger.GetLogger(ctx).Error("encode query response", "error", err)
			}
		},
	}
}

func errorStatus(err error) int {
	switch code := apierr.StatusCode(err); {
	case errors.Is(err, apierr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case code >= 400 && code < 500:
		return code
	default:
		return http.StatusBadGateway
	}
}
