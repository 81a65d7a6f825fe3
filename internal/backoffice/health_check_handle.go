package backoffice

import (
	"net/http"

	"github.com/IsaacDSC/gquery/pkg/httpadapter"
)

func GetHealthCheckHandler() httpadapter.HttpHandle {
	return httpadapter.HttpHandle{
		Path: "GET /ping",
		Handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("pong"))
		},
	}
}
