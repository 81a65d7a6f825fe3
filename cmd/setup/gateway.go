package setup

import (
	"net/http"
	"time"

	"github.com/IsaacDSC/gquery/internal/backoffice"
	"github.com/IsaacDSC/gquery/internal/cfg"
	"github.com/IsaacDSC/gquery/pkg/auth"
	"github.com/IsaacDSC/gquery/pkg/httpadapter"
	"github.com/IsaacDSC/gquery/pkg/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GatewayHandler builds the gateway mux. Admin routes are only mounted when an
// admin password is configured.
func GatewayHandler(env cfg.Config, reader backoffice.Reader, cache backoffice.Cache, gatherer prometheus.Gatherer, logger *logs.Logger) http.Handler {
	mux := http.NewServeMux()

	var basic *auth.BasicAuth
	if env.Gateway.AdminPassword != "" {
		basic = auth.NewBasicAuth(map[string]string{
			env.Gateway.AdminUser: env.Gateway.AdminPassword,
		})
	} else {
		logger.Warn("admin routes disabled, GQ_GATEWAY_ADMIN_PASSWORD is empty")
	}

	routes := backoffice.Routes(reader, cache)
	if gatherer != nil {
		routes = append(routes, metricsHandle(gatherer))
	}

	for _, route := range routes {
		if !route.Admin {
			mux.HandleFunc(route.Path, route.Handler)
			continue
		}
		if basic != nil {
			mux.HandleFunc(route.Path, basic.Middleware(route.Handler))
		}
	}

	return CORSMiddleware(LoggerMiddleware(logger)(mux))
}

func metricsHandle(gatherer prometheus.Gatherer) httpadapter.HttpHandle {
	h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	return httpadapter.HttpHandle{
		Path: "GET /metrics",
		Handler: func(w http.ResponseWriter, r *http.Request) {
			// LoggerMiddleware defaults the response to JSON
			w.Header().Del("Content-Type")
			h.ServeHTTP(w, r)
		},
	}
}

// StartGateway serves handler on the configured address in the background.
func StartGateway(env cfg.Config, handler http.Handler, logger *logs.Logger) *http.Server {
	server := &http.Server{
		Addr:         env.Gateway.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("[*] Starting gateway", "addr", env.Gateway.Addr, "api", env.API.BaseURL)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway server error", "error", err)
		}
	}()

	return server
}
