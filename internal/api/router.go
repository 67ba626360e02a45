package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"veilpay/internal/handler"
	"veilpay/internal/session"
)

// SetupRouter sets up the router with handlers. All wallet endpoints
// require the bearer token; metrics and the Swagger UI stay open.
func SetupRouter(registry *session.Registry, apiToken string) http.Handler {
	sessionHandler := handler.NewSessionHandler(registry)
	settleHandler := handler.NewSettleHandler(registry)

	auth := requireBearer(apiToken)

	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Session lifecycle
	mux.Handle("/session/init", auth(sessionHandler.Init))
	mux.Handle("/session/destroy", auth(sessionHandler.Destroy))
	mux.Handle("/session/status", auth(sessionHandler.Status))

	// Addresses
	mux.Handle("/address/current", auth(sessionHandler.CurrentAddress))
	mux.Handle("/address/stable", auth(sessionHandler.StableAddress))

	// Settlement
	mux.Handle("/settlement/observe", auth(settleHandler.Observe))
	mux.Handle("/settlement/approve", auth(settleHandler.Approve))
	mux.Handle("/settlement/recover", auth(settleHandler.Recover))

	return mux
}

// requireBearer rejects requests whose Authorization header does not carry
// the configured token. Comparison is constant-time.
func requireBearer(token string) func(http.HandlerFunc) http.Handler {
	return func(next http.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		})
	}
}
