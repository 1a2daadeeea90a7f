package httpapi

import (
	"embed"
	"net/http"

	"github.com/fiapx/fiapx-highlight-service/internal/infra/metrics"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed static/index.html
var static embed.FS

func NewRouter(h *Handler, logger *zap.Logger, checks ...metrics.HealthCheck) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", index).Methods(http.MethodGet)
	r.HandleFunc("/process_video", h.ProcessVideo).Methods(http.MethodPost)
	r.HandleFunc("/output/{filename}", h.Output).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", metrics.HealthHandler(logger, checks...)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

// Wrap adds access logging, panic recovery and CORS around the router.
func Wrap(router http.Handler, logger *zap.Logger) http.Handler {
	stdLog := zap.NewStdLog(logger.Named("http"))

	var handler http.Handler = router
	handler = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(handler)
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(stdLog),
		handlers.PrintRecoveryStack(true),
	)(handler)
	return handlers.LoggingHandler(stdLog.Writer(), handler)
}

func index(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, static, "static/index.html")
}
