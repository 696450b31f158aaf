package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"jackpotd/application"
	"jackpotd/domain/interfaces"
	"jackpotd/infrastructure"
	"jackpotd/infrastructure/observability"
)

// Deps are the collaborators the HTTP layer fronts. Bets, Bonuses,
// Jackpots and Metrics are required; Hub and Registry are optional and
// their routes are skipped when absent.
type Deps struct {
	Bets     interfaces.BetService
	Bonuses  interfaces.BonusService
	Jackpots *application.JackpotService
	Metrics  *observability.Metrics
	Hub      *infrastructure.PoolMeterHub
	Registry *prometheus.Registry
}

// NewRouter wires every route onto a chi router.
func NewRouter(deps Deps) http.Handler {
	p := NewHandlerProvider(deps)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}
	if deps.Hub != nil {
		r.Get("/ws/pools", deps.Hub.HandleWS)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/bets/settle", p.handleSettleBet)
		r.Post("/bonuses", p.handleGrantBonus)

		r.Route("/jackpots", func(r chi.Router) {
			r.Get("/pools", p.handleGetPools)
			r.Get("/stats", p.handleGetPoolStats)
			r.Post("/contributions", p.handleEnqueueContribution)
			r.Post("/wins", p.handleEnqueueWin)
		})

		r.Route("/ops", func(r chi.Router) {
			r.Get("/queue", p.handleQueueMetrics)
			r.Get("/health", p.handleHealth)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("HTTP request handled")
	})
}
