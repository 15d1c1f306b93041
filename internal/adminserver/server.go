// Package adminserver exposes a read-only HTTP surface over the
// ledger, the rebalance flag, and basket diagnostics — the supporting
// observability layer the control loop itself does not need but an
// operator does.
package adminserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/momentum-rebalancer/internal/ledger"
	"github.com/aristath/momentum-rebalancer/internal/rebalanceflag"
	"github.com/aristath/momentum-rebalancer/internal/scheduler"
	"github.com/aristath/momentum-rebalancer/pkg/formulas"
)

// JobStatuser exposes a supervisor's cron bookkeeping without coupling
// adminserver to the supervisor package itself.
type JobStatuser interface {
	JobStatus() map[string]scheduler.RunRecord
}

// Config controls the listen address and injected read-only dependencies.
type Config struct {
	Port    int
	Log     zerolog.Logger
	DevMode bool
	Ledger  *ledger.Ledger
	Flag    *rebalanceflag.Store
	Jobs    JobStatuser
}

// Server is the admin-facing read-only HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	led    *ledger.Ledger
	flag   *rebalanceflag.Store
	jobs   JobStatuser
}

func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "adminserver").Logger(),
		led:    cfg.Ledger,
		flag:   cfg.Flag,
		jobs:   cfg.Jobs,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if !cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/rebalance-flag", s.handleRebalanceFlag)
		r.Get("/allocations", s.handleAllocations)
		r.Get("/investors/{name}/summary", s.handleInvestorSummary)
		r.Get("/jobs", s.handleJobStatus)
		r.Post("/diagnostics/series-stats", s.handleSeriesStats)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRebalanceFlag(w http.ResponseWriter, r *http.Request) {
	date, ok := s.flag.LastDate()
	resp := map[string]interface{}{"rebalanced_today": s.flag.RebalancedToday()}
	if ok {
		resp["last_date"] = date.Format("2006-01-02")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAllocations(w http.ResponseWriter, r *http.Request) {
	allocs, err := s.led.GetAccountAllocations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, allocs)
}

func (s *Server) handleInvestorSummary(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	summary, err := s.led.GetInvestorSummary(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.jobs.JobStatus())
}

type seriesStatsRequest struct {
	Closes    []float64 `json:"closes"`
	RSILength int       `json:"rsi_length"`
}

type seriesStatsResponse struct {
	Mean        float64  `json:"mean"`
	StdDev      float64  `json:"std_dev"`
	Variance    float64  `json:"variance"`
	RSI         *float64 `json:"rsi,omitempty"`
	Sharpe      *float64 `json:"sharpe,omitempty"`
	MaxDrawdown *float64 `json:"max_drawdown,omitempty"`
}

// handleSeriesStats is a diagnostic-only endpoint: mean/variance via
// gonum, RSI via go-talib, and sharpe/drawdown over a caller-supplied
// close series. It is not consulted by the ranking core, which uses
// trailing total return alone per the momentum contract.
func (s *Server) handleSeriesStats(w http.ResponseWriter, r *http.Request) {
	var req seriesStatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.RSILength == 0 {
		req.RSILength = 14
	}

	resp := seriesStatsResponse{
		Mean:        formulas.Mean(req.Closes),
		StdDev:      formulas.StdDev(req.Closes),
		Variance:    formulas.Variance(req.Closes),
		RSI:         formulas.CalculateRSI(req.Closes, req.RSILength),
		Sharpe:      formulas.CalculateSharpeFromPrices(req.Closes, 0),
		MaxDrawdown: formulas.CalculateMaxDrawdown(req.Closes),
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// ListenAndServe starts the HTTP server, blocking until it exits.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("admin server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.server.Shutdown(context.Background())
}
