package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lorefall/lorefall-backend/internal/domain"
	"github.com/lorefall/lorefall-backend/internal/usecase/overview"
	"github.com/lorefall/lorefall-backend/internal/usecase/ruleengine"
)

// Server is the engine's read-only operational surface: health, Prometheus
// metrics, domain summaries and the best-case distribution estimate used by
// the announcement notifier. Rule editing and lock creation live in the
// external API layer, not here.
type Server struct {
	domains    domain.DomainRepository
	candidates domain.CandidateRepository
	overviews  *overview.OverviewService
	logger     *slog.Logger
	srv        *http.Server
}

// NewServer creates an ops server listening on addr.
func NewServer(addr string, domains domain.DomainRepository, candidates domain.CandidateRepository, overviews *overview.OverviewService, logger *slog.Logger) *Server {
	s := &Server{
		domains:    domains,
		candidates: candidates,
		overviews:  overviews,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/v1/domains/{domainID}", s.handleOverview)
	r.Get("/v1/domains/{domainID}/estimate", s.handleEstimate)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// overviewResponse is the read-model summary of one domain. Balances are
// rendered as fixed two-decimal strings.
type overviewResponse struct {
	DomainID         uuid.UUID  `json:"domain_id"`
	Name             string     `json:"name"`
	PointBalance     string     `json:"point_balance"`
	CarryoverBalance string     `json:"carryover_balance"`
	ProjectedPool    string     `json:"projected_pool"`
	NextDueAt        *time.Time `json:"next_due_at,omitempty"`
	LastExecutedAt   *time.Time `json:"last_executed_at,omitempty"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	domainID, err := uuid.Parse(chi.URLParam(r, "domainID"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid domain ID")
		return
	}

	ov, err := s.overviews.GetDomainOverview(r.Context(), domainID, time.Now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpError(w, http.StatusNotFound, "domain not found")
			return
		}
		s.logger.Error("failed to load domain overview", "domain", domainID, "error", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := overviewResponse{
		DomainID:         ov.DomainID,
		Name:             ov.Name,
		PointBalance:     ov.PointBalance.StringFixed(2),
		CarryoverBalance: ov.CarryoverBalance.StringFixed(2),
		ProjectedPool:    ov.ProjectedPool.StringFixed(2),
		NextDueAt:        ov.NextDueAt,
		LastExecutedAt:   ov.LastExecutedAt,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// estimateResponse is the best-case percentage a user could receive from the
// domain's currently scheduled distribution. Presence is never applied.
type estimateResponse struct {
	DomainID   uuid.UUID `json:"domain_id"`
	UserID     uuid.UUID `json:"user_id"`
	MaxPercent int       `json:"max_percent"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	domainID, err := uuid.Parse(chi.URLParam(r, "domainID"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid domain ID")
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid or missing user parameter")
		return
	}

	dom, err := s.domains.GetByID(r.Context(), domainID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpError(w, http.StatusNotFound, "domain not found")
			return
		}
		s.logger.Error("failed to load domain for estimate", "domain", domainID, "error", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if dom.Scheduled == nil {
		httpError(w, http.StatusNotFound, "no scheduled distribution")
		return
	}

	candidate, err := s.candidates.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpError(w, http.StatusNotFound, "user not found")
			return
		}
		s.logger.Error("failed to load candidate for estimate", "user", userID, "error", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}

	dom.Scheduled.Rules.Normalize()
	resp := estimateResponse{
		DomainID:   domainID,
		UserID:     userID,
		MaxPercent: ruleengine.ProjectedMaxPercent(candidate, dom.Scheduled),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
