package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"savingsbank/core"
	"savingsbank/gateway/middleware"
	"savingsbank/services/savingsd/audit"
)

const (
	groupMutations = "mutations"
	groupReads     = "reads"
)

// Config captures the HTTP surface settings.
type Config struct {
	ListenAddress   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Auth            middleware.AuthConfig
	RateLimits      map[string]middleware.RateLimit
	CORS            middleware.CORSConfig
	Observability   middleware.ObservabilityConfig
}

// Server exposes the savings node over HTTP/JSON and a websocket stream.
type Server struct {
	cfg     Config
	node    *core.Node
	audit   *audit.Store
	hub     *Hub
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	router  http.Handler
}

// New constructs the server. The hub must already be subscribed to the
// node's committed events.
func New(cfg Config, node *core.Node, store *audit.Store, hub *Hub, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("server: node required")
	}
	if store == nil {
		return nil, fmt.Errorf("server: audit store required")
	}
	if hub == nil {
		hub = NewHub()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		node:    node,
		audit:   store,
		hub:     hub,
		logger:  logger,
		auth:    middleware.NewAuthenticator(cfg.Auth, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimits, logger),
		obs:     middleware.NewObservability(cfg.Observability, logger),
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) with(route, group string) []func(http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{s.obs.Middleware(route)}
	if group == groupMutations || !s.cfg.Auth.AllowAnonymous {
		chain = append(chain, s.auth.Middleware())
	}
	return append(chain, s.limiter.Middleware(group))
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(s.cfg.CORS))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(prometheus.Gatherers{
		prometheus.DefaultGatherer,
		s.obs.Registry(),
	}, promhttp.HandlerOpts{}))

	r.Route("/v1", func(api chi.Router) {
		m := func(route string) chi.Router { return api.With(s.with(route, groupMutations)...) }
		q := func(route string) chi.Router { return api.With(s.with(route, groupReads)...) }

		m("deposits.create").Post("/deposits", s.handleCreateDeposit)
		m("deposits.withdraw").Post("/deposits/{id}/withdraw", s.handleWithdrawDeposit)
		m("deposits.renew").Post("/deposits/{id}/renew", s.handleRenewDeposit)
		q("deposits.get").Get("/deposits/{id}", s.handleGetDeposit)
		q("deposits.penalty").Get("/deposits/{id}/penalty", s.handleDepositPenalty)
		q("deposits.mature").Get("/deposits/{id}/mature", s.handleDepositMature)
		q("users.deposits").Get("/users/{address}/deposits", s.handleUserDeposits)
		q("users.asset").Get("/users/{address}/asset", s.handleUserAsset)
		q("stats").Get("/stats", s.handleStats)

		m("plans.create").Post("/plans", s.handleCreatePlan)
		m("plans.update").Put("/plans/{id}", s.handleUpdatePlan)
		m("plans.activate").Post("/plans/{id}/activate", s.handleActivatePlan)
		m("plans.deactivate").Post("/plans/{id}/deactivate", s.handleDeactivatePlan)
		m("plans.penalty_receiver").Put("/plans/{id}/penalty-receiver", s.handlePenaltyReceiver)
		q("plans.get").Get("/plans/{id}", s.handleGetPlan)
		q("plans.interest").Get("/plans/{id}/interest", s.handlePlanInterest)

		m("vault.deposit").Post("/vault/deposit", s.handleVaultDeposit)
		m("vault.withdraw").Post("/vault/withdraw", s.handleVaultWithdraw)
		m("vault.admin_withdraw").Post("/vault/admin-withdraw", s.handleVaultAdminWithdraw)
		q("vault.get").Get("/vault", s.handleGetVault)

		m("certificates.transfer").Post("/certificates/{id}/transfer", s.handleTransferCertificate)
		m("certificates.approve").Post("/certificates/{id}/approve", s.handleApproveCertificate)
		m("certificates.operator").Post("/certificates/operators", s.handleCertificateOperator)
		q("certificates.get").Get("/certificates/{id}", s.handleGetCertificate)

		m("admin.pause").Post("/admin/pause", s.handlePause)
		m("admin.unpause").Post("/admin/unpause", s.handleUnpause)
		m("admin.roles.grant").Post("/admin/roles/grant", s.handleGrantRole)
		m("admin.roles.revoke").Post("/admin/roles/revoke", s.handleRevokeRole)
		m("admin.roles.renounce").Post("/admin/roles/renounce", s.handleRenounceRole)
		q("roles.members").Get("/roles/{role}/members", s.handleRoleMembers)

		m("asset.approve").Post("/asset/approve", s.handleApproveAsset)
		q("asset.get").Get("/asset", s.handleGetAsset)

		q("events.list").Get("/events", s.handleListEvents)
		q("events.stream").Get("/events/stream", s.handleEventStream)
	})
	return r
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("savingsd: http server listening", slog.String("component", "http"), slog.String("addr", s.cfg.ListenAddress))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.node.Paused() {
		status = "paused"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"subscribers": s.hub.Subscribers(),
	})
}

// originPatterns converts CORS origins to the host patterns the websocket
// handshake checks.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			out = append(out, parsed.Host)
			continue
		}
		out = append(out, origin)
	}
	return out
}
