package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"agent-foundry/internal/adapter/llm"
	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
	"agent-foundry/internal/infra/middleware"
	"agent-foundry/internal/usecase"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ProviderLister reports the registered backend names.
type ProviderLister interface {
	Providers() []string
}

// OllamaTags lists locally installed Ollama models.
type OllamaTags interface {
	ListModels(ctx context.Context) ([]llm.OllamaModel, error)
}

// Deps are the services the API exposes. Ollama may be nil.
type Deps struct {
	Agents    *usecase.AgentService
	Chat      *usecase.ChatService
	Catalog   domain.SkillCatalog
	Gateway   domain.ToolGateway
	Providers ProviderLister
	Ollama    OllamaTags
}

// Server is the JSON HTTP API in front of the foundry services.
type Server struct {
	cfg       config.HTTPConfig
	deps      Deps
	logger    *slog.Logger
	boundAddr atomic.Value
}

// NewServer creates an API server.
func NewServer(cfg config.HTTPConfig, deps Deps, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, deps: deps, logger: logger}
}

// Handler returns the routed API wrapped in the security, CORS, rate limit
// and access log middleware. ctx bounds the rate limiter's cleanup loop.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = middleware.AccessLog(s.logger)(h)
	if s.cfg.RequestsPerMin > 0 {
		h = middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: s.cfg.RequestsPerMin,
			BurstSize:      s.cfg.Burst,
			TrustedProxies: s.cfg.TrustedProxies,
		})(h)
	}
	h = middleware.CORS(middleware.DefaultAllowedOrigins)(h)
	return middleware.SecurityHeaders(h)
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/v1/agents", s.handleCreateAgent)
	mux.HandleFunc("GET /api/v1/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("PUT /api/v1/agents/{id}", s.handleUpdateAgent)
	mux.HandleFunc("DELETE /api/v1/agents/{id}", s.handleDeleteAgent)
	mux.HandleFunc("GET /api/v1/agents/{id}/messages", s.handleMessages)
	mux.HandleFunc("POST /api/v1/agents/{id}/chat", s.handleChat)
	mux.HandleFunc("POST /api/v1/agents/{id}/skills/{skill}", s.handleInstallSkill)
	mux.HandleFunc("DELETE /api/v1/agents/{id}/skills/{skill}", s.handleUninstallSkill)
	mux.HandleFunc("POST /api/v1/agents/{id}/tools/{tool}", s.handleInstallTool)
	mux.HandleFunc("DELETE /api/v1/agents/{id}/tools/{tool}", s.handleUninstallTool)

	mux.HandleFunc("GET /api/v1/skills", s.handleSkills)
	mux.HandleFunc("GET /api/v1/tools", s.handleTools)
	mux.HandleFunc("POST /api/v1/tools/discover", s.handleDiscover)
	mux.HandleFunc("GET /api/v1/providers", s.handleProviders)

	mux.HandleFunc("GET /proxy/ollama/tags", s.handleOllamaTags)
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.boundAddr.Store(listener.Addr().String())

	srv := &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("api shutdown", "error", err)
		}
	}()

	s.logger.Info("api server started", "addr", s.Addr())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

// Addr returns the bound listener address once Start is running.
func (s *Server) Addr() string {
	addr, _ := s.boundAddr.Load().(string)
	return addr
}
