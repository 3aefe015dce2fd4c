package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"agent-foundry/internal/adapter/llm"
	"agent-foundry/internal/domain"
)

type errorResponse struct {
	Error string          `json:"error"`
	Code  string          `json:"code,omitempty"`
	Reply *domain.Message `json:"reply,omitempty"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type toolsResponse struct {
	Platform []domain.PlatformTool `json:"platform"`
	Gateway  []domain.GatewayTool  `json:"gateway"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	switch domain.ErrorCodeOf(err) {
	case domain.CodeAgentNotFound, domain.CodeSkillNotFound, domain.CodeToolNotFound, domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	case domain.CodeProviderNotFound, domain.CodeMissingCredential, domain.CodeConfigLoad:
		return http.StatusServiceUnavailable
	case domain.CodeBackend, domain.CodeAuthInvalid, domain.CodeContextOverflow, domain.CodeGateway:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("api request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: string(domain.ErrorCodeOf(err))})
}

// decode reads a JSON body capped at maxBodyBytes.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.NewDomainError("decode", domain.ErrInvalidInput, "request body too large (max 1MB)")
		}
		return domain.NewDomainError("decode", domain.ErrInvalidInput, "invalid JSON: "+err.Error())
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Agents.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req domain.Agent
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.deps.Agents.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Agents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req domain.Agent
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.deps.Agents.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Agents.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Agents.Messages(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleChat runs one turn. A failed turn still returns the stored error
// reply alongside the error.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	reply, err := s.deps.Chat.Send(r.Context(), r.PathValue("id"), req.Message)
	if err != nil {
		if reply == nil {
			s.writeError(w, r, err)
			return
		}
		s.logger.Warn("chat turn failed", "agent", r.PathValue("id"), "error", err)
		writeJSON(w, statusFor(err), errorResponse{
			Error: err.Error(),
			Code:  string(domain.ErrorCodeOf(err)),
			Reply: reply,
		})
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleInstallSkill(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Agents.InstallSkill(r.Context(), r.PathValue("id"), r.PathValue("skill"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUninstallSkill(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Agents.UninstallSkill(r.Context(), r.PathValue("id"), r.PathValue("skill"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleInstallTool(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Agents.InstallTool(r.Context(), r.PathValue("id"), r.PathValue("tool"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUninstallTool(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Agents.UninstallTool(r.Context(), r.PathValue("id"), r.PathValue("tool"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleSkills(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Catalog.List())
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	resp := toolsResponse{Platform: s.deps.Catalog.Platform(), Gateway: []domain.GatewayTool{}}
	if s.deps.Gateway != nil {
		if tools := s.deps.Gateway.All(); tools != nil {
			resp.Gateway = tools
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDiscover refreshes the gateway registry. On failure the previous
// registry stays in place and is returned with the error.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if s.deps.Gateway == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "tool gateway not configured", Code: string(domain.CodeGateway)})
		return
	}
	if err := s.deps.Gateway.Discover(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleTools(w, r)
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	providers := []string{}
	if s.deps.Providers != nil {
		providers = append(providers, s.deps.Providers.Providers()...)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"providers": providers})
}

// handleOllamaTags proxies the local model list. Failures yield an empty
// list so clients can treat Ollama as absent.
func (s *Server) handleOllamaTags(w http.ResponseWriter, r *http.Request) {
	models := []llm.OllamaModel{}
	if s.deps.Ollama != nil {
		list, err := s.deps.Ollama.ListModels(r.Context())
		if err != nil {
			s.logger.Debug("ollama tags unavailable", "error", err)
		} else if list != nil {
			models = list
		}
	}
	writeJSON(w, http.StatusOK, map[string][]llm.OllamaModel{"models": models})
}
