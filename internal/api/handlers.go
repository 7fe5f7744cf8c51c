package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/pkg/models"
)

type createAgentRequest struct {
	Name               string                        `json:"name"`
	Description        string                        `json:"description"`
	Model              string                        `json:"ai_model"`
	InitialFunds       decimal.Decimal               `json:"initial_funds"`
	MaxTurns           int                           `json:"max_turns"`
	RiskTolerance      float64                       `json:"risk_tolerance"`
	EnabledTools       []string                      `json:"enabled_tools"`
	Preferences        *models.InvestmentPreferences `json:"preferences"`
	CustomInstructions string                        `json:"custom_instructions"`
	AdjustmentCriteria string                        `json:"adjustment_criteria"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	profile := &models.AgentProfile{
		Name:               req.Name,
		Description:        req.Description,
		Model:              req.Model,
		InitialFunds:       req.InitialFunds,
		MaxTurns:           req.MaxTurns,
		RiskTolerance:      req.RiskTolerance,
		EnabledTools:       req.EnabledTools,
		CustomInstructions: req.CustomInstructions,
		AdjustmentCriteria: req.AdjustmentCriteria,
	}
	if req.Preferences != nil {
		profile.Preferences = *req.Preferences
	}

	created, err := s.manager.CreateAgent(r.Context(), profile)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := s.manager.GetAgent(r.Context(), created.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	views, err := s.manager.ListAgents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": views})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var update models.ProfileUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, err)
		return
	}

	profile, err := s.manager.UpdateAgent(r.Context(), chi.URLParam(r, "id"), &update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteAgent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type startSessionRequest struct {
	Mode       models.AgentMode `json:"mode"`
	TurnBudget int              `json:"turn_budget"`
	Message    string           `json:"message"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sessionID, err := s.manager.StartSession(r.Context(), chi.URLParam(r, "id"), req.Mode, req.TurnBudget, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.StopSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

type setModeRequest struct {
	Mode   models.AgentMode `json:"mode"`
	Reason string           `json:"reason"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.manager.SetMode(r.Context(), chi.URLParam(r, "id"), req.Mode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(req.Mode)})
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	summary, err := s.manager.Portfolio(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	agentID := chi.URLParam(r, "id")

	// 404 for unknown agents, not an empty page
	if _, err := s.manager.GetAgent(r.Context(), agentID); err != nil {
		writeError(w, err)
		return
	}

	trades, err := s.repo.ListTransactions(r.Context(), agentID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trades": trades,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	agentID := chi.URLParam(r, "id")

	if _, err := s.manager.GetAgent(r.Context(), agentID); err != nil {
		writeError(w, err)
		return
	}

	changes, err := s.repo.ListStrategyChanges(r.Context(), agentID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"strategies": changes,
		"limit":      limit,
		"offset":     offset,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	detail, err := s.repo.GetSessionDetail(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if detail.AgentID != chi.URLParam(r, "id") {
		writeError(w, notFoundSession(chi.URLParam(r, "session_id")))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.calendar.Status())
}

func (s *Server) handleMarketStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gateway.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
