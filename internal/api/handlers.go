package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kidvoice-labs/safegate/internal/models"
)

// createSessionResponse is the body returned when a session is opened.
type createSessionResponse struct {
	SessionID string       `json:"session_id"`
	State     models.State `json:"state"`
}

// choiceRequest selects one of the offered interventions.
type choiceRequest struct {
	Action models.Intervention `json:"action"`
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	// The sink can only fire after a card is set, so filling the ID after
	// CreateSession returns is safe.
	var sessionID string
	session := s.manager.CreateSession(func(pkg models.UIPackage) {
		s.hub.broadcast(sessionID, pkg)
	})
	sessionID = session.ID()

	writeJSONResponse(w, http.StatusCreated, createSessionResponse{
		SessionID: sessionID,
		State:     session.State(),
	})
}

func (s *Server) endSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.EndSession(id); err != nil {
		writeError(w, err)
		return
	}
	s.hub.closeSession(id)
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (s *Server) eventHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var event models.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		slog.Warn("Server.eventHandler: malformed body", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	pkg, err := session.ProcessEvent(r.Context(), event)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, pkg)
}

func (s *Server) cardHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var card models.TaskContext
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid card payload")
		return
	}
	if err := session.SetCurrentCard(card); err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "card set"})
}

func (s *Server) choiceHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req choiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid choice payload")
		return
	}
	if err := session.HandleChoiceSelection(req.Action); err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "choice accepted"})
}

func (s *Server) resumeHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := session.ResumeSession(); err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// reviewHandler returns the persisted event log for a session so that a
// therapist can review what happened after the fact.
func (s *Server) reviewHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusNotFound, "event log not configured")
		return
	}
	records, err := s.store.ListSessionEvents(r.PathValue("id"))
	if err != nil {
		slog.Error("Server.reviewHandler: listing events failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to list session events")
		return
	}
	writeJSONResponse(w, http.StatusOK, records)
}

func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.manager.Get(id); err != nil {
		writeError(w, err)
		return
	}
	s.hub.serve(w, r, id)
}

// writeError maps pipeline sentinel errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrUnknownSession):
		writeJSONError(w, http.StatusNotFound, "unknown session")
	case errors.Is(err, models.ErrSessionClosed):
		writeJSONError(w, http.StatusGone, "session is closed")
	case errors.Is(err, models.ErrNoActiveCard):
		writeJSONError(w, http.StatusConflict, "no active card")
	case errors.Is(err, models.ErrInvalidEventType),
		errors.Is(err, models.ErrEmptyResponse),
		errors.Is(err, models.ErrUnknownIntervention):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Server.writeError: request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
