package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scriba-ai/scriba/internal/store"
)

// Control surface handlers. These are the plain synchronous data
// operations the dashboard consumes; the webhook pipeline never calls
// them.

func contactParam(r *http.Request) string {
	return chi.URLParam(r, "contact")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) getMode(w http.ResponseWriter, r *http.Request) {
	mode, err := s.store.GetMode(r.Context(), contactParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "mode read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(mode)})
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	mode := store.Mode(req.Mode)
	if mode != store.ModeAuto && mode != store.ModeManual {
		writeError(w, http.StatusBadRequest, "mode must be auto or manual")
		return
	}

	contact := contactParam(r)
	if err := s.store.EnsureProfile(r.Context(), contact); err != nil {
		writeError(w, http.StatusInternalServerError, "mode update failed")
		return
	}
	if err := s.store.SetMode(r.Context(), contact, mode); err != nil {
		writeError(w, http.StatusInternalServerError, "mode update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(mode)})
}

type draftResponse struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) getDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.store.GetDraft(r.Context(), contactParam(r))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no draft")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "draft read failed")
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{Text: draft.Text, CreatedAt: draft.CreatedAt})
}

func (s *Server) clearDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearDraft(r.Context(), contactParam(r)); err != nil {
		writeError(w, http.StatusInternalServerError, "draft clear failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// regenerateDraft reruns the orchestrator for the contact's last inbound
// message, with the operator's ephemeral input folded into agent_notes
// for this turn only. The result overwrites the draft slot.
func (s *Server) regenerateDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OperatorInput string `json:"operator_input"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	ctx := r.Context()
	contact := contactParam(r)

	lastInbound, err := s.lastUserMessage(ctx, contact)
	if err != nil {
		writeError(w, http.StatusConflict, "no inbound message to respond to")
		return
	}

	profile, err := s.store.GetProfile(ctx, contact)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "profile read failed")
		return
	}

	ref, err := s.conversationRef(ctx, contact)
	if err != nil {
		writeError(w, http.StatusBadGateway, "conversation unavailable")
		return
	}

	answer, err := s.responder.Respond(ctx, ref, lastInbound, s.promptVars(ctx, contact, profile, req.OperatorInput))
	if err != nil {
		s.logger.Error("draft regeneration failed", "contact", contact, "error", err)
		writeError(w, http.StatusBadGateway, "generation failed")
		return
	}

	if err := s.store.SaveDraft(ctx, contact, answer); err != nil {
		writeError(w, http.StatusInternalServerError, "draft save failed")
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{Text: answer, CreatedAt: time.Now().UTC()})
}

func (s *Server) lastUserMessage(ctx context.Context, contact string) (string, error) {
	msgs, err := s.store.Messages(ctx, contact, 0)
	if err != nil {
		return "", err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == "user" {
			return msgs[i].Body, nil
		}
	}
	return "", store.ErrNotFound
}

// manualSend delivers operator-written text. Sending through this path
// always leaves the contact in manual mode and clears any pending draft.
func (s *Server) manualSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	ctx := r.Context()
	contact := contactParam(r)

	deliveryID, err := s.sender.SendText(ctx, contact, req.Text)
	if err != nil {
		s.logger.Error("manual send failed", "contact", contact, "error", err)
		writeError(w, http.StatusBadGateway, "send failed")
		return
	}

	if err := s.store.EnsureProfile(ctx, contact); err == nil {
		if err := s.store.SetMode(ctx, contact, store.ModeManual); err != nil {
			s.logger.Error("mode switch failed after manual send", "contact", contact, "error", err)
		}
	}
	if err := s.store.ClearDraft(ctx, contact); err != nil {
		s.logger.Error("draft clear failed after manual send", "contact", contact, "error", err)
	}
	if err := s.store.AddMessage(ctx, contact, "agent", req.Text, deliveryID); err != nil {
		s.logger.Error("persist outbound failed", "contact", contact, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"delivery_id": deliveryID})
}

func (s *Server) transcript(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.Messages(r.Context(), contactParam(r), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "transcript read failed")
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

type profileResponse struct {
	PhoneNumber   string     `json:"phone_number"`
	Name          string     `json:"name"`
	LastName      string     `json:"last_name"`
	Company       string     `json:"company"`
	Email         string     `json:"email"`
	Complete      bool       `json:"complete"`
	MissingFields []string   `json:"missing_fields"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context(), contactParam(r))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown contact")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "profile read failed")
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		PhoneNumber:   p.Contact,
		Name:          p.Info.Name,
		LastName:      p.Info.LastName,
		Company:       p.Info.Company,
		Email:         p.Info.Email,
		Complete:      p.Complete,
		MissingFields: p.Info.MissingFields(),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		CompletedAt:   p.CompletedAt,
	})
}

// patchProfile applies operator edits. Absent fields are untouched;
// explicit values, empty included, overwrite.
func (s *Server) patchProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     *string `json:"name"`
		LastName *string `json:"last_name"`
		Company  *string `json:"company"`
		Email    *string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ctx := r.Context()
	contact := contactParam(r)
	if err := s.store.EnsureProfile(ctx, contact); err != nil {
		writeError(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	if err := s.store.SetProfileFields(ctx, contact, req.Name, req.LastName, req.Company, req.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "profile update failed")
		return
	}

	s.getProfile(w, r)
}

func (s *Server) getNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.store.GetNotes(r.Context(), contactParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "notes read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"notes": notes})
}

func (s *Server) setNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ctx := r.Context()
	contact := contactParam(r)
	if err := s.store.EnsureProfile(ctx, contact); err != nil {
		writeError(w, http.StatusInternalServerError, "notes update failed")
		return
	}
	if err := s.store.SetNotes(ctx, contact, req.Notes); err != nil {
		writeError(w, http.StatusInternalServerError, "notes update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"notes": req.Notes})
}
