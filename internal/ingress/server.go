// Package ingress receives WhatsApp webhook deliveries, runs the
// per-message pipeline on a bounded worker pool, and exposes the
// operator control surface.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scriba-ai/scriba/internal/events"
	"github.com/scriba-ai/scriba/internal/extractor"
	"github.com/scriba-ai/scriba/internal/store"
)

// Store is the persistence surface the ingress pipeline and control
// handlers read and write. *store.Store satisfies it.
type Store interface {
	ClaimMessage(ctx context.Context, messageID, contact string) (bool, error)
	ConversationRef(ctx context.Context, contact string) (string, error)
	ClaimConversationRef(ctx context.Context, contact, ref string) (string, error)
	RotateConversationRef(ctx context.Context, contact, ref string) error
	EnsureProfile(ctx context.Context, contact string) error
	GetProfile(ctx context.Context, contact string) (*store.Profile, error)
	MergeProfileInfo(ctx context.Context, contact string, info extractor.ContactInfo) error
	SetProfileFields(ctx context.Context, contact string, name, lastName, company, email *string) error
	GetMode(ctx context.Context, contact string) (store.Mode, error)
	SetMode(ctx context.Context, contact string, mode store.Mode) error
	SaveDraft(ctx context.Context, contact, text string) error
	GetDraft(ctx context.Context, contact string) (*store.Draft, error)
	ClearDraft(ctx context.Context, contact string) error
	GetNotes(ctx context.Context, contact string) (string, error)
	SetNotes(ctx context.Context, contact, notes string) error
	AddMessage(ctx context.Context, contact, sender, body, externalID string) error
	Messages(ctx context.Context, contact string, limit int) ([]store.Message, error)
	UpdateMessageStatus(ctx context.Context, externalID, status string) error
}

// Responder settles one conversational turn.
type Responder interface {
	Respond(ctx context.Context, conversationRef, text string, vars map[string]string) (string, error)
}

// Sender delivers outbound messages on the channel.
type Sender interface {
	SendText(ctx context.Context, recipient, body string) (string, error)
	MarkRead(ctx context.Context, messageID string) error
}

// ProfileExtractor pulls contact fields out of inbound text.
type ProfileExtractor interface {
	Extract(ctx context.Context, message string, current extractor.ContactInfo) (extractor.ContactInfo, error)
}

// CompletionNotifier fires on the profile completion edge.
type CompletionNotifier interface {
	NotifyIfNewlyComplete(ctx context.Context, prev, cur store.Profile) error
}

// ConversationBackend manages server-side conversation handles.
type ConversationBackend interface {
	CreateConversation(ctx context.Context) (string, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Deps carries the collaborators the server orchestrates.
type Deps struct {
	Store     Store
	Responder Responder
	Sender    Sender
	Extractor ProfileExtractor
	Notifier  CompletionNotifier
	AI        ConversationBackend
	Events    *events.Client
	Logger    *slog.Logger
}

type Server struct {
	router      *chi.Mux
	port        int
	verifyToken string
	pool        *Pool

	store     Store
	responder Responder
	sender    Sender
	extractor ProfileExtractor
	notifier  CompletionNotifier
	ai        ConversationBackend
	events    *events.Client
	logger    *slog.Logger
}

func NewServer(port int, verifyToken string, workers, queueSize int, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	s := &Server{
		router:      router,
		port:        port,
		verifyToken: verifyToken,
		pool:        NewPool(workers, queueSize),
		store:       deps.Store,
		responder:   deps.Responder,
		sender:      deps.Sender,
		extractor:   deps.Extractor,
		notifier:    deps.Notifier,
		ai:          deps.AI,
		events:      deps.Events,
		logger:      deps.Logger,
	}

	router.Get("/", s.verifyWebhook)
	router.Post("/", s.receiveWebhook)
	router.Get("/health", s.health)

	router.Route("/api/v1/contacts/{contact}", func(r chi.Router) {
		r.Get("/mode", s.getMode)
		r.Put("/mode", s.setMode)
		r.Get("/draft", s.getDraft)
		r.Delete("/draft", s.clearDraft)
		r.Post("/draft/regenerate", s.regenerateDraft)
		r.Post("/messages", s.manualSend)
		r.Get("/messages", s.transcript)
		r.Get("/profile", s.getProfile)
		r.Patch("/profile", s.patchProfile)
		r.Get("/notes", s.getNotes)
		r.Put("/notes", s.setNotes)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("webhook server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Close drains the worker pool.
func (s *Server) Close() {
	s.pool.Close()
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verifyWebhook answers the channel's subscription handshake.
func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == s.verifyToken && s.verifyToken != "" {
		s.logger.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	s.logger.Warn("webhook verification failed")
	w.WriteHeader(http.StatusForbidden)
}

// receiveWebhook parses a delivery and hands each message to the pool.
// A full queue turns into 503 before anything is marked processed, so
// the channel's redelivery loses nothing.
func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if env.Object != "whatsapp_business_account" {
		w.WriteHeader(http.StatusOK)
		return
	}

	saturated := false
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			for _, status := range change.Value.Statuses {
				if err := s.store.UpdateMessageStatus(r.Context(), status.ID, status.Status); err != nil {
					s.logger.Warn("status update failed", "message_id", status.ID, "error", err)
				}
			}

			for _, msg := range change.Value.Messages {
				msg := msg
				if !s.pool.TrySubmit(func() { s.processMessage(msg) }) {
					saturated = true
				}
			}
		}
	}

	if saturated {
		// Already-queued messages from this delivery are safe: the
		// redelivered copies hit the dedup claim.
		http.Error(w, `{"error":"queue full"}`, http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
