package ingress

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/scriba-ai/scriba/internal/events"
	"github.com/scriba-ai/scriba/internal/store"
)

// Fixed channel copy. Turn failures never leak internal detail.
const (
	nonTextAck        = "I received your message! Currently I can only process text messages. Please send me a text message and I'll be happy to help!"
	genericFailure    = "I encountered an error while processing your message. Please try again or type /reset to start over."
	resetConfirmation = "Conversation reset! Let's start fresh. How can I help you?"
)

// pipelineTimeout bounds one message's worth of work, AI round trips
// included.
const pipelineTimeout = 2 * time.Minute

// processMessage runs the full pipeline for one inbound message. It
// executes on a pool worker, detached from the webhook request.
func (s *Server) processMessage(msg InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
	defer cancel()

	contact := msg.From

	// Claim before any side effect. Losing the claim means another
	// delivery of the same message already owns the work.
	fresh, err := s.store.ClaimMessage(ctx, msg.ID, contact)
	if err != nil {
		s.logger.Error("dedup claim failed", "message_id", msg.ID, "error", err)
		return
	}
	if !fresh {
		s.logger.Debug("duplicate delivery absorbed", "message_id", msg.ID)
		return
	}

	if err := s.store.EnsureProfile(ctx, contact); err != nil {
		s.logger.Error("ensure profile failed", "contact", contact, "error", err)
		return
	}

	if err := s.sender.MarkRead(ctx, msg.ID); err != nil {
		s.logger.Warn("mark read failed", "message_id", msg.ID, "error", err)
	}

	if msg.Type != "text" {
		s.logger.Info("non-text message acknowledged", "contact", contact, "type", msg.Type)
		s.reply(ctx, contact, nonTextAck)
		return
	}

	text := msg.Text.Body
	if err := s.store.AddMessage(ctx, contact, "user", text, msg.ID); err != nil {
		s.logger.Error("persist inbound failed", "contact", contact, "error", err)
	}
	s.publish(events.SubjectMessageReceived, events.MessageEvent{Contact: contact, ExternalID: msg.ID})

	if strings.TrimSpace(text) == "/reset" {
		s.resetConversation(ctx, contact)
		return
	}

	profile := s.updateProfile(ctx, contact, text)

	ref, err := s.conversationRef(ctx, contact)
	if err != nil {
		s.logger.Error("conversation handle unavailable", "contact", contact, "error", err)
		s.turnFailed(ctx, contact)
		return
	}

	answer, err := s.responder.Respond(ctx, ref, text, s.promptVars(ctx, contact, profile, ""))
	if err != nil {
		s.logger.Error("turn failed", "contact", contact, "error", err)
		s.turnFailed(ctx, contact)
		return
	}

	mode, err := s.store.GetMode(ctx, contact)
	if err != nil {
		s.logger.Error("mode read failed", "contact", contact, "error", err)
		return
	}

	if mode == store.ModeManual {
		if err := s.store.SaveDraft(ctx, contact, answer); err != nil {
			s.logger.Error("draft save failed", "contact", contact, "error", err)
			return
		}
		s.publish(events.SubjectDraftCreated, events.MessageEvent{Contact: contact, Mode: string(mode)})
		s.logger.Info("draft stored", "contact", contact)
		return
	}

	s.reply(ctx, contact, answer)
}

// reply sends text and records it on the transcript.
func (s *Server) reply(ctx context.Context, contact, text string) {
	deliveryID, err := s.sender.SendText(ctx, contact, text)
	if err != nil {
		s.logger.Error("send failed", "contact", contact, "error", err)
		return
	}
	if err := s.store.AddMessage(ctx, contact, "agent", text, deliveryID); err != nil {
		s.logger.Error("persist outbound failed", "contact", contact, "error", err)
	}
	s.publish(events.SubjectMessageSent, events.MessageEvent{Contact: contact, ExternalID: deliveryID})
}

// turnFailed sends the fixed failure copy, but only in auto mode. A
// manual-mode contact is already in an operator's hands.
func (s *Server) turnFailed(ctx context.Context, contact string) {
	mode, err := s.store.GetMode(ctx, contact)
	if err != nil || mode == store.ModeManual {
		return
	}
	s.reply(ctx, contact, genericFailure)
}

// updateProfile runs extraction over the inbound text, persists the
// merge and fires the completion notifier on the edge. Extraction
// failure keeps the stored profile untouched. Returns the freshest
// profile available for the prompt variable bag.
func (s *Server) updateProfile(ctx context.Context, contact, text string) *store.Profile {
	prev, err := s.store.GetProfile(ctx, contact)
	if err != nil {
		s.logger.Error("profile read failed", "contact", contact, "error", err)
		return nil
	}

	merged, err := s.extractor.Extract(ctx, text, prev.Info)
	if err != nil {
		s.logger.Warn("extraction failed, profile unchanged", "contact", contact, "error", err)
		return prev
	}
	if merged == prev.Info {
		return prev
	}

	if err := s.store.MergeProfileInfo(ctx, contact, merged); err != nil {
		s.logger.Error("profile merge failed", "contact", contact, "error", err)
		return prev
	}

	cur, err := s.store.GetProfile(ctx, contact)
	if err != nil {
		s.logger.Error("profile reread failed", "contact", contact, "error", err)
		return prev
	}

	if err := s.notifier.NotifyIfNewlyComplete(ctx, *prev, *cur); err != nil {
		s.logger.Error("completion notification failed", "contact", contact, "error", err)
	}
	if !prev.Complete && cur.Complete {
		s.publish(events.SubjectProfileCompleted, events.ProfileEvent{Contact: contact})
	}
	return cur
}

// conversationRef returns the contact's handle, creating one on first
// contact. The claim is an atomic upsert; when a concurrent worker wins
// the race, the freshly created backend conversation is discarded.
func (s *Server) conversationRef(ctx context.Context, contact string) (string, error) {
	ref, err := s.store.ConversationRef(ctx, contact)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	created, err := s.ai.CreateConversation(ctx)
	if err != nil {
		return "", err
	}

	winner, err := s.store.ClaimConversationRef(ctx, contact, created)
	if err != nil {
		return "", err
	}
	if winner != created {
		if err := s.ai.DeleteConversation(ctx, created); err != nil {
			s.logger.Warn("orphan conversation cleanup failed", "error", err)
		}
	}
	return winner, nil
}

// resetConversation rotates the contact's handle and confirms.
func (s *Server) resetConversation(ctx context.Context, contact string) {
	old, err := s.store.ConversationRef(ctx, contact)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("reset failed", "contact", contact, "error", err)
		s.turnFailed(ctx, contact)
		return
	}

	created, err := s.ai.CreateConversation(ctx)
	if err != nil {
		s.logger.Error("reset failed", "contact", contact, "error", err)
		s.turnFailed(ctx, contact)
		return
	}
	if err := s.store.RotateConversationRef(ctx, contact, created); err != nil {
		s.logger.Error("reset failed", "contact", contact, "error", err)
		s.turnFailed(ctx, contact)
		return
	}

	if old != "" {
		if err := s.ai.DeleteConversation(ctx, old); err != nil {
			s.logger.Warn("old conversation cleanup failed", "contact", contact, "error", err)
		}
	}

	s.logger.Info("conversation reset", "contact", contact)
	s.reply(ctx, contact, resetConfirmation)
}

// promptVars builds the variable bag for a turn: profile fields plus
// agent_notes, which is always present. operatorInput, when set, is
// appended to the stored notes for this turn only and never persisted.
func (s *Server) promptVars(ctx context.Context, contact string, profile *store.Profile, operatorInput string) map[string]string {
	vars := map[string]string{
		"name":           "",
		"last_name":      "",
		"company":        "",
		"email":          "",
		"missing_fields": "",
		"agent_notes":    "",
	}
	if profile != nil {
		vars["name"] = profile.Info.Name
		vars["last_name"] = profile.Info.LastName
		vars["company"] = profile.Info.Company
		vars["email"] = profile.Info.Email
		vars["missing_fields"] = strings.Join(profile.Info.MissingFields(), ", ")
	}

	notes, err := s.store.GetNotes(ctx, contact)
	if err != nil {
		s.logger.Warn("notes read failed", "contact", contact, "error", err)
	}
	vars["agent_notes"] = joinNotes(notes, operatorInput)
	return vars
}

// notesDelimiter separates persisted notes from ephemeral operator
// input during draft regeneration.
const notesDelimiter = "\n---\n"

func joinNotes(notes, operatorInput string) string {
	if operatorInput == "" {
		return notes
	}
	if notes == "" {
		return operatorInput
	}
	return notes + notesDelimiter + operatorInput
}

func (s *Server) publish(subject string, data any) {
	if err := s.events.Publish(subject, data); err != nil {
		s.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}
