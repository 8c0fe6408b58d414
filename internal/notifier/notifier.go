// Package notifier posts profile-completion events to the external
// automation webhook.
package notifier

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scriba-ai/scriba/internal/delivery"
	"github.com/scriba-ai/scriba/internal/openai"
	"github.com/scriba-ai/scriba/internal/store"
)

// summaryFallback goes out whenever summary generation fails. The field
// is always present in the payload.
const summaryFallback = "Summary unavailable at the moment. Please refer to the conversation transcript."

// MessageSource reads a contact's transcript from the store of record.
type MessageSource interface {
	Messages(ctx context.Context, contact string, limit int) ([]store.Message, error)
}

// Summarizer is the slice of the AI client used for transcript summaries.
type Summarizer interface {
	CreateResponse(ctx context.Context, req openai.ResponseRequest) (*openai.Response, error)
}

type Notifier struct {
	client     *delivery.Client
	ai         Summarizer
	messages   MessageSource
	webhookURL string
	promptID   string
	logger     *slog.Logger
}

func New(client *delivery.Client, ai Summarizer, messages MessageSource, webhookURL, promptID string, logger *slog.Logger) *Notifier {
	return &Notifier{
		client:     client,
		ai:         ai,
		messages:   messages,
		webhookURL: webhookURL,
		promptID:   promptID,
		logger:     logger,
	}
}

type profileSnapshot struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
	LastName    string `json:"last_name"`
	Company     string `json:"company"`
	Email       string `json:"email"`
}

type completionEvent struct {
	Event             string          `json:"event"`
	EventID           string          `json:"event_id"`
	Timestamp         string          `json:"timestamp"`
	Profile           profileSnapshot `json:"profile"`
	Summary           string          `json:"summary"`
	ConversationHTML  string          `json:"conversation_html"`
	ConversationPlain string          `json:"conversation_plain"`
}

// NotifyIfNewlyComplete fires the automation webhook on an
// incomplete-to-complete transition and on no other. A complete profile
// that stays complete, or one that regresses, produces nothing.
func (n *Notifier) NotifyIfNewlyComplete(ctx context.Context, prev, cur store.Profile) error {
	if prev.Complete || !cur.Complete {
		return nil
	}
	if n.webhookURL == "" {
		n.logger.Warn("automation webhook not configured, skipping completion event", "contact", cur.Contact)
		return nil
	}

	msgs, err := n.messages.Messages(ctx, cur.Contact, 0)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	if len(msgs) == 0 {
		n.logger.Warn("no transcript for completed profile", "contact", cur.Contact)
		return nil
	}

	plain := formatPlain(msgs, cur)
	event := completionEvent{
		Event:     "profile.completed",
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Profile: profileSnapshot{
			PhoneNumber: cur.Contact,
			Name:        cur.Info.Name,
			LastName:    cur.Info.LastName,
			Company:     cur.Info.Company,
			Email:       cur.Info.Email,
		},
		Summary:           n.summarize(ctx, plain),
		ConversationHTML:  formatHTML(msgs, cur),
		ConversationPlain: plain,
	}

	header := make(http.Header)
	header.Set("User-Agent", "scriba/1.0")
	if _, err := n.client.PostJSON(ctx, n.webhookURL, header, event); err != nil {
		return fmt.Errorf("post completion event: %w", err)
	}

	n.logger.Info("profile completion event delivered", "contact", cur.Contact, "event_id", event.EventID)
	return nil
}

// summarize asks the AI backend for a transcript summary. Failure is
// absorbed into the fixed fallback so the payload shape never varies.
func (n *Notifier) summarize(ctx context.Context, transcript string) string {
	if n.ai == nil || n.promptID == "" {
		return summaryFallback
	}

	resp, err := n.ai.CreateResponse(ctx, openai.ResponseRequest{
		PromptID:  n.promptID,
		Variables: map[string]string{"conv_history": transcript},
		Input:     []openai.InputItem{openai.UserMessage("Generate a summary of this conversation")},
	})
	if err != nil || resp.OutputText == "" {
		n.logger.Warn("summary generation failed, using fallback", "error", err)
		return summaryFallback
	}
	return resp.OutputText
}

func displayName(p store.Profile) string {
	name := p.Info.Name
	if name == "" {
		name = "User"
	}
	if p.Info.LastName != "" {
		name += " " + p.Info.LastName
	}
	return name
}

func formatTimestamp(t time.Time) string {
	return t.Format("02/01/2006 15:04")
}

// formatHTML renders the transcript as chat bubbles: contact on the
// right, agent on the left. Every user-supplied string is escaped.
func formatHTML(msgs []store.Message, p store.Profile) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial, sans-serif; max-width: 800px; margin: 20px 0;">`)
	b.WriteString(`<h3 style="margin: 0 0 12px 0;">WhatsApp Conversation</h3>`)
	b.WriteString(`<div style="border: 1px solid #ddd; border-radius: 5px; padding: 16px; background: #fff;">`)

	userName := html.EscapeString(displayName(p))
	for _, m := range msgs {
		body := strings.ReplaceAll(html.EscapeString(m.Body), "\n", "<br>")
		ts := html.EscapeString(formatTimestamp(m.CreatedAt))

		if m.Sender == "user" {
			b.WriteString(`<div style="margin: 10px 0; display: flex; justify-content: flex-end;">`)
			b.WriteString(`<div style="background: #dcf8c6; padding: 10px 15px; border-radius: 10px; max-width: 70%;">`)
			fmt.Fprintf(&b, `<div style="font-size: 12px; color: #666; margin-bottom: 5px;">%s - %s</div>`, userName, ts)
		} else {
			b.WriteString(`<div style="margin: 10px 0; display: flex; justify-content: flex-start;">`)
			b.WriteString(`<div style="background: #f0f0f0; padding: 10px 15px; border-radius: 10px; max-width: 70%;">`)
			fmt.Fprintf(&b, `<div style="font-size: 12px; color: #666; margin-bottom: 5px;">Assistant - %s</div>`, ts)
		}
		fmt.Fprintf(&b, `<div>%s</div></div></div>`, body)
	}

	b.WriteString(`</div></div>`)
	return b.String()
}

func formatPlain(msgs []store.Message, p store.Profile) string {
	userName := displayName(p)
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		sender := "Assistant"
		if m.Sender == "user" {
			sender = userName
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", formatTimestamp(m.CreatedAt), sender, m.Body))
	}
	return strings.Join(lines, "\n")
}
