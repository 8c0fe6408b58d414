// Package whatsapp sends outbound messages through the Meta Graph API.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/scriba-ai/scriba/internal/delivery"
)

const defaultBaseURL = "https://graph.facebook.com"

// maxMessageLen is the Graph API's text body ceiling. Longer replies go
// out as consecutive chunks.
const maxMessageLen = 4000

type Sender struct {
	client  *delivery.Client
	token   string
	phoneID string
	version string
	baseURL string
	logger  *slog.Logger
}

func NewSender(client *delivery.Client, token, phoneID, version string, logger *slog.Logger) *Sender {
	return &Sender{
		client:  client,
		token:   token,
		phoneID: phoneID,
		version: version,
		baseURL: defaultBaseURL,
		logger:  logger,
	}
}

// SetTestTransport redirects API calls to a test server.
func (s *Sender) SetTestTransport(baseURL string) {
	s.baseURL = baseURL
}

func (s *Sender) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", s.baseURL, s.version, s.phoneID)
}

func (s *Sender) header() http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+s.token)
	return h
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText delivers a text reply, splitting bodies over the API ceiling
// into consecutive chunks. Returns the delivery id of the first chunk,
// which is what later status callbacks reference.
func (s *Sender) SendText(ctx context.Context, recipient, body string) (string, error) {
	var firstID string
	for i, chunk := range splitMessage(body) {
		payload := map[string]any{
			"messaging_product": "whatsapp",
			"to":                recipient,
			"type":              "text",
			"text": map[string]any{
				"preview_url": false,
				"body":        chunk,
			},
		}

		result, err := s.client.PostJSON(ctx, s.messagesURL(), s.header(), payload)
		if err != nil {
			return "", fmt.Errorf("send text chunk %d: %w", i, err)
		}

		var resp sendResponse
		if err := json.Unmarshal(result.Body, &resp); err == nil && len(resp.Messages) > 0 && firstID == "" {
			firstID = resp.Messages[0].ID
		}
	}
	return firstID, nil
}

// MarkRead flags an inbound message as read. Best effort; callers log
// and move on.
func (s *Sender) MarkRead(ctx context.Context, messageID string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	if _, err := s.client.PostJSON(ctx, s.messagesURL(), s.header(), payload); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// splitMessage cuts text into chunks of at most maxMessageLen runes,
// never mid-rune.
func splitMessage(text string) []string {
	runes := []rune(text)
	if len(runes) <= maxMessageLen {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); start += maxMessageLen {
		end := start + maxMessageLen
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
