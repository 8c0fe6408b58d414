// Package events publishes lifecycle signals to NATS for downstream
// automation consumers. Publishing is optional; a nil client drops
// everything silently.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects for bot lifecycle signals.
const (
	SubjectMessageReceived  = "scriba.message.received"
	SubjectMessageSent      = "scriba.message.sent"
	SubjectDraftCreated     = "scriba.draft.created"
	SubjectProfileCompleted = "scriba.profile.completed"
)

// MessageEvent describes one inbound or outbound message.
type MessageEvent struct {
	Contact    string `json:"contact"`
	ExternalID string `json:"external_id,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

// ProfileEvent is emitted when a contact's profile reaches completeness.
type ProfileEvent struct {
	Contact string `json:"contact"`
	EventID string `json:"event_id"`
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish emits one event. Safe on a nil client.
func (c *Client) Publish(subject string, data any) error {
	if c == nil {
		return nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.conn.Close()
}
