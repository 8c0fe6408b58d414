package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scriba-ai/scriba/internal/delivery"
)

func testSender(t *testing.T, handler http.HandlerFunc) (*Sender, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := delivery.New(logger, delivery.WithBackoff([]time.Duration{time.Millisecond}))

	s := NewSender(client, "tok", "12345", "v22.0", logger)
	s.SetTestTransport(srv.URL)
	return s, srv
}

func TestSendText_SingleMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]any

	s, _ := testSender(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		fmt.Fprint(w, `{"messages":[{"id":"wamid.OUT1"}]}`)
	})

	id, err := s.SendText(context.Background(), "391234567890", "Ciao!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "wamid.OUT1" {
		t.Errorf("expected delivery id wamid.OUT1, got %q", id)
	}
	if gotPath != "/v22.0/12345/messages" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotPayload["to"] != "391234567890" || gotPayload["type"] != "text" {
		t.Errorf("unexpected payload %v", gotPayload)
	}
	text, _ := gotPayload["text"].(map[string]any)
	if text["body"] != "Ciao!" {
		t.Errorf("unexpected body %v", text["body"])
	}
}

func TestSendText_ChunksLongBody(t *testing.T) {
	var bodies []string
	s, _ := testSender(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Text struct {
				Body string `json:"body"`
			} `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		bodies = append(bodies, payload.Text.Body)
		fmt.Fprintf(w, `{"messages":[{"id":"wamid.OUT%d"}]}`, len(bodies))
	})

	long := strings.Repeat("a", 4000) + strings.Repeat("b", 4000) + "c"
	id, err := s.SendText(context.Background(), "391234567890", long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "wamid.OUT1" {
		t.Errorf("expected the first chunk's id, got %q", id)
	}
	if len(bodies) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(bodies))
	}
	if bodies[0] != strings.Repeat("a", 4000) || bodies[2] != "c" {
		t.Errorf("chunk boundaries wrong: lens %d/%d/%d", len(bodies[0]), len(bodies[1]), len(bodies[2]))
	}
}

func TestSplitMessage_RuneSafe(t *testing.T) {
	text := strings.Repeat("è", 4001)
	chunks := splitMessage(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if !strings.HasPrefix(chunk, "è") || !strings.HasSuffix(chunk, "è") {
			t.Errorf("chunk %d split mid-rune", i)
		}
	}
	if got := len([]rune(chunks[0])); got != 4000 {
		t.Errorf("expected 4000 runes in first chunk, got %d", got)
	}
}

func TestMarkRead(t *testing.T) {
	var gotPayload map[string]any
	s, _ := testSender(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		fmt.Fprint(w, `{"success":true}`)
	})

	if err := s.MarkRead(context.Background(), "wamid.IN1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPayload["status"] != "read" || gotPayload["message_id"] != "wamid.IN1" {
		t.Errorf("unexpected payload %v", gotPayload)
	}
}

func TestSendText_SurfacesExhaustion(t *testing.T) {
	s, _ := testSender(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	if _, err := s.SendText(context.Background(), "391234567890", "hello"); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
}
