package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scriba-ai/scriba/internal/delivery"
	"github.com/scriba-ai/scriba/internal/extractor"
	"github.com/scriba-ai/scriba/internal/openai"
	"github.com/scriba-ai/scriba/internal/store"
)

type fakeMessages struct {
	msgs []store.Message
}

func (f *fakeMessages) Messages(_ context.Context, _ string, _ int) ([]store.Message, error) {
	return f.msgs, nil
}

type fakeSummarizer struct {
	text string
	err  error
}

func (f *fakeSummarizer) CreateResponse(_ context.Context, _ openai.ResponseRequest) (*openai.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &openai.Response{OutputText: f.text}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProfile(complete bool) store.Profile {
	return store.Profile{
		Contact: "+391234",
		Info: extractor.ContactInfo{
			Name:     "Mario",
			LastName: "Rossi",
			Company:  "ACME Srl",
			Email:    "mario@acme.it",
		},
		Complete: complete,
	}
}

func transcript() []store.Message {
	return []store.Message{
		{Sender: "user", Body: "Ciao", CreatedAt: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)},
		{Sender: "agent", Body: "Hello Mario", CreatedAt: time.Date(2026, 8, 30, 9, 1, 0, 0, time.UTC)},
	}
}

func newTestNotifier(t *testing.T, handler http.HandlerFunc, sum Summarizer) *Notifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := delivery.New(testLogger(), delivery.WithBackoff([]time.Duration{time.Millisecond}))
	return New(client, sum, &fakeMessages{msgs: transcript()}, srv.URL, "pmpt_sum", testLogger())
}

func TestNotify_FiresOnlyOnCompletionEdge(t *testing.T) {
	var calls int
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}, &fakeSummarizer{text: "short summary"})

	ctx := context.Background()
	incomplete := testProfile(false)
	complete := testProfile(true)

	// incomplete -> complete -> incomplete -> complete fires exactly twice
	steps := []struct{ prev, cur store.Profile }{
		{incomplete, complete},
		{complete, complete},
		{complete, incomplete},
		{incomplete, complete},
	}
	for _, s := range steps {
		if err := n.NotifyIfNewlyComplete(ctx, s.prev, s.cur); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 webhook calls, got %d", calls)
	}
}

func TestNotify_PayloadShape(t *testing.T) {
	var event completionEvent
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&event)
		w.WriteHeader(http.StatusOK)
	}, &fakeSummarizer{text: "they asked about an order"})

	err := n.NotifyIfNewlyComplete(context.Background(), testProfile(false), testProfile(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.Event != "profile.completed" {
		t.Errorf("unexpected event name %q", event.Event)
	}
	if event.EventID == "" {
		t.Error("event_id must be set")
	}
	if event.Profile.PhoneNumber != "+391234" || event.Profile.Company != "ACME Srl" {
		t.Errorf("unexpected profile snapshot %+v", event.Profile)
	}
	if event.Summary != "they asked about an order" {
		t.Errorf("unexpected summary %q", event.Summary)
	}
	if !strings.Contains(event.ConversationPlain, "Mario Rossi: Ciao") {
		t.Errorf("plain transcript missing user line: %q", event.ConversationPlain)
	}
	if !strings.Contains(event.ConversationHTML, "Hello Mario") {
		t.Errorf("html transcript missing agent line")
	}
}

func TestNotify_SummaryFallback(t *testing.T) {
	var event completionEvent
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&event)
		w.WriteHeader(http.StatusOK)
	}, &fakeSummarizer{err: errors.New("backend down")})

	err := n.NotifyIfNewlyComplete(context.Background(), testProfile(false), testProfile(true))
	if err != nil {
		t.Fatalf("summary failure must not fail the notification: %v", err)
	}
	if event.Summary != summaryFallback {
		t.Errorf("expected fallback summary, got %q", event.Summary)
	}
}

func TestNotify_EscapesUserText(t *testing.T) {
	hostile := []store.Message{
		{Sender: "user", Body: "<script>alert(1)</script>", CreatedAt: time.Now()},
	}
	p := testProfile(true)
	p.Info.Name = `Mario "<b>"`

	got := formatHTML(hostile, p)
	if strings.Contains(got, "<script>") {
		t.Error("message body not escaped")
	}
	if !strings.Contains(got, "&lt;script&gt;") {
		t.Error("expected escaped script tag")
	}
	if strings.Contains(got, `"<b>"`) {
		t.Error("profile name not escaped")
	}
}

func TestNotify_WebhookFailureSurfaces(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}, &fakeSummarizer{text: "s"})

	err := n.NotifyIfNewlyComplete(context.Background(), testProfile(false), testProfile(true))
	if !errors.Is(err, delivery.ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}
