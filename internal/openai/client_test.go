package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateResponse_ParsesTextAndToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("expected /responses, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		json.Unmarshal(body, &req)
		if req["conversation"] != "conv_123" {
			t.Errorf("expected conversation conv_123, got %v", req["conversation"])
		}
		prompt, _ := req["prompt"].(map[string]any)
		if prompt == nil || prompt["id"] != "pmpt_abc" {
			t.Errorf("expected prompt id pmpt_abc, got %v", req["prompt"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id": "resp_1",
			"output": []map[string]any{
				{
					"type":      "function_call",
					"call_id":   "call_A",
					"name":      "get_latest_order",
					"arguments": `{"contact":"+391234"}`,
				},
				{
					"type": "message",
					"content": []map[string]any{
						{"type": "output_text", "text": "Checking your order."},
					},
				},
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "gpt-4.1")
	c.SetTestTransport(server.URL)

	resp, err := c.CreateResponse(context.Background(), ResponseRequest{
		ConversationID: "conv_123",
		PromptID:       "pmpt_abc",
		Variables:      map[string]string{"agent_notes": ""},
		Input:          []InputItem{UserMessage("where is my order?")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.OutputText != "Checking your order." {
		t.Errorf("unexpected output text %q", resp.OutputText)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.CallID != "call_A" || tc.Name != "get_latest_order" {
		t.Errorf("unexpected tool call %+v", tc)
	}
}

func TestCreateResponse_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "invalid_request_error", "message": "bad prompt"},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "gpt-4.1")
	c.SetTestTransport(server.URL)

	_, err := c.CreateResponse(context.Background(), ResponseRequest{Input: []InputItem{UserMessage("hi")}})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestCreateConversation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations" {
			t.Errorf("expected /conversations, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "conv_new"})
	}))
	defer server.Close()

	c := NewClient("test-key", "gpt-4.1")
	c.SetTestTransport(server.URL)

	id, err := c.CreateConversation(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "conv_new" {
		t.Errorf("expected conv_new, got %q", id)
	}
}

func TestCompleteJSON_ReturnsRawSchemaOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		json.Unmarshal(body, &req)
		text, _ := req["text"].(map[string]any)
		if text == nil {
			t.Error("expected text.format in request")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id": "resp_2",
			"output": []map[string]any{
				{
					"type": "message",
					"content": []map[string]any{
						{"type": "output_text", "text": `{"name":"Mario"}`},
					},
				},
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "gpt-4o")
	c.SetTestTransport(server.URL)

	raw, err := c.CompleteJSON(context.Background(), "extract", "I'm Mario", "contact_info", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if out.Name != "Mario" {
		t.Errorf("expected Mario, got %q", out.Name)
	}
}
