// Package openai is a minimal client for the OpenAI Conversations and
// Responses APIs: server-side conversation handles, prompt-template
// responses with variables and function tools, and structured JSON output.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// SetTestTransport redirects API calls to a test server.
func (c *Client) SetTestTransport(baseURL string) {
	c.baseURL = baseURL
}

// ToolDef describes one function tool in Responses API format.
type ToolDef struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// InputItem is a single entry in a Responses API input array: either a
// role/content message or a function_call_output carrying a tool result.
type InputItem struct {
	Type    string `json:"type,omitempty"`
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	CallID  string `json:"call_id,omitempty"`
	Output  string `json:"output,omitempty"`
}

// UserMessage builds a plain user input item.
func UserMessage(text string) InputItem {
	return InputItem{Type: "message", Role: "user", Content: text}
}

// ToolOutput builds a function_call_output item tagged with the
// invocation's correlation id.
func ToolOutput(callID, output string) InputItem {
	return InputItem{Type: "function_call_output", CallID: callID, Output: output}
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments json.RawMessage
}

// Response is the settled view of one Responses API exchange.
type Response struct {
	ID         string
	OutputText string
	ToolCalls  []ToolCall
}

// ResponseRequest drives one exchange inside a server-side conversation.
type ResponseRequest struct {
	ConversationID string
	PromptID       string
	Variables      map[string]string
	Input          []InputItem
	Tools          []ToolDef
}

type promptConfig struct {
	ID        string            `json:"id"`
	Variables map[string]string `json:"variables,omitempty"`
}

type responsesRequest struct {
	Model        string        `json:"model"`
	Prompt       *promptConfig `json:"prompt,omitempty"`
	Conversation string        `json:"conversation,omitempty"`
	Input        []InputItem   `json:"input"`
	Tools        []ToolDef     `json:"tools,omitempty"`
	Text         *textFormat   `json:"text,omitempty"`
}

type textFormat struct {
	Format jsonSchemaFormat `json:"format"`
}

type jsonSchemaFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

// responsesResponse mirrors the output array of the Responses API. Text
// lives in message items as output_text parts; tool invocations arrive as
// function_call items with a correlation call_id.
type responsesResponse struct {
	ID     string `json:"id"`
	Output []struct {
		Type      string `json:"type"`
		CallID    string `json:"call_id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
		Content   []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateResponse runs one exchange and returns the settled text plus any
// requested tool invocations, in the order the model listed them.
func (c *Client) CreateResponse(ctx context.Context, req ResponseRequest) (*Response, error) {
	body := responsesRequest{
		Model:        c.model,
		Conversation: req.ConversationID,
		Input:        req.Input,
		Tools:        req.Tools,
	}
	if req.PromptID != "" {
		body.Prompt = &promptConfig{ID: req.PromptID, Variables: req.Variables}
	}

	var apiResp responsesResponse
	if err := c.post(ctx, "/responses", body, &apiResp); err != nil {
		return nil, err
	}

	resp := &Response{ID: apiResp.ID}
	for _, item := range apiResp.Output {
		switch item.Type {
		case "function_call":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				CallID:    item.CallID,
				Name:      item.Name,
				Arguments: json.RawMessage(item.Arguments),
			})
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" {
					resp.OutputText += part.Text
				}
			}
		}
	}
	return resp, nil
}

// CompleteJSON runs a single schema-constrained exchange outside any
// conversation and returns the raw JSON output for the caller to decode.
func (c *Client) CompleteJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) ([]byte, error) {
	body := responsesRequest{
		Model: c.model,
		Input: []InputItem{
			{Type: "message", Role: "system", Content: system},
			{Type: "message", Role: "user", Content: user},
		},
		Text: &textFormat{Format: jsonSchemaFormat{
			Type:   "json_schema",
			Name:   schemaName,
			Schema: schema,
			Strict: true,
		}},
	}

	var apiResp responsesResponse
	if err := c.post(ctx, "/responses", body, &apiResp); err != nil {
		return nil, err
	}

	for _, item := range apiResp.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				return []byte(part.Text), nil
			}
		}
	}
	return nil, fmt.Errorf("empty structured response")
}

// CreateConversation allocates a server-side context handle. History
// accumulates behind the handle, so turns never resend prior messages.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/conversations", map[string]any{}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("conversation response missing id")
	}
	return resp.ID, nil
}

// DeleteConversation drops a server-side handle. Used on explicit reset.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/conversations/"+conversationID, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete conversation: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return fmt.Errorf("api error %d: %s — %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
