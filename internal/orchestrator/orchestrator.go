// Package orchestrator drives the AI backend's tool-calling loop and
// returns settled reply text for a turn.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scriba-ai/scriba/internal/openai"
)

// ErrTooManyRounds aborts a turn whose tool loop never settles. The
// conversation itself stays valid for the next message.
var ErrTooManyRounds = errors.New("tool round limit exceeded")

// ErrCorrelation marks a protocol-level mismatch between a tool
// invocation and its result tag. Fatal for the turn only.
var ErrCorrelation = errors.New("tool call correlation mismatch")

// Backend is the slice of the AI client the orchestrator needs.
type Backend interface {
	CreateResponse(ctx context.Context, req openai.ResponseRequest) (*openai.Response, error)
}

type Orchestrator struct {
	ai        Backend
	registry  *Registry
	promptID  string
	maxRounds int
	logger    *slog.Logger
}

func New(ai Backend, registry *Registry, promptID string, maxRounds int, logger *slog.Logger) *Orchestrator {
	if maxRounds <= 0 {
		maxRounds = 5
	}
	return &Orchestrator{
		ai:        ai,
		registry:  registry,
		promptID:  promptID,
		maxRounds: maxRounds,
		logger:    logger,
	}
}

// Respond runs one conversational turn: the inbound text goes out with
// the contact's conversation handle, the variable bag and the registered
// tool set; requested tools are executed in the order listed and only
// their outputs are sent back (the handle already retains the
// invocations). The loop ends when a response carries no further
// invocations.
//
// vars always gains an "agent_notes" key; callers that have no notes get
// an empty string rather than an absent variable.
func (o *Orchestrator) Respond(ctx context.Context, conversationRef, text string, vars map[string]string) (string, error) {
	if vars == nil {
		vars = make(map[string]string)
	}
	if _, ok := vars["agent_notes"]; !ok {
		vars["agent_notes"] = ""
	}

	input := []openai.InputItem{openai.UserMessage(text)}

	for round := 0; round < o.maxRounds; round++ {
		resp, err := o.ai.CreateResponse(ctx, openai.ResponseRequest{
			ConversationID: conversationRef,
			PromptID:       o.promptID,
			Variables:      vars,
			Input:          input,
			Tools:          o.registry.Definitions(),
		})
		if err != nil {
			return "", fmt.Errorf("ai response: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.OutputText, nil
		}

		outputs := make([]openai.InputItem, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			if call.CallID == "" {
				return "", fmt.Errorf("%w: invocation of %q carries no call id", ErrCorrelation, call.Name)
			}
			o.logger.Debug("executing tool", "tool", call.Name, "call_id", call.CallID, "round", round)
			outputs = append(outputs, openai.ToolOutput(call.CallID, o.execute(ctx, call)))
		}
		input = outputs
	}

	return "", fmt.Errorf("%w (max %d)", ErrTooManyRounds, o.maxRounds)
}

// execute runs one invocation and renders its result as the tool output
// string. Failures, including unknown tool names, become structured
// error outputs so the backend can recover in-context instead of the
// turn dying.
func (o *Orchestrator) execute(ctx context.Context, call openai.ToolCall) string {
	tool, ok := o.registry.Get(call.Name)
	if !ok {
		o.logger.Warn("unknown tool requested", "tool", call.Name)
		return errorOutput("unknown tool: " + call.Name)
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		o.logger.Error("tool execution failed", "tool", call.Name, "error", err)
		return errorOutput(err.Error())
	}

	b, err := json.Marshal(result)
	if err != nil {
		return errorOutput("unencodable tool result: " + err.Error())
	}
	return string(b)
}

func errorOutput(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}
