// Package extractor derives structured contact fields from free-text
// messages and merges them monotonically into the stored profile.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scriba-ai/scriba/internal/openai"
)

// ContactInfo is the structured slice of a contact profile the extractor
// manages. Empty string means unknown.
type ContactInfo struct {
	Name     string `json:"name"`
	LastName string `json:"last_name"`
	Company  string `json:"company"`
	Email    string `json:"email"`
}

// Complete reports whether all four required fields are populated.
func (ci ContactInfo) Complete() bool {
	return ci.Name != "" && ci.LastName != "" && ci.Company != "" && ci.Email != ""
}

// MissingFields lists the required fields still unknown, in a fixed order.
func (ci ContactInfo) MissingFields() []string {
	var missing []string
	if ci.Name == "" {
		missing = append(missing, "name")
	}
	if ci.LastName == "" {
		missing = append(missing, "last_name")
	}
	if ci.Company == "" {
		missing = append(missing, "company")
	}
	if ci.Email == "" {
		missing = append(missing, "email")
	}
	return missing
}

// Merge overlays candidate onto current with coalesce-on-non-empty
// semantics: a candidate field wins only when non-empty, so a populated
// field is never erased by a later partial extraction.
func Merge(current, candidate ContactInfo) ContactInfo {
	merged := current
	if v := strings.TrimSpace(candidate.Name); v != "" {
		merged.Name = v
	}
	if v := strings.TrimSpace(candidate.LastName); v != "" {
		merged.LastName = v
	}
	if v := strings.TrimSpace(candidate.Company); v != "" {
		merged.Company = v
	}
	if v := strings.TrimSpace(candidate.Email); v != "" {
		merged.Email = v
	}
	return merged
}

type Extractor struct {
	llm    *openai.Client
	logger *slog.Logger
}

func New(llm *openai.Client, logger *slog.Logger) *Extractor {
	return &Extractor{llm: llm, logger: logger}
}

const systemPrompt = `Extract contact details from the message.
Look for: first name, last name, company name, email address.
%s
Keep fields you cannot find in the message as empty strings.
Never invent values that are not present in the message.`

// contactSchema constrains the structured output to the four fields.
var contactSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":      map[string]any{"type": "string"},
		"last_name": map[string]any{"type": "string"},
		"company":   map[string]any{"type": "string"},
		"email":     map[string]any{"type": "string"},
	},
	"required":             []string{"name", "last_name", "company", "email"},
	"additionalProperties": false,
}

// Extract runs one structured-output pass over message and returns the
// merge of the result onto current. On extraction failure current is
// returned unchanged alongside the error, so a flaky model call never
// loses known fields.
func (e *Extractor) Extract(ctx context.Context, message string, current ContactInfo) (ContactInfo, error) {
	system := fmt.Sprintf(systemPrompt, knownContext(current))

	raw, err := e.llm.CompleteJSON(ctx, system, message, "contact_info", contactSchema)
	if err != nil {
		return current, fmt.Errorf("llm extraction: %w", err)
	}

	var candidate ContactInfo
	if err := json.Unmarshal(raw, &candidate); err != nil {
		e.logger.Error("failed to parse extraction response", "error", err, "raw", string(raw))
		return current, fmt.Errorf("parse extraction: %w", err)
	}

	merged := Merge(current, candidate)

	e.logger.Info("extraction pass complete",
		"complete", merged.Complete(),
		"missing", merged.MissingFields(),
	)
	return merged, nil
}

// knownContext tells the model which fields are already on file so it
// only hunts for the gaps.
func knownContext(current ContactInfo) string {
	var lines []string
	if current.Name != "" {
		lines = append(lines, "First name already known: "+current.Name)
	}
	if current.LastName != "" {
		lines = append(lines, "Last name already known: "+current.LastName)
	}
	if current.Company != "" {
		lines = append(lines, "Company already known: "+current.Company)
	}
	if current.Email != "" {
		lines = append(lines, "Email already known: "+current.Email)
	}
	if len(lines) == 0 {
		return "Nothing is known about this contact yet."
	}
	return strings.Join(lines, "\n")
}
