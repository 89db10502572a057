package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/manash/prodstudio/pkg/models"
)

// DecodeSuggestion parses the analyzer's JSON object. Categories that are
// missing or not an array of strings decode as empty. Only a payload that is
// not a JSON object fails.
func DecodeSuggestion(raw string) (models.SuggestionResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: null suggestion payload", ErrMalformedResponse)
	}

	result := make(models.SuggestionResult, len(models.Categories()))
	for _, cat := range models.Categories() {
		result[cat] = decodeIDs(fields[string(cat)])
	}
	return result, nil
}

func decodeIDs(raw json.RawMessage) []string {
	ids := []string{}
	if len(raw) == 0 {
		return ids
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return ids
	}
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			ids = append(ids, s)
		}
	}
	return ids
}

type briefPayload struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
	Text   string `json:"text"`
}

// DecodeBriefs parses a JSON array of {title, prompt}. Exactly BriefCount
// complete briefs are required.
func DecodeBriefs(raw string) ([]models.Brief, error) {
	var items []briefPayload
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(items) != BriefCount {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBriefCount, len(items), BriefCount)
	}

	briefs := make([]models.Brief, 0, len(items))
	for i, item := range items {
		text := item.Prompt
		if text == "" {
			text = item.Text
		}
		title := strings.TrimSpace(item.Title)
		text = strings.TrimSpace(text)
		if title == "" || text == "" {
			return nil, fmt.Errorf("%w: brief %d is incomplete", ErrMalformedResponse, i+1)
		}
		briefs = append(briefs, models.Brief{Title: title, Text: text})
	}
	return briefs, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
