package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RawPage is the extractor's untrusted output for one page
type RawPage struct {
	Index  int
	Fields map[string]any
	// Text is the raw response, kept for audit
	Text   string
	Failed bool
	// Reason explains why a failed page could not be used
	Reason string
}

// FailedPage marks a page whose extraction produced nothing usable
func FailedPage(index int, text, reason string) RawPage {
	return RawPage{Index: index, Text: text, Failed: true, Reason: reason}
}

// ParsePage decodes the model's response for a page.
// Responses that do not contain a JSON object are returned as failed pages.
func ParsePage(index int, text string) RawPage {
	body, err := extractJSON(text)
	if err != nil {
		return FailedPage(index, text, err.Error())
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return FailedPage(index, text, fmt.Sprintf("unmarshaling json: %v", err))
	}

	switch v := decoded.(type) {
	case map[string]any:
		return RawPage{Index: index, Fields: v, Text: text}
	case []any:
		// Some models answer with a bare list of rows
		return RawPage{Index: index, Fields: map[string]any{"line_items": v}, Text: text}
	default:
		return FailedPage(index, text, "response is not a JSON object")
	}
}

// extractJSON strips markdown fences and surrounding prose from a response.
// The outermost object is preferred; a bare array is used when no object span
// decodes, so brackets in prose do not hide the payload.
func extractJSON(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	object, hasObject := span(text, "{", "}")
	if hasObject && json.Valid(object) {
		return object, nil
	}
	if array, ok := span(text, "[", "]"); ok && json.Valid(array) {
		return array, nil
	}
	if hasObject {
		// Let the decoder report what is wrong with it
		return object, nil
	}
	if strings.Contains(text, "{") || strings.Contains(text, "[") {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	return nil, fmt.Errorf("no JSON object found in response")
}

func span(text, opening, closing string) ([]byte, bool) {
	start := strings.Index(text, opening)
	end := strings.LastIndex(text, closing)
	if start == -1 || end < start {
		return nil, false
	}
	return []byte(text[start : end+1]), true
}
