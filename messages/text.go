package messages

import "strings"

// ExtractText reduces an inbound message value to display text.
//
// A plain string is used verbatim. For an object, a string content field wins;
// a content list contributes its text parts joined by newlines; otherwise a
// text field is used; anything else is serialized whole.
func ExtractText(message any) string {
	switch v := message.(type) {
	case string:
		return v
	case map[string]any:
		switch content := v["content"].(type) {
		case string:
			return content
		case []any:
			return joinParts(content, "text", "text")
		}
		if text, ok := v["text"].(string); ok {
			return text
		}
	}

	data, err := api.MarshalToString(message)
	if err != nil {
		return ""
	}
	return data
}

// ExtractThinking returns the auxiliary reasoning text of a message, if any
func ExtractThinking(message any) string {
	obj, ok := message.(map[string]any)
	if !ok {
		return ""
	}
	if thinking, ok := obj["thinking"].(string); ok {
		return thinking
	}
	if parts, ok := obj["content"].([]any); ok {
		return joinParts(parts, "thinking", "thinking")
	}
	return ""
}

func joinParts(parts []any, partType, field string) string {
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		obj, ok := part.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := obj["type"].(string); t != partType {
			continue
		}
		if text, ok := obj[field].(string); ok {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n")
}
