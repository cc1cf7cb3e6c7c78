package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// messageKeys are looked up, in order, when the payload is an envelope.
// "message" and "edited_message" cover chat updates whose text is nested.
var messageKeys = []string{"text", "message", "edited_message", "content", "body", "caption"}

const maxEnvelopeDepth = 8

// ExtractMessage pulls the plain text out of an inbound payload. It accepts a
// string, raw JSON bytes or an already-decoded envelope such as a chat update.
func ExtractMessage(payload any) (string, error) {
	text := extract(payload, 0)
	if text == "" {
		return "", fmt.Errorf("ExtractMessage: %w", ErrEmptyMessage)
	}
	return text, nil
}

func extract(v any, depth int) string {
	if depth > maxEnvelopeDepth {
		return ""
	}
	switch p := v.(type) {
	case nil:
		return ""
	case string:
		return extractString(p, depth, false)
	case []byte:
		return extractString(string(p), depth, true)
	case json.RawMessage:
		return extractString(string(p), depth, true)
	case json.Number, bool:
		return 
	case map[string]any:
		for _, key := range messageKeys {
			if inner, ok := p[key]; ok {
				if text := extract(inner, depth+1); text != "" {
					return text
				}
			}
		}
		return ""
	case []any:
		for _, item := range p {
			if text := extract(item, depth+1); text != "" {
				return text
			}
		}
		return ""
	case fmt.Stringer:
		return strings.TrimSpace(p.String())
	default:
		return ""
	}
}

// extractString treats a string that holds a JSON object, array or string
// as an envelope and anything else as the message itself. Raw JSON bodies
// are decoded whatever their first byte, so a null, number or bool there
// carries no text.
func extractString(s string, depth int, raw bool) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !raw && s[0] != '{' && s[0] != '[' && s[0] != '"' {
		return s
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil || dec.More() {
		return s
	}
	if str, ok := decoded.(string); ok {
		return strings.TrimSpace(str)
	}
	return extract(decoded, depth+1)
}
