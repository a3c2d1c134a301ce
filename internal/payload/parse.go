package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrParse marks failures to extract a valid payload from backend output.
// Callers treat these as per-item failures, never run aborts.
var ErrParse = errors.New("parse error")

// Error describes why backend output could not be turned into a Payload.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "parse error: " + e.Reason }

func (e *Error) Is(target error) bool { return target == ErrParse }

// Parse extracts a Payload from raw backend output and validates it
// against the declared muscle schema. Backends wrap structured output in
// prose or code fences often enough that extraction has to tolerate both,
// but the decode itself is strict: a missing language, an empty field, or
// a muscle value in the wrong shape fails rather than being patched up.
func Parse(raw string, schema MuscleSchema) (Payload, error) {
	var empty Payload

	candidate := extractJSONObject(raw)
	if candidate == "" {
		return empty, &Error{Reason: "no JSON object found in backend output"}
	}

	var parsed Payload
	decoder := json.NewDecoder(strings.NewReader(candidate))
	if err := decoder.Decode(&parsed); err != nil {
		return empty, &Error{Reason: fmt.Sprintf("decode payload: %v", err)}
	}

	if err := parsed.Validate(schema); err != nil {
		return empty, err
	}

	parsed.normalize()
	return parsed, nil
}

// extractJSONObject locates the first well-formed JSON object in text,
// skipping code-fence markers, surrounding commentary, and stray braces
// that appear in prose before the payload. The raw text is scanned
// before any fence stripping so a payload followed by prose that happens
// to mention a fence marker is still found.
func extractJSONObject(text string) string {
	if candidate := scanForObject(strings.TrimSpace(text)); candidate != "" {
		return candidate
	}
	return scanForObject(stripCodeFence(text))
}

// scanForObject returns the first brace-balanced, valid JSON object in
// trimmed, or "" when there is none.
func scanForObject(trimmed string) string {
	for offset := 0; offset < len(trimmed); {
		start := strings.IndexByte(trimmed[offset:], '{')
		if start < 0 {
			return ""
		}
		start += offset
		if candidate := balancedObject(trimmed[start:]); candidate != "" && json.Valid([]byte(candidate)) {
			return candidate
		}
		offset = start + 1
	}
	return ""
}

// balancedObject returns the brace-balanced prefix of text, which must
// start with '{', or "" when the braces never close.
func balancedObject(text string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}
	return ""
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	fence := strings.Index(trimmed, "```")
	if fence < 0 {
		return trimmed
	}
	body := trimmed[fence+3:]
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// Snippet condenses raw backend output for logs and journal rows.
func Snippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	replacer := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
	clean := strings.Join(strings.Fields(replacer.Replace(trimmed)), " ")
	const limit = 200
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
