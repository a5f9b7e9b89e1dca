// Package feed turns raw log payloads into ordered line sequences and
// detects whether a freshly fetched payload differs from the previous one.
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/ports"
)

// logEnvelope covers the JSON shapes returned by the log endpoint:
// {"data":{"logArr":[...]}}, {"log": "..."}, {"log": [...]} and {"data":{"log": ...}}.
type logEnvelope struct {
	Log  json.RawMessage `json:"log"`
	Data *struct {
		LogArr json.RawMessage `json:"logArr"`
		Log    json.RawMessage `json:"log"`
	} `json:"data"`
}

// Lines decodes the payload body. A nil payload has no lines.
func Lines(p *domain.RawLogPayload) ([]string, error) {
	if p == nil {
		return nil, nil
	}
	return DecodeLines(p.Body)
}

// DecodeLines splits a payload body into its non-blank log lines, in order.
// JSON, HTML and plain-text bodies are accepted.
func DecodeLines(body []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '{', '[':
		return decodeJSON(trimmed)
	case '<':
		return decodeHTML(trimmed)
	default:
		return splitLines(string(trimmed)), nil
	}
}

func decodeJSON(body []byte) ([]string, error) {
	if body[0] == '[' {
		return decodeLogField(body)
	}

	var env logEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInvalidPayload, err)
	}

	switch {
	case env.Data != nil && len(env.Data.LogArr) > 0:
		return decodeLogField(env.Data.LogArr)
	case env.Data != nil && len(env.Data.Log) > 0:
		return decodeLogField(env.Data.Log)
	case len(env.Log) > 0:
		return decodeLogField(env.Log)
	default:
		return nil, fmt.Errorf("%w: no log field in JSON body", ports.ErrInvalidPayload)
	}
}

// decodeLogField accepts either a single string or an array of strings.
// Array entries may themselves hold several newline separated lines.
func decodeLogField(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return splitLines(text), nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: log field is neither string nor array: %v", ports.ErrInvalidPayload, err)
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		var s string
		if err := json.Unmarshal(entry, &s); err != nil {
			// Non-string entries are kept as their raw JSON text.
			s = string(entry)
		}
		lines = append(lines, splitLines(s)...)
	}
	return lines, nil
}

func decodeHTML(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInvalidPayload, err)
	}

	var lines []string
	pre := doc.Find("pre")
	if pre.Length() > 0 {
		pre.Each(func(_ int, s *goquery.Selection) {
			lines = append(lines, splitLines(s.Text())...)
		})
		return lines, nil
	}

	return splitLines(doc.Find("body").Text()), nil
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
