// Package summary builds extraction prompts and validates model output
// into a typed Summary.
package summary

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// Summary is the structured extraction of a transcript.
type Summary struct {
	Title       string       `json:"title"`
	KeyPoints   []string     `json:"key_points"`
	Decisions   []string     `json:"decisions"`
	ActionItems []ActionItem `json:"action_items"`
	Timestamps  []Timestamp  `json:"timestamps"`
}

type ActionItem struct {
	Owner string `json:"owner"`
	Task  string `json:"task"`
	Due   string `json:"due"`
}

type Timestamp struct {
	T    string `json:"t"`
	Note string `json:"note"`
}

// jsonObject matches from the first '{' to a '}' that ends the text.
var jsonObject = regexp.MustCompile(`(?s)\{.*\}$`)

// Parse extracts a Summary from raw model output. It returns false when
// the text holds no JSON object with a string title and array-typed
// key_points, decisions, action_items and timestamps.
func Parse(raw string) (Summary, bool) {
	body := stripFences(strings.TrimSpace(raw))
	if m := jsonObject.FindString(body); m != "" {
		body = m
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &obj); err != nil || obj == nil {
		return Summary{}, false
	}

	var s Summary
	if kind(obj["title"]) != '"' || json.Unmarshal(obj["title"], &s.Title) != nil {
		return Summary{}, false
	}

	var ok bool
	if s.KeyPoints, ok = parseStrings(obj["key_points"]); !ok {
		return Summary{}, false
	}
	if s.Decisions, ok = parseStrings(obj["decisions"]); !ok {
		return Summary{}, false
	}

	items, ok := parseArray(obj["action_items"])
	if !ok {
		return Summary{}, false
	}
	s.ActionItems = make([]ActionItem, 0, len(items))
	for _, item := range items {
		fields, isObj := parseObject(item)
		if !isObj {
			s.ActionItems = append(s.ActionItems, ActionItem{Task: text(item)})
			continue
		}
		s.ActionItems = append(s.ActionItems, ActionItem{
			Owner: text(fields["owner"]),
			Task:  text(fields["task"]),
			Due:   text(fields["due"]),
		})
	}

	stamps, ok := parseArray(obj["timestamps"])
	if !ok {
		return Summary{}, false
	}
	s.Timestamps = make([]Timestamp, 0, len(stamps))
	for _, stamp := range stamps {
		fields, isObj := parseObject(stamp)
		if !isObj {
			s.Timestamps = append(s.Timestamps, Timestamp{Note: text(stamp)})
			continue
		}
		s.Timestamps = append(s.Timestamps, Timestamp{T: text(fields["t"]), Note: text(fields["note"])})
	}

	return s, true
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s[3:], "\n"); idx >= 0 {
		s = s[3+idx+1:]
	} else {
		s = s[3:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// kind returns the first significant byte of a JSON value, or 0.
func kind(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func parseArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	if kind(raw) != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

func parseStrings(raw json.RawMessage) ([]string, bool) {
	items, ok := parseArray(raw)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, text(item))
	}
	return out, true
}

func parseObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if kind(raw) != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// text renders a JSON value as a string: strings are unquoted, null and
// missing values are empty, anything else is its compact JSON form.
func text(raw json.RawMessage) string {
	switch kind(raw) {
	case 0, 'n':
		return ""
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
