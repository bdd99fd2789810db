// Package streamjson implements a tolerant parser for the fragmentary JSON
// a provider streams while assembling a tool call's arguments (spec §4.2,
// §4.3, §9). ParsePartial accepts any valid prefix of a JSON object or
// array and synthesizes the closing brackets/quotes needed to make it
// parse, returning best-effort output until the block closes. ParseStrict
// performs the final, non-tolerant parse required at toolcall_end.
package streamjson

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParsePartial parses any prefix of a valid JSON value, synthesizing
// closing brackets and quotes as needed. The result is best-effort: every
// completed key/value present in the prefix is present in the output with
// the same value (spec §8 streaming-json parser property). Returns an
// error only if even the repaired text fails to parse (e.g. an empty or
// purely whitespace prefix).
func ParsePartial(prefix string) (json.RawMessage, error) {
	repaired := Repair(prefix)
	var v any
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, fmt.Errorf("streamjson: repaired text still invalid: %w", err)
	}
	return json.Marshal(v)
}

// ParseStrict performs a strict parse with no repair. Tool call arguments
// must pass this at toolcall_end (spec §4.2).
func ParseStrict(text string) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("streamjson: strict parse failed: %w", err)
	}
	return json.Marshal(v)
}

// Repair synthesizes the minimal suffix that turns a truncated JSON
// document into a parseable one: it closes any open string, trims a
// dangling comma/colon/incomplete literal at the current cursor, and
// closes every open object/array in reverse nesting order.
func Repair(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return "{}"
	}

	var stack []byte
	inString := false
	escaped := false
	runes := []rune(trimmed)

	for _, c := range runes {
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
		case '{', '[':
			stack = append(stack, byte(c))
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	result := trimmed
	if inString {
		if escaped {
			result = result[:len(result)-1]
		}
		result += `"`
	}

	// A trailing string directly inside an object that follows '{' or ','
	// is a key still waiting for its value: drop it with its separator.
	if len(stack) > 0 && stack[len(stack)-1] == '{' && strings.HasSuffix(result, `"`) {
		before := strings.TrimRight(result[:lastKeyStart(result)], " \t\n\r")
		if strings.HasSuffix(before, "{") || strings.HasSuffix(before, ",") {
			result = before
		}
	}

	result = trimDangling(result)

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			result += "}"
		} else {
			result += "]"
		}
	}
	return result
}

// trimDangling removes a trailing comma, a dangling "key": with no value,
// or an incomplete bare literal/number so the remaining text ends on a
// complete token boundary.
func trimDangling(s string) string {
	s = strings.TrimRight(s, " \t\n\r")
	if s == "" {
		return s
	}

	switch s[len(s)-1] {
	case ',':
		return trimDangling(s[:len(s)-1])
	case ':':
		// Drop the dangling "key": by trimming back to the previous
		// comma/brace at the same depth.
		cut := lastKeyStart(s[:len(s)-1])
		return trimDangling(strings.TrimRight(s[:cut], " \t\n\r"))
	}

	if endsWithIncompleteLiteral(s) {
		cut := lastBoundary(s)
		return trimDangling(strings.TrimRight(s[:cut], " \t\n\r"))
	}

	return s
}

// lastKeyStart finds the index right before the quoted key that s ends
// with, so the caller can trim the whole "key" token away.
func lastKeyStart(s string) int {
	i := len(s) - 1
	// skip trailing whitespace
	for i >= 0 && isSpace(s[i]) {
		i--
	}
	if i < 0 || s[i] != '"' {
		return len(s)
	}
	i--
	for i >= 0 {
		if s[i] == '"' && (i == 0 || s[i-1] != '\\') {
			return i
		}
		i--
	}
	return 0
}

// endsWithIncompleteLiteral reports whether s ends mid-number or
// mid-keyword (true/false/null) rather than on a structural boundary.
func endsWithIncompleteLiteral(s string) bool {
	last := s[len(s)-1]
	if last == '}' || last == ']' || last == '"' {
		return false
	}
	// Any run of bare (non-string, non-structural) characters at the tail
	// that does not spell out a complete literal/number is incomplete.
	tailStart := lastBoundary(s)
	tail := s[tailStart:]
	tail = strings.TrimSpace(tail)
	if tail == "" {
		return false
	}
	switch tail {
	case "true", "false", "null":
		return false
	}
	var v json.Number
	if err := json.Unmarshal([]byte(tail), &v); err == nil {
		return false
	}
	return true
}

// lastBoundary finds the start index of the trailing bare token (number
// or keyword) in s, i.e. the position after the last structural character.
func lastBoundary(s string) int {
	i := len(s) - 1
	for i >= 0 {
		switch s[i] {
		case '{', '}', '[', ']', ',', ':', '"':
			return i + 1
		}
		i--
	}
	return 0
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
