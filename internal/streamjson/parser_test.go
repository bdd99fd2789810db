package streamjson

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParsePartialProgressivePrefixes(t *testing.T) {
	full := `{"path":"main.go","recursive":true,"depth":3}`
	var want map[string]any
	if err := json.Unmarshal([]byte(full), &want); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}

	for i := 1; i <= len(full); i++ {
		prefix := full[:i]
		out, err := ParsePartial(prefix)
		if err != nil {
			t.Fatalf("prefix %q: unexpected error: %v", prefix, err)
		}
		var got map[string]any
		if err := json.Unmarshal(out, &got); err != nil {
			t.Fatalf("prefix %q: repaired output %q invalid: %v", prefix, out, err)
		}
		// Every key/value completed in the prefix must appear unchanged.
		for k, v := range got {
			wv, ok := want[k]
			if !ok {
				continue // key itself was only partially written; skip
			}
			wantValue, _ := json.Marshal(wv)
			if !strings.Contains(prefix, `"`+k+`":`+string(wantValue)) {
				continue // value itself is still being written; skip
			}
			if wv != v {
				t.Errorf("prefix %q: key %q = %v, want %v (partial writes shouldn't corrupt earlier keys)", prefix, k, v, wv)
			}
		}
	}
}

func TestParsePartialEmpty(t *testing.T) {
	out, err := ParsePartial("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "{}" {
		t.Fatalf("got %q, want {}", out)
	}
}

func TestParsePartialOpenString(t *testing.T) {
	out, err := ParsePartial(`{"path":"main`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("invalid repaired json %q: %v", out, err)
	}
	if got["path"] != "main" {
		t.Fatalf("got %+v, want path=main", got)
	}
}

func TestParsePartialDanglingKey(t *testing.T) {
	out, err := ParsePartial(`{"a":1,"b"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("invalid repaired json %q: %v", out, err)
	}
	if got["a"] != 1.0 {
		t.Fatalf("got %+v, want a=1", got)
	}
	if _, ok := got["b"]; ok {
		t.Fatalf("dangling key b should not appear, got %+v", got)
	}
}

func TestParsePartialDanglingComma(t *testing.T) {
	out, err := ParsePartial(`{"a":1,`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("invalid repaired json %q: %v", out, err)
	}
	if got["a"] != 1.0 || len(got) != 1 {
		t.Fatalf("got %+v, want only a=1", got)
	}
}

func TestParsePartialIncompleteNumber(t *testing.T) {
	out, err := ParsePartial(`{"count":12`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("invalid repaired json %q: %v", out, err)
	}
	if got["count"] != 12.0 {
		t.Fatalf("got %+v, want count=12", got)
	}
}

func TestParsePartialIncompleteLiteralDropped(t *testing.T) {
	out, err := ParsePartial(`{"a":1,"flag":tr`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("invalid repaired json %q: %v", out, err)
	}
	if got["a"] != 1.0 {
		t.Fatalf("got %+v, want a=1 preserved", got)
	}
	if _, ok := got["flag"]; ok {
		t.Fatalf("incomplete literal flag should be dropped, got %+v", got)
	}
}

func TestParsePartialNestedArray(t *testing.T) {
	out, err := ParsePartial(`{"items":["a","b"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("invalid repaired json %q: %v", out, err)
	}
	items, ok := got["items"].([]any)
	if !ok || len(items) != 2 || items[0] != "a" || items[1] != "b" {
		t.Fatalf("got items=%+v", got["items"])
	}
}

func TestParseStrictRejectsIncomplete(t *testing.T) {
	if _, err := ParseStrict(`{"a":1,`); err == nil {
		t.Fatalf("expected strict parse to reject a truncated document")
	}
}

func TestParseStrictAcceptsComplete(t *testing.T) {
	out, err := ParseStrict(`{"a":1}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("invalid output: %v", err)
	}
	if got["a"] != 1.0 {
		t.Fatalf("got %+v", got)
	}
}
