package providers

import "testing"

func TestBedrockLineReaderSplitsAcrossChunks(t *testing.T) {
	r := &bedrockLineReader{}

	lines := r.Feed([]byte(`{"type":"contentBlockStart","contentBlockType":"text"}` + "\n" + `{"type":"cont`))
	if len(lines) != 1 {
		t.Fatalf("expected 1 complete line, got %d: %v", len(lines), lines)
	}

	lines = r.Feed([]byte(`entBlockDelta","text":"hi"}` + "\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 completed line from the joined tail, got %d: %v", len(lines), lines)
	}

	ev, ok := decodeBedrockLine(lines[0])
	if !ok || ev.Type != "contentBlockDelta" || ev.Text != "hi" {
		t.Fatalf("unexpected decoded event: %+v ok=%v", ev, ok)
	}
}

func TestBedrockLineReaderHoldsIncompleteTail(t *testing.T) {
	r := &bedrockLineReader{}
	lines := r.Feed([]byte(`{"type":"x"`))
	if len(lines) != 0 {
		t.Fatalf("expected no complete lines yet, got %v", lines)
	}
	if len(r.tail) == 0 {
		t.Fatalf("expected tail to be buffered")
	}
}

func TestDecodeBedrockLineDropsUnparseable(t *testing.T) {
	if _, ok := decodeBedrockLine([]byte(`not json`)); ok {
		t.Fatalf("expected unparseable line to be rejected")
	}
}

func TestDecodeBedrockLineMetadataUsage(t *testing.T) {
	ev, ok := decodeBedrockLine([]byte(`{"type":"metadata","usage":{"inputTokens":10,"outputTokens":20}}`))
	if !ok {
		t.Fatalf("expected valid parse")
	}
	if ev.Usage == nil || ev.Usage.InputTokens != 10 || ev.Usage.OutputTokens != 20 {
		t.Fatalf("unexpected usage: %+v", ev.Usage)
	}
}
