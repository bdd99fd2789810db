package sessiontree

import (
	"testing"

	"github.com/streamloop/agentcore/pkg/models"
)

func TestAppendMessageWritesHeaderOnce(t *testing.T) {
	tree := New()
	id1, err := tree.AppendMessage(&models.Message{Role: models.RoleUser, UserText: "hi"}, "/tmp", "fp", "model-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := tree.AppendMessage(&models.Message{Role: models.RoleAssistant}, "/tmp", "fp", "model-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	branch, err := tree.GetBranch()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// header + 2 messages
	if len(branch) != 3 {
		t.Fatalf("expected 3 entries (header + 2 messages), got %d", len(branch))
	}
	if branch[0].Kind != EntrySessionHeader {
		t.Fatalf("expected first entry to be session header, got %s", branch[0].Kind)
	}
	if branch[1].ID != id1 || branch[2].ID != id2 {
		t.Fatalf("unexpected branch order: %+v", branch)
	}
}

func TestBranchAndSiblingAppend(t *testing.T) {
	tree := New()
	a, _ := tree.AppendMessage(&models.Message{Role: models.RoleUser, UserText: "a"}, "/tmp", "fp", "m")
	b, _ := tree.AppendMessage(&models.Message{Role: models.RoleUser, UserText: "b"}, "/tmp", "fp", "m")

	if err := tree.Branch(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, _ := tree.AppendMessage(&models.Message{Role: models.RoleUser, UserText: "c"}, "/tmp", "fp", "m")

	branch, _ := tree.GetBranch()
	var ids []string
	for _, e := range branch {
		ids = append(ids, e.ID)
	}
	for _, id := range ids {
		if id == b {
			t.Fatalf("sibling branch b should not appear after branching back to a, got %v", ids)
		}
	}
	if ids[len(ids)-1] != c {
		t.Fatalf("expected last entry to be c, got %v", ids)
	}
}

func TestLabelResolutionTakesLatest(t *testing.T) {
	tree := New()
	id, _ := tree.AppendMessage(&models.Message{Role: models.RoleUser, UserText: "a"}, "/tmp", "fp", "m")

	label1 := "checkpoint-1"
	if _, err := tree.AppendLabelChange(id, &label1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label2 := "checkpoint-2"
	if _, err := tree.AppendLabelChange(id, &label2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := tree.ResolveLabel(id)
	if got == nil || *got != "checkpoint-2" {
		t.Fatalf("expected latest label checkpoint-2, got %v", got)
	}

	branch, _ := tree.GetBranch()
	for _, e := range branch {
		if e.Kind == EntryLabel {
			t.Fatalf("expected GetBranch to skip label entries, found one: %+v", e)
		}
	}
}

func TestReplaceEntriesRewritesChildrenAndLeaf(t *testing.T) {
	tree := New()
	a, _ := tree.AppendMessage(&models.Message{Role: models.RoleUser, UserText: "a"}, "/tmp", "fp", "m")
	b, _ := tree.AppendMessage(&models.Message{Role: models.RoleAssistant}, "/tmp", "fp", "m")
	c, _ := tree.AppendMessage(&models.Message{Role: models.RoleUser, UserText: "c"}, "/tmp", "fp", "m")

	newID, err := tree.ReplaceEntries([]string{b, c}, &models.Message{Role: models.RoleUser, UserText: "replacement"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.LeafID() != newID {
		t.Fatalf("expected leaf to move to replacement, got %s want %s", tree.LeafID(), newID)
	}

	branch, err := tree.GetBranch()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ids []string
	for _, e := range branch {
		ids = append(ids, e.ID)
	}
	for _, id := range []string{b, c} {
		for _, got := range ids {
			if got == id {
				t.Fatalf("expected %s to be physically removed, found in branch %v", id, ids)
			}
		}
	}
	if ids[len(ids)-1] != newID {
		t.Fatalf("expected replacement to be the new leaf in branch, got %v", ids)
	}
	_ = a
	if err := tree.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

func TestReplaceEntriesRejectsCompaction(t *testing.T) {
	tree := New()
	tree.AppendMessage(&models.Message{Role: models.RoleUser, UserText: "a"}, "/tmp", "fp", "m")
	compID, _ := tree.AppendCompaction(&models.Message{Role: models.RoleUser, UserText: "summary"}, 0, 100)

	_, err := tree.ReplaceEntries([]string{compID}, nil)
	if err == nil {
		t.Fatalf("expected error deleting a compaction entry")
	}
}

func TestReplaceEntriesRejectsEmptySet(t *testing.T) {
	tree := New()
	_, err := tree.ReplaceEntries(nil, nil)
	if err == nil {
		t.Fatalf("expected error for empty delete set")
	}
}

func TestBuildSessionContextMaterializesCompaction(t *testing.T) {
	tree := New()
	tree.AppendMessage(&models.Message{Role: models.RoleUser, UserText: "a"}, "/tmp", "fp", "m")
	tree.AppendCompaction(&models.Message{Role: models.RoleUser, UserText: "summary"}, 0, 100)
	tree.AppendMessage(&models.Message{Role: models.RoleUser, UserText: "b"}, "/tmp", "fp", "m")

	ctx, err := tree.BuildSessionContext()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ctx) != 3 {
		t.Fatalf("expected [a, summary, b], got %d messages: %+v", len(ctx), ctx)
	}
	if ctx[1].UserText != "summary" {
		t.Fatalf("expected compaction to materialize as summary message, got %+v", ctx[1])
	}
}
