package skills

import (
	"testing"

	"github.com/streamloop/agentcore/internal/contextenv"
	"github.com/streamloop/agentcore/internal/sessiontree"
)

func TestDiffSkillsAddedRemovedUpdated(t *testing.T) {
	before := []Skill{
		{Name: "git", Description: "git workflows", FilePath: "/skills/git.md"},
		{Name: "docs", Description: "writes docs", FilePath: "/skills/docs.md"},
	}
	after := []Skill{
		{Name: "git", Description: "git workflows v2", FilePath: "/skills/git.md"},
		{Name: "deploy", Description: "deploys services", FilePath: "/skills/deploy.md"},
	}

	diff := DiffSkills(before, after)
	if len(diff.Added) != 1 || diff.Added[0].Name != "deploy" {
		t.Fatalf("expected deploy added, got %+v", diff.Added)
	}
	if len(diff.Removed) != 1 || diff.Removed[0].Name != "docs" {
		t.Fatalf("expected docs removed, got %+v", diff.Removed)
	}
	if len(diff.Updated) != 1 || diff.Updated[0].Name != "git" {
		t.Fatalf("expected git updated, got %+v", diff.Updated)
	}
}

func TestDiffSkillsNoChangeIsEmpty(t *testing.T) {
	set := []Skill{{Name: "git", Description: "git workflows", FilePath: "/skills/git.md"}}
	diff := DiffSkills(set, set)
	if !diff.Empty() {
		t.Fatalf("expected empty diff for identical sets, got %+v", diff)
	}
}

type fakeDiscoverer struct {
	sets [][]Skill
	i    int
}

func (f *fakeDiscoverer) Discover() ([]Skill, error) {
	s := f.sets[f.i]
	if f.i < len(f.sets)-1 {
		f.i++
	}
	return s, nil
}

func TestReloadSkipsSinkAndHandlersWhenDiffEmpty(t *testing.T) {
	set := []Skill{{Name: "git", Description: "git workflows", FilePath: "/skills/git.md"}}
	disc := &fakeDiscoverer{sets: [][]Skill{set, set}}
	tree := sessiontree.New()
	sink := NewEnvelopeSink(contextenv.Envelope{}, tree)

	m := NewManager(disc, sink, nil)
	if _, err := m.Reload("startup"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The startup reload diffs against an empty set, so it appends its own entry.
	startup, err := tree.BuildSessionContext()
	if err != nil {
		t.Fatalf("BuildSessionContext: %v", err)
	}

	var fired bool
	m.OnChange(func(ev ChangeEvent) { fired = true })

	diff, err := m.Reload("watch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !diff.Empty() {
		t.Fatalf("expected no-op reload to produce an empty diff, got %+v", diff)
	}
	if fired {
		t.Fatalf("expected no skills:changed handler invocation for an empty diff")
	}

	branch, err := tree.BuildSessionContext()
	if err != nil {
		t.Fatalf("BuildSessionContext: %v", err)
	}
	if len(branch) != len(startup) {
		t.Fatalf("expected no custom entry appended for an empty diff, got %d messages, want %d", len(branch), len(startup))
	}
}

func TestReloadAppliesPatchAndAppendsEntryOnChange(t *testing.T) {
	before := []Skill{{Name: "git", Description: "git workflows", FilePath: "/skills/git.md"}}
	after := append(before, Skill{Name: "deploy", Description: "deploys services", FilePath: "/skills/deploy.md"})
	disc := &fakeDiscoverer{sets: [][]Skill{before, after}}
	tree := sessiontree.New()
	sink := NewEnvelopeSink(contextenv.Envelope{}, tree)

	m := NewManager(disc, sink, nil)
	if _, err := m.Reload("startup"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The startup reload diffs against an empty set, so it appends its own entry.
	startup, err := tree.BuildSessionContext()
	if err != nil {
		t.Fatalf("BuildSessionContext: %v", err)
	}

	var events []ChangeEvent
	m.OnChange(func(ev ChangeEvent) { events = append(events, ev) })

	diff, err := m.Reload("watch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff.Empty() {
		t.Fatalf("expected a non-empty diff")
	}
	if len(events) != 1 || events[0].Trigger != "watch" {
		t.Fatalf("expected one skills:changed event for trigger watch, got %+v", events)
	}

	env := sink.Envelope()
	found := false
	for _, p := range env.SystemParts {
		if p.Name == "skills" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected skills system part to be set after reload")
	}

	branch, err := tree.BuildSessionContext()
	if err != nil {
		t.Fatalf("BuildSessionContext: %v", err)
	}
	if len(branch) != len(startup)+1 {
		t.Fatalf("expected exactly one custom entry appended, got %d after %d", len(branch), len(startup))
	}
}
