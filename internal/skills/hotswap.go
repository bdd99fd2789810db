// Package skills implements skill discovery and the hot-swap mechanism
// that keeps an agent's context envelope in sync with the skill set found
// on disk (spec §4.8).
package skills

import (
	"log/slog"
	"sort"
	"time"

	"github.com/streamloop/agentcore/internal/contextenv"
	"github.com/streamloop/agentcore/pkg/models"
)

// Skill is one discovered skill's identity and content fingerprint.
// Name is identity; Description and FilePath are the content compared to
// detect an update.
type Skill struct {
	Name        string
	Description string
	FilePath    string
}

// Diff is the result of comparing two skill sets.
type Diff struct {
	Added   []Skill
	Removed []Skill
	Updated []Skill
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}

// DiffSkills compares before and after by name, using { Description,
// FilePath } as the content that triggers an "updated" entry when either
// changes.
func DiffSkills(before, after []Skill) Diff {
	beforeByName := make(map[string]Skill, len(before))
	for _, s := range before {
		beforeByName[s.Name] = s
	}
	afterByName := make(map[string]Skill, len(after))
	for _, s := range after {
		afterByName[s.Name] = s
	}

	var diff Diff
	for name, a := range afterByName {
		b, existed := beforeByName[name]
		if !existed {
			diff.Added = append(diff.Added, a)
			continue
		}
		if b.Description != a.Description || b.FilePath != a.FilePath {
			diff.Updated = append(diff.Updated, a)
		}
	}
	for name, b := range beforeByName {
		if _, stillPresent := afterByName[name]; !stillPresent {
			diff.Removed = append(diff.Removed, b)
		}
	}

	sortByName(diff.Added)
	sortByName(diff.Removed)
	sortByName(diff.Updated)
	return diff
}

func sortByName(skills []Skill) {
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
}

// Discoverer produces the current skill set, e.g. by walking a skills
// directory on disk. Kept as an interface so hot-swap logic is testable
// without touching the filesystem.
type Discoverer interface {
	Discover() ([]Skill, error)
}

// ChangeEvent is emitted on the skills:changed event whenever Reload
// produces a non-empty diff.
type ChangeEvent struct {
	Trigger string
	Diff    Diff
	At      time.Time
}

// PatchSink receives the system_part_set patch a reload issues for the
// "skills" system part, and optionally appends a skills_reload custom
// entry to the session.
type PatchSink interface {
	ApplyPatch(op contextenv.Op) error
	AppendCustomEntry(kind string, msg models.Message) error
}

// Manager tracks the current skill set and drives reloadSkills.
type Manager struct {
	discoverer Discoverer
	sink       PatchSink
	log        *slog.Logger

	current  []Skill
	handlers []func(ChangeEvent)
}

// NewManager constructs a Manager with an empty current skill set.
func NewManager(discoverer Discoverer, sink PatchSink, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{discoverer: discoverer, sink: sink, log: log}
}

// OnChange registers a handler invoked synchronously whenever Reload
// produces a non-empty diff.
func (m *Manager) OnChange(handler func(ChangeEvent)) {
	m.handlers = append(m.handlers, handler)
}

// Current returns the skill set as of the last successful reload.
func (m *Manager) Current() []Skill {
	out := make([]Skill, len(m.current))
	copy(out, m.current)
	return out
}

// Reload recomputes the skill set, diffs it against the previous one, and
// — only when the diff is non-empty — emits skills:changed, issues a
// system_part_set patch that upserts the "skills" system part, and appends
// a skills_reload custom entry (spec §4.8). The rest of the envelope's
// parts list is left as it is; no system_parts_replace patch is issued.
func (m *Manager) Reload(trigger string) (Diff, error) {
	next, err := m.discoverer.Discover()
	if err != nil {
		return Diff{}, err
	}

	diff := DiffSkills(m.current, next)
	m.current = next

	if diff.Empty() {
		return diff, nil
	}

	m.log.Info("skills reloaded",
		"trigger", trigger,
		"added", len(diff.Added),
		"removed", len(diff.Removed),
		"updated", len(diff.Updated),
	)

	if m.sink != nil {
		// Replaces only the "skills" system part in place; other parts of
		// the envelope's system prompt are untouched.
		if err := m.sink.ApplyPatch(contextenv.Op{
			Kind:                  contextenv.OpSystemPartSet,
			PartName:              "skills",
			PartText:              RenderSystemPart(next),
			InvalidateCacheReason: "skills_reload:" + trigger,
		}); err != nil {
			return diff, err
		}
		if err := m.sink.AppendCustomEntry("skills_reload", Message(trigger, diff)); err != nil {
			return diff, err
		}
	}

	ev := ChangeEvent{Trigger: trigger, Diff: diff, At: time.Now()}
	for _, h := range m.handlers {
		h(ev)
	}
	return diff, nil
}

// RenderSystemPart formats the current skill set as the "skills" system
// prompt section.
func RenderSystemPart(skills []Skill) string {
	if len(skills) == 0 {
		return "No skills are currently available."
	}
	out := "Available skills:\n"
	for _, s := range skills {
		out += "- " + s.Name + ": " + s.Description + "\n"
	}
	return out
}

// Message builds the custom-entry payload recording a skills_reload.
func Message(trigger string, diff Diff) models.Message {
	return models.Message{
		Role:      models.RoleBashExecution,
		Command:   "skills_reload:" + trigger,
		Output:    RenderDiffSummary(diff),
		Timestamp: time.Now(),
	}
}

// RenderDiffSummary produces a short human-readable description of a diff
// for the skills_reload custom entry.
func RenderDiffSummary(diff Diff) string {
	out := ""
	for _, s := range diff.Added {
		out += "+ " + s.Name + "\n"
	}
	for _, s := range diff.Updated {
		out += "~ " + s.Name + "\n"
	}
	for _, s := range diff.Removed {
		out += "- " + s.Name + "\n"
	}
	return out
}
