// Package sessiontree implements the append-only DAG of session entries
// described in spec §4.6: branching, label resolution at read time, and
// the atomic entry-replacement operation compaction and edits rely on.
package sessiontree

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamloop/agentcore/pkg/models"
)

// EntryKind discriminates the tree's node types.
type EntryKind string

const (
	EntryMessage       EntryKind = "message"
	EntrySessionHeader EntryKind = "session_header"
	EntryLabel         EntryKind = "label"
	EntryCompaction    EntryKind = "compaction"
	EntryCustomMessage EntryKind = "custom_message"
)

// Entry is one node in the session DAG. Only the fields relevant to Kind
// are populated.
type Entry struct {
	ID        string
	ParentID  *string
	Kind      EntryKind
	CreatedAt time.Time

	// message / custom_message
	Message *models.Message

	// session_header
	CWD                     string
	SystemPromptFingerprint string
	ModelID                 string

	// label
	TargetID string
	Label    *string // nil clears the label

	// compaction
	SummaryMessage        *models.Message
	FirstKeptMessageIndex int
	TokensBefore          int
}

var (
	ErrEmptyDeleteSet   = errors.New("sessiontree: deleteIds must be non-empty")
	ErrDeleteCompaction = errors.New("sessiontree: cannot delete a compaction entry")
	ErrEntryNotFound    = errors.New("sessiontree: entry not found")
	ErrNoRoot           = errors.New("sessiontree: tree has no root entry")
)

// Tree is a single-writer, mutex-guarded session DAG.
type Tree struct {
	mu      sync.Mutex
	byID    map[string]*Entry
	order   []string // append order, for topological traversal and invariant checks
	leafID  string
	rootSet bool

	headerWritten bool
}

// New constructs an empty Tree.
func New() *Tree {
	return &Tree{byID: make(map[string]*Entry)}
}

func newID() string { return uuid.NewString() }

// AppendMessage appends a message entry as a child of the current leaf,
// writing a session-header entry first if this is the first persisted
// append. Returns the new entry's id.
func (t *Tree) AppendMessage(m *models.Message, cwd, systemPromptFingerprint, modelID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.headerWritten {
		headerID := newID()
		t.insertLocked(&Entry{
			ID: headerID, Kind: EntrySessionHeader, CreatedAt: time.Now(),
			CWD: cwd, SystemPromptFingerprint: systemPromptFingerprint, ModelID: modelID,
		}, nil)
		t.leafID = headerID
		t.headerWritten = true
	}

	id := newID()
	parent := t.leafID
	t.insertLocked(&Entry{ID: id, Kind: EntryMessage, CreatedAt: time.Now(), Message: m}, &parent)
	t.leafID = id
	return id, nil
}

// insertLocked adds an entry to the index and append order. Caller holds mu.
func (t *Tree) insertLocked(e *Entry, parentID *string) {
	if parentID != nil {
		pid := *parentID
		e.ParentID = &pid
	}
	t.byID[e.ID] = e
	t.order = append(t.order, e.ID)
	if !t.rootSet {
		t.rootSet = true
	}
}

// Branch sets the leaf to entryId without mutating the tree; subsequent
// appends create a new sibling branch from that point.
func (t *Tree) Branch(entryID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[entryID]; !ok {
		return ErrEntryNotFound
	}
	t.leafID = entryID
	return nil
}

// AppendLabelChange records a label entry targeting targetID. A nil label
// clears it.
func (t *Tree) AppendLabelChange(targetID string, label *string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[targetID]; !ok {
		return "", ErrEntryNotFound
	}
	id := newID()
	parent := t.leafID
	t.insertLocked(&Entry{ID: id, Kind: EntryLabel, CreatedAt: time.Now(), TargetID: targetID, Label: label}, &parent)
	t.leafID = id
	return id, nil
}

// AppendCustomMessage appends an application-level custom entry (e.g. a
// skills_reload record) that is not a provider-round-trip message but
// still materializes into BuildSessionContext's output.
func (t *Tree) AppendCustomMessage(m *models.Message) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := newID()
	parent := t.leafID
	t.insertLocked(&Entry{ID: id, Kind: EntryCustomMessage, CreatedAt: time.Now(), Message: m}, &parent)
	t.leafID = id
	return id, nil
}

// AppendCompaction appends a compaction entry and sets it as leaf.
func (t *Tree) AppendCompaction(summary *models.Message, firstKeptMessageIndex, tokensBefore int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := newID()
	parent := t.leafID
	t.insertLocked(&Entry{
		ID: id, Kind: EntryCompaction, CreatedAt: time.Now(),
		SummaryMessage: summary, FirstKeptMessageIndex: firstKeptMessageIndex, TokensBefore: tokensBefore,
	}, &parent)
	t.leafID = id
	return id, nil
}

// ReplaceEntries deletes deleteIds, rewrites their children's parent to a
// newly inserted custom_message entry, and moves the leaf if it was
// deleted. Preconditions: deleteIds is non-empty, none reference a
// compaction entry, and every id exists.
func (t *Tree) ReplaceEntries(deleteIDs []string, replacement *models.Message) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(deleteIDs) == 0 {
		return "", ErrEmptyDeleteSet
	}
	deleteSet := make(map[string]bool, len(deleteIDs))
	for _, id := range deleteIDs {
		e, ok := t.byID[id]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		if e.Kind == EntryCompaction {
			return "", fmt.Errorf("%w: %s", ErrDeleteCompaction, id)
		}
		deleteSet[id] = true
	}

	// firstDeletedParent = parent of the earliest entry in deleteIds in
	// topological (append) order.
	var earliestID string
	for _, id := range t.order {
		if deleteSet[id] {
			earliestID = id
			break
		}
	}
	earliest := t.byID[earliestID]
	var firstDeletedParent *string
	if earliest.ParentID != nil {
		pid := *earliest.ParentID
		firstDeletedParent = &pid
	}

	newID := newID()
	replacementEntry := &Entry{ID: newID, Kind: EntryCustomMessage, CreatedAt: time.Now(), Message: replacement, ParentID: firstDeletedParent}

	// Rewrite children of any deleted entry to point at the replacement.
	for _, id := range t.order {
		if deleteSet[id] {
			continue
		}
		e := t.byID[id]
		if e.ParentID != nil && deleteSet[*e.ParentID] {
			parent := newID
			e.ParentID = &parent
		}
	}

	// Physically drop the deleted entries.
	newOrder := make([]string, 0, len(t.order)-len(deleteIDs)+1)
	for _, id := range t.order {
		if deleteSet[id] {
			delete(t.byID, id)
			continue
		}
		newOrder = append(newOrder, id)
	}
	newOrder = append(newOrder, newID)
	t.byID[newID] = replacementEntry
	t.order = newOrder

	if deleteSet[t.leafID] {
		t.leafID = newID
	}

	if err := t.checkInvariantsLocked(); err != nil {
		return "", err
	}
	return newID, nil
}

// GetBranch linearizes entries from root to the current leaf, skipping
// label entries (labels resolve onto their target node instead).
func (t *Tree) GetBranch() ([]*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getBranchLocked(t.leafID)
}

func (t *Tree) getBranchLocked(leaf string) ([]*Entry, error) {
	if leaf == "" {
		return nil, nil
	}
	var chain []*Entry
	cur := leaf
	visited := make(map[string]bool)
	for {
		e, ok := t.byID[cur]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, cur)
		}
		if visited[cur] {
			return nil, errors.New("sessiontree: cycle detected while walking to root")
		}
		visited[cur] = true
		if e.Kind != EntryLabel {
			chain = append(chain, e)
		}
		if e.ParentID == nil {
			break
		}
		cur = *e.ParentID
	}
	// reverse to root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// ResolveLabel returns the latest label entry targeting id, or nil if none
// exists.
func (t *Tree) ResolveLabel(id string) *string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var latest *Entry
	for _, eid := range t.order {
		e := t.byID[eid]
		if e.Kind == EntryLabel && e.TargetID == id {
			latest = e
		}
	}
	if latest == nil {
		return nil
	}
	return latest.Label
}

// BuildSessionContext produces the canonical message list for the current
// branch: compaction entries materialize as their summary message, custom
// messages opt in via their Message field, and label entries are already
// skipped by GetBranch.
func (t *Tree) BuildSessionContext() ([]models.Message, error) {
	entries, err := t.GetBranch()
	if err != nil {
		return nil, err
	}
	var out []models.Message
	for _, e := range entries {
		switch e.Kind {
		case EntryMessage, EntryCustomMessage:
			if e.Message != nil {
				out = append(out, *e.Message)
			}
		case EntryCompaction:
			if e.SummaryMessage != nil {
				out = append(out, *e.SummaryMessage)
			}
		case EntrySessionHeader:
			// no message representation
		}
	}
	return out, nil
}

// LeafID returns the current leaf entry's id.
func (t *Tree) LeafID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leafID
}

// checkInvariantsLocked verifies: single root, leaf exists, every
// parentId refers to an existing entry or is nil. Caller holds mu.
func (t *Tree) checkInvariantsLocked() error {
	if len(t.order) == 0 {
		return nil
	}
	roots := 0
	for _, id := range t.order {
		e := t.byID[id]
		if e.ParentID == nil {
			roots++
			continue
		}
		if _, ok := t.byID[*e.ParentID]; !ok {
			return fmt.Errorf("sessiontree: entry %s has dangling parent %s", e.ID, *e.ParentID)
		}
	}
	if roots != 1 {
		return fmt.Errorf("%w: found %d roots", ErrNoRoot, roots)
	}
	if t.leafID != "" {
		if _, ok := t.byID[t.leafID]; !ok {
			return fmt.Errorf("sessiontree: leaf %s does not correspond to an existing entry", t.leafID)
		}
	}
	return nil
}

// CheckInvariants exposes the invariant check for callers (e.g. tests)
// that want to assert tree health after a sequence of mutations.
func (t *Tree) CheckInvariants() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkInvariantsLocked()
}
