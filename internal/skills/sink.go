package skills

import (
	"sync"

	"github.com/streamloop/agentcore/internal/contextenv"
	"github.com/streamloop/agentcore/internal/sessiontree"
	"github.com/streamloop/agentcore/pkg/models"
)

// EnvelopeSink applies skill-reload patches to a shared context envelope
// and records the resulting skills_reload entry in the session tree. It
// is the default PatchSink wiring a Manager would be constructed with.
type EnvelopeSink struct {
	mu       sync.Mutex
	envelope contextenv.Envelope
	tree     *sessiontree.Tree
}

// NewEnvelopeSink constructs a sink over the given starting envelope and
// tree.
func NewEnvelopeSink(envelope contextenv.Envelope, tree *sessiontree.Tree) *EnvelopeSink {
	return &EnvelopeSink{envelope: envelope, tree: tree}
}

// Envelope returns the current envelope, reflecting every applied patch.
func (s *EnvelopeSink) Envelope() contextenv.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envelope.Clone()
}

// ApplyPatch applies a single patch op to the sink's envelope.
func (s *EnvelopeSink) ApplyPatch(op contextenv.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, _, err := contextenv.Apply(s.envelope, []contextenv.Op{op}, nil)
	if err != nil {
		return err
	}
	s.envelope = next
	return nil
}

// AppendCustomEntry appends a custom_message entry to the session tree.
// kind is not stored: the entry holds msg exactly as given.
func (s *EnvelopeSink) AppendCustomEntry(kind string, msg models.Message) error {
	_, err := s.tree.AppendCustomMessage(&msg)
	return err
}
