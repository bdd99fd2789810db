package agent

import "github.com/streamloop/agentcore/pkg/models"

// messageQueue holds pending user prompts awaiting the turn loop, with the
// exact first-match-by-timestamp semantics spec §4.7 requires for
// editing/removing an in-flight queued message (e.g. from a UI that lets
// a user edit a message they just sent before the agent picks it up).
type messageQueue struct {
	items []models.Message
}

// enqueue appends m to the tail of the queue.
func (q *messageQueue) enqueue(m models.Message) {
	q.items = append(q.items, m)
}

// updateByTimestamp finds the first queued message with role=user and a
// matching timestamp, replaces its content with a single text block
// carrying newText while preserving the timestamp, and returns whether
// anything was updated. Non-user messages sharing the timestamp are
// ignored, matching the literal first-match-of-role semantics.
func (q *messageQueue) updateByTimestamp(ts int64, newText string) bool {
	for i := range q.items {
		m := &q.items[i]
		if m.Role != models.RoleUser || m.Timestamp.UnixNano() != ts {
			continue
		}
		m.UserText = ""
		m.UserContent = []models.ContentBlock{models.TextBlock(newText)}
		return true
	}
	return false
}

// removeByTimestamp removes the first queued user message with a matching
// timestamp and reports whether anything was removed.
func (q *messageQueue) removeByTimestamp(ts int64) bool {
	for i := range q.items {
		if q.items[i].Role == models.RoleUser && q.items[i].Timestamp.UnixNano() == ts {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// clear empties the queue.
func (q *messageQueue) clear() {
	q.items = nil
}

// popFront removes and returns the first queued message, if any.
func (q *messageQueue) popFront() (models.Message, bool) {
	if len(q.items) == 0 {
		return models.Message{}, false
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m, true
}

func (q *messageQueue) len() int { return len(q.items) }
