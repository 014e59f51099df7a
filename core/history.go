package core

import (
	"fmt"
	"sync"
)

// History is the ordered, append-only sequence of Turns for one
// conversation. It is safe for concurrent access.
//
// Contract:
//   - Append validates tool back-references before accepting a turn
//   - Turns returns a copy
//   - Clone produces an independent copy used as a working set by callers
//     that want to commit a turn atomically
type History struct {
	mu    sync.RWMutex
	turns []Turn
	// pending tracks tool call ids of the latest assistant request that
	// have not been answered yet.
	pending map[string]bool
}

// NewHistory creates a history pre-seeded with the provided turns.
// Seed turns go through Append so the invariants hold from the start.
func NewHistory(seed ...Turn) (*History, error) {
	h := &History{turns: make([]Turn, 0, len(seed)), pending: map[string]bool{}}
	for _, t := range seed {
		if err := h.Append(t); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Append adds a turn to the end of the history.
//
// A tool turn must reference an unanswered call of the most recent
// assistant tool request; anything else is rejected.
func (h *History) Append(t Turn) error {
	if !t.Role.Valid() {
		return fmt.Errorf("history: invalid role %q", t.Role)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pending == nil {
		h.pending = map[string]bool{}
	}

	switch {
	case t.Role == RoleTool:
		if t.ToolCallID == "" {
			return fmt.Errorf("history: tool turn without tool_call_id")
		}
		if !h.pending[t.ToolCallID] {
			return fmt.Errorf("history: tool turn references unknown or answered call %q", t.ToolCallID)
		}
		delete(h.pending, t.ToolCallID)
	case t.RequestsTools():
		h.pending = make(map[string]bool, len(t.ToolCalls))
		for _, c := range t.ToolCalls {
			if c.ID == "" {
				return fmt.Errorf("history: tool call %q without id", c.Name)
			}
			h.pending[c.ID] = true
		}
	default:
		h.pending = map[string]bool{}
	}

	h.turns = append(h.turns, t)

	return nil
}

// Turns returns a copy of all turns.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	turns := make([]Turn, len(h.turns))
	copy(turns, h.turns)
	return turns
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Last returns the most recent turn and false when the history is empty.
func (h *History) Last() (Turn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}

// HasSystem reports whether the first turn is a system turn.
func (h *History) HasSystem() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns) > 0 && h.turns[0].Role == RoleSystem
}

// PendingToolCalls returns the number of unanswered calls of the latest request.
func (h *History) PendingToolCalls() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pending)
}

// Clone returns a deep copy safe for independent mutation.
func (h *History) Clone() *History {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clone := &History{turns: make([]Turn, len(h.turns)), pending: make(map[string]bool, len(h.pending))}
	copy(clone.turns, h.turns)
	for k, v := range h.pending {
		clone.pending[k] = v
	}
	return clone
}
