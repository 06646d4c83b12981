package domain

import (
	"encoding/json"
	"time"
)

// Checkpoint is the serialized form of a suspended workflow instance.
type Checkpoint struct {
	SessionID string          `json:"session_id"`
	NodeID    string          `json:"node_id"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
	// Meta holds transport-level annotations (scope, encryption envelope).
	Meta map[string]string `json:"meta,omitempty"`
}

// NewCheckpoint serializes st at node.
func NewCheckpoint(sessionID, node string, st *State) (*Checkpoint, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return &Checkpoint{
		SessionID: sessionID,
		NodeID:    node,
		State:     raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Restore decodes the checkpoint's state against reg.
func (c *Checkpoint) Restore(reg *Registry) (*State, error) {
	return reg.Decode(c.State)
}
