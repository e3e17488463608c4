// Package session provides per-visitor session storage backends.
package session

import (
	"context"
	"errors"

	"shoplab/api/internal/cart"
	"shoplab/api/internal/participant"
)

// ErrNotFound is returned when no state exists for a session id.
var ErrNotFound = errors.New("session not found")

// State is everything the experiment keeps per visitor. A zero State is the
// defined "not yet present" value: no participant, no condition, empty cart.
type State struct {
	ParticipantID string                `json:"participant_id,omitempty"`
	Condition     participant.Condition `json:"condition,omitempty"`
	FromPrevious  bool                  `json:"from_previous,omitempty"`
	Cart          []cart.Line           `json:"cart,omitempty"`
}

// HasParticipant reports whether identity capture has completed.
func (s State) HasParticipant() bool {
	return s.ParticipantID != ""
}

// Store persists visitor state keyed by session id. Reads and writes are
// plain read-modify-write: concurrent requests for the same session are
// last-write-wins, an accepted limitation of the experiment app.
type Store interface {
	Load(ctx context.Context, sid string) (State, error)
	Save(ctx context.Context, sid string, state State) error
	Delete(ctx context.Context, sid string) error
	Close() error
}
