package session

import (
	"time"

	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

// Snapshot is a point-in-time copy of a session for rendering.
type Snapshot struct {
	ID         string                   `json:"id"`
	Status     Status                   `json:"status"`
	Progress   int                      `json:"progress"`
	ImageRef   string                   `json:"image_ref"`
	Candidates []waste.Candidate        `json:"candidates"`
	Selected   *waste.Candidate         `json:"selected"`
	Bounty     *waste.BountyDescription `json:"bounty"`
	Error      string                   `json:"error,omitempty"`
	ErrorKind  string                   `json:"error_kind,omitempty"`
	Warning    string                   `json:"warning,omitempty"`
	Location   *waste.Location          `json:"location"`
	CreatedAt  time.Time                `json:"created_at"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:         s.id,
		Status:     s.status,
		Progress:   s.progress,
		ImageRef:   s.image.Ref(),
		Candidates: []waste.Candidate{},
		Bounty:     s.bounty,
		Location:   s.Location(),
		CreatedAt:  s.createdAt,
	}
	if s.result != nil {
		snap.Candidates = append(snap.Candidates, s.result.Candidates...)
	}
	if s.selected != nil {
		c := *s.selected
		snap.Selected = &c
	}
	if s.err != nil {
		snap.Error = s.err.Error()
		snap.ErrorKind = waste.Kind(s.err)
	}
	if s.warning != nil {
		snap.Warning = s.warning.Error()
	}
	return snap
}
