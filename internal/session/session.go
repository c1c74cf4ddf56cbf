// Package session drives one image submission through classification,
// normalization and bounty description, and holds the user's selection until
// it is confirmed.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HacksterAman/Clean-Bounty/internal/classifier"
	"github.com/HacksterAman/Clean-Bounty/internal/imageprocessor"
	"github.com/HacksterAman/Clean-Bounty/internal/logging"
	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

// Status is the lifecycle state of a session.
type Status int

const (
	Analyzing Status = iota
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Analyzing:
		return "analyzing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status name in JSON.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	// ErrNotReady is returned by Select while the session is not Ready.
	ErrNotReady = errors.New("session is not ready")
	// ErrAlreadyRun is returned when Run is called twice.
	ErrAlreadyRun = errors.New("session already run")
)

// Progress checkpoints reported while analyzing.
const (
	progressClassified = 40
	progressNormalized = 70
	progressDone       = 100
)

// Session is the per-submission orchestration state. It is safe for
// concurrent use; stages run sequentially inside Run.
type Session struct {
	id        string
	image     imageprocessor.Image
	location  *waste.Location
	createdAt time.Time

	classifier classifier.Classifier
	describer  classifier.Describer
	logger     *zap.Logger

	mu       sync.RWMutex
	started  bool
	status   Status
	progress int
	result   *waste.ClassificationResult
	selected *waste.Candidate
	bounty   *waste.BountyDescription
	err      error
	warning  error
}

// New creates a session in the Analyzing state. loc may be nil when
// geolocation is unavailable.
func New(img imageprocessor.Image, loc *waste.Location, c classifier.Classifier, d classifier.Describer, logger *zap.Logger) *Session {
	if loc != nil {
		l := *loc
		loc = &l
	}
	return &Session{
		id:         uuid.NewString(),
		image:      img,
		location:   loc,
		createdAt:  time.Now().UTC(),
		classifier: c,
		describer:  d,
		logger:     logger.Named("session"),
		status:     Analyzing,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Image returns the borrowed image reference.
func (s *Session) Image() imageprocessor.Image { return s.image }

// Location returns the capture location, or nil.
func (s *Session) Location() *waste.Location {
	if s.location == nil {
		return nil
	}
	l := *s.location
	return &l
}

// Run executes the pipeline once: classify, normalize, default selection,
// best-effort description. The returned error is the classification failure,
// if any; a description failure is only recorded as a warning.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRun
	}
	s.started = true
	s.mu.Unlock()

	opLogger := logging.WithOperation(s.logger, "session.run", s.id)

	raw, err := s.classifier.Classify(ctx, s.image)
	if err != nil {
		if !waste.Fatal(err) {
			err = fmt.Errorf("%w: %w", waste.ErrUpstream, err)
		}
		wrapped := logging.NewOperationError("session.classify", s.id, err)
		opLogger.Warn("classification failed", logging.ErrorFields(wrapped)...)
		s.mu.Lock()
		s.status = Failed
		s.err = wrapped
		s.mu.Unlock()
		return wrapped
	}
	s.setProgress(progressClassified)

	result := waste.NormalizeResult(raw)
	s.mu.Lock()
	s.result = &result
	if !result.Empty() {
		first := result.Candidates[0]
		s.selected = &first
	}
	s.progress = progressNormalized
	s.mu.Unlock()

	if !result.Empty() {
		bounty, err := s.describer.Describe(ctx, result)
		if err != nil {
			warning := logging.NewOperationError("session.describe", s.id, err)
			opLogger.Warn("bounty description unavailable", logging.ErrorFields(warning)...)
			s.mu.Lock()
			s.warning = warning
			s.mu.Unlock()
		} else {
			s.mu.Lock()
			s.bounty = &bounty
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.status = Ready
	s.progress = progressDone
	s.mu.Unlock()

	opLogger.Info("session ready",
		zap.Int("candidates", len(result.Candidates)),
		zap.Bool("bounty", s.Bounty() != nil),
	)
	return nil
}

func (s *Session) setProgress(p int) {
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
}

// Select replaces the current selection. A nil candidate deselects. The
// candidate must be one of the result's candidates.
func (s *Session) Select(c *waste.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != Ready {
		return ErrNotReady
	}
	if c == nil {
		s.selected = nil
		return nil
	}
	if !s.result.Contains(*c) {
		return fmt.Errorf("%w: %q", waste.ErrInvalidSelection, c.Type)
	}
	picked := *c
	s.selected = &picked
	return nil
}

// SelectType selects the candidate with the given label, matched
// case-insensitively. An empty label deselects.
func (s *Session) SelectType(label string) error {
	if label == "" {
		return s.Select(nil)
	}
	s.mu.RLock()
	ready := s.status == Ready
	var (
		c  waste.Candidate
		ok bool
	)
	if ready {
		c, ok = s.result.ByType(label)
	}
	s.mu.RUnlock()

	if !ready {
		return ErrNotReady
	}
	if !ok {
		return fmt.Errorf("%w: %q", waste.ErrInvalidSelection, label)
	}
	return s.Select(&c)
}

// Confirm returns the selected candidate for reporting. It does not change
// the session.
func (s *Session) Confirm() (waste.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status != Ready || s.selected == nil {
		return waste.Candidate{}, waste.ErrNoSelection
	}
	return *s.selected, nil
}

// Status returns the current state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Result returns the normalized result, or nil before classification.
func (s *Session) Result() *waste.ClassificationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil
	}
	r := waste.ClassificationResult{Candidates: append([]waste.Candidate(nil), s.result.Candidates...)}
	return &r
}

// Selected returns the current selection, or nil.
func (s *Session) Selected() *waste.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return nil
	}
	c := *s.selected
	return &c
}

// Bounty returns the generated description, or nil when none is available.
func (s *Session) Bounty() *waste.BountyDescription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bounty
}

// Err returns the classification failure of a Failed session.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Warning returns the description failure, if any.
func (s *Session) Warning() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warning
}
