package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HacksterAman/Clean-Bounty/internal/classifier"
	"github.com/HacksterAman/Clean-Bounty/internal/imageprocessor"
	"github.com/HacksterAman/Clean-Bounty/internal/ledger"
	"github.com/HacksterAman/Clean-Bounty/internal/logging"
	"github.com/HacksterAman/Clean-Bounty/internal/report"
	"github.com/HacksterAman/Clean-Bounty/internal/repository"
	"github.com/HacksterAman/Clean-Bounty/internal/session"
	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

var (
	// ErrNotFound is returned for unknown or foreign session and report ids.
	ErrNotFound = errors.New("not found")
	// ErrNotRetryable is returned when retrying a session that did not fail.
	ErrNotRetryable = errors.New("session did not fail")
	// ErrSuperseded is returned to a submission cancelled by a newer one from
	// the same user. Its outcome is discarded.
	ErrSuperseded = errors.New("submission superseded by a newer one")
	// ErrUnavailable is returned by history queries when no database is configured.
	ErrUnavailable = errors.New("submission history unavailable")
)

// SubmissionRepository defines the persistence operations needed by the use case.
type SubmissionRepository interface {
	SaveLog(ctx context.Context, log *repository.SubmissionLog) error
	FindBySessionIDAndUser(ctx context.Context, sessionID, userID string) (*repository.SubmissionLog, error)
	FindDuplicatesByHash(ctx context.Context, userID, hash, excludeSessionID string) ([]*repository.SubmissionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// DuplicateReport lists earlier submissions of the same image.
type DuplicateReport struct {
	Request    *repository.SubmissionLog
	Duplicates []*repository.SubmissionLog
}

// Option customizes a SubmissionUseCase.
type Option func(*SubmissionUseCase)

// WithCacheTTL sets how long classification results stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(uc *SubmissionUseCase) { uc.cacheTTL = ttl }
}

// WithClassifyTimeout bounds one session run. Zero disables the bound.
func WithClassifyTimeout(d time.Duration) Option {
	return func(uc *SubmissionUseCase) { uc.classifyTimeout = d }
}

// WithReportLimit caps how many reports are kept per user. The oldest report
// is evicted once the cap is reached.
func WithReportLimit(n int) Option {
	return func(uc *SubmissionUseCase) { uc.reportLimit = n }
}

// WithReportBuilder replaces the default report builder.
func WithReportBuilder(b report.Builder) Option {
	return func(uc *SubmissionUseCase) { uc.builder = b }
}

type ownedSession struct {
	userID  string
	session *session.Session
}

type ownedReport struct {
	userID string
	report *report.WasteReport
}

type inflight struct {
	cancel context.CancelFunc
}

// SubmissionUseCase encapsulates the submit, select, confirm and claim flow.
type SubmissionUseCase struct {
	repo       SubmissionRepository
	cache      Cache
	classifier classifier.Classifier
	describer  classifier.Describer
	builder    report.Builder
	ledgers    *ledger.Book
	logger     *zap.Logger

	cacheTTL        time.Duration
	classifyTimeout time.Duration
	retryAttempts   int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	reportLimit     int

	mu          sync.Mutex
	sessions    map[string]ownedSession
	current     map[string]string
	reports     map[string]ownedReport
	userReports map[string][]string
	running     map[string]*inflight
}

// NewSubmissionUseCase constructs a new use case instance. repo and cache may
// be nil when the database or redis is disabled.
func NewSubmissionUseCase(repo SubmissionRepository, cache Cache, c classifier.Classifier, d classifier.Describer, logger *zap.Logger, opts ...Option) *SubmissionUseCase {
	uc := &SubmissionUseCase{
		repo:            repo,
		cache:           cache,
		classifier:      c,
		describer:       d,
		ledgers:         ledger.NewBook(),
		logger:          logger.Named("submission_usecase"),
		cacheTTL:        24 * time.Hour,
		classifyTimeout: 60 * time.Second,
		retryAttempts:   3,
		initialBackoff:  50 * time.Millisecond,
		maxBackoff:      time.Second,
		reportLimit:     100,
		sessions:        make(map[string]ownedSession),
		current:         make(map[string]string),
		reports:         make(map[string]ownedReport),
		userReports:     make(map[string][]string),
		running:         make(map[string]*inflight),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Submit encodes the image and runs a new session for it, replacing the
// user's previous session. mimeType is the declared type and may be empty.
// A previous in-flight submission of the same user is cancelled.
// Classification failures leave the returned session Failed; only encoding
// errors and supersession are returned as errors.
func (uc *SubmissionUseCase) Submit(ctx context.Context, userID string, data []byte, mimeType string, loc *waste.Location) (*session.Session, error) {
	img, err := imageprocessor.Encode(data, mimeType)
	if err != nil {
		return nil, logging.NewOperationError("usecase.encode_image", "", err)
	}
	return uc.run(ctx, userID, img, loc)
}

func (uc *SubmissionUseCase) run(ctx context.Context, userID string, img imageprocessor.Image, loc *waste.Location) (*session.Session, error) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if uc.classifyTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, uc.classifyTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	mine := &inflight{cancel: cancel}
	uc.mu.Lock()
	if prev, ok := uc.running[userID]; ok {
		prev.cancel()
	}
	uc.running[userID] = mine
	uc.mu.Unlock()

	cls, hit := uc.lookupCached(ctx, img)
	sess := session.New(img, loc, cls, uc.describer, uc.logger)
	opLogger := logging.WithOperation(uc.logger, "usecase.submit", sess.ID())

	started := time.Now()
	runErr := sess.Run(runCtx)
	latency := time.Since(started)

	uc.mu.Lock()
	superseded := uc.running[userID] != mine
	if !superseded {
		delete(uc.running, userID)
	}
	uc.mu.Unlock()

	if superseded {
		opLogger.Info("discarding superseded submission")
		return nil, logging.NewOperationError("usecase.submit", sess.ID(), ErrSuperseded)
	}

	if runErr == nil && !hit {
		uc.storeCached(ctx, sess)
	}
	uc.saveLog(ctx, userID, sess, latency)

	uc.mu.Lock()
	if prev, ok := uc.current[userID]; ok {
		delete(uc.sessions, prev)
	}
	uc.sessions[sess.ID()] = ownedSession{userID: userID, session: sess}
	uc.current[userID] = sess.ID()
	uc.mu.Unlock()

	opLogger.Info("submission processed",
		zap.String("status", sess.Status().String()),
		zap.Bool("cache_hit", hit),
		zap.Duration("latency", latency),
	)
	return sess, nil
}

// Retry re-runs the image of a Failed session as a new session.
func (uc *SubmissionUseCase) Retry(ctx context.Context, userID, sessionID string) (*session.Session, error) {
	sess, err := uc.Session(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status() != session.Failed {
		return nil, logging.NewOperationError("usecase.retry", sessionID, ErrNotRetryable)
	}

	uc.mu.Lock()
	uc.dropSession(userID, sessionID)
	uc.mu.Unlock()

	return uc.run(ctx, userID, sess.Image(), sess.Location())
}

// Session returns a session owned by userID.
func (uc *SubmissionUseCase) Session(userID, sessionID string) (*session.Session, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	owned, ok := uc.sessions[sessionID]
	if !ok || owned.userID != userID {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return owned.session, nil
}

// Select changes the session's selection. A nil label deselects.
func (uc *SubmissionUseCase) Select(userID, sessionID string, label *string) error {
	sess, err := uc.Session(userID, sessionID)
	if err != nil {
		return err
	}
	if label == nil {
		return sess.Select(nil)
	}
	if strings.TrimSpace(*label) == "" {
		return fmt.Errorf("%w: empty type", waste.ErrInvalidSelection)
	}
	return sess.SelectType(*label)
}

// Confirm turns the session's selection into a report. The session is
// dropped once the report exists.
func (uc *SubmissionUseCase) Confirm(userID, sessionID string) (*report.WasteReport, error) {
	sess, err := uc.Session(userID, sessionID)
	if err != nil {
		return nil, err
	}
	candidate, err := sess.Confirm()
	if err != nil {
		return nil, err
	}

	rep := uc.builder.Build(candidate, sess.Image().Ref(), sess.Location())

	uc.mu.Lock()
	uc.storeReport(userID, rep)
	uc.dropSession(userID, sessionID)
	uc.mu.Unlock()

	logging.WithOperation(uc.logger, "usecase.confirm", sessionID).Info("report created",
		zap.String("report_id", rep.ID),
		zap.String("type", candidate.Type),
		zap.Int("points", candidate.Points),
	)
	return rep, nil
}

// dropSession forgets a session. uc.mu must be held.
func (uc *SubmissionUseCase) dropSession(userID, sessionID string) {
	delete(uc.sessions, sessionID)
	if uc.current[userID] == sessionID {
		delete(uc.current, userID)
	}
}

// storeReport registers rep and evicts the user's oldest reports beyond the
// limit. uc.mu must be held.
func (uc *SubmissionUseCase) storeReport(userID string, rep *report.WasteReport) {
	uc.reports[rep.ID] = ownedReport{userID: userID, report: rep}
	ids := append(uc.userReports[userID], rep.ID)
	if uc.reportLimit > 0 {
		for len(ids) > uc.reportLimit {
			delete(uc.reports, ids[0])
			ids = ids[1:]
		}
	}
	uc.userReports[userID] = ids
}

// Report returns a report owned by userID.
func (uc *SubmissionUseCase) Report(userID, reportID string) (*report.WasteReport, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	owned, ok := uc.reports[reportID]
	if !ok || owned.userID != userID {
		return nil, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}
	return owned.report, nil
}

// Claim credits the report's points to the user's ledger once.
func (uc *SubmissionUseCase) Claim(userID, reportID string) (int, int, error) {
	rep, err := uc.Report(userID, reportID)
	if err != nil {
		return 0, 0, err
	}
	l := uc.ledgers.For(userID)
	delta, err := l.Claim(rep)
	if err != nil {
		return 0, l.Balance(), err
	}
	balance := l.Balance()
	logging.WithOperation(uc.logger, "usecase.claim", reportID).Info("points claimed",
		zap.Int("delta", delta),
		zap.Int("balance", balance),
	)
	return delta, balance, nil
}

// Balance returns the user's points total.
func (uc *SubmissionUseCase) Balance(userID string) int {
	return uc.ledgers.For(userID).Balance()
}

// GetDuplicates lists the user's earlier submissions of the session's image.
func (uc *SubmissionUseCase) GetDuplicates(ctx context.Context, userID, sessionID string) (*DuplicateReport, error) {
	if uc.repo == nil {
		return nil, ErrUnavailable
	}
	log, err := uc.repo.FindBySessionIDAndUser(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	duplicates, err := uc.repo.FindDuplicatesByHash(ctx, userID, log.SHA1Hash, log.SessionID)
	if err != nil {
		return nil, err
	}

	return &DuplicateReport{
		Request:    log,
		Duplicates: duplicates,
	}, nil
}

func (uc *SubmissionUseCase) saveLog(ctx context.Context, userID string, sess *session.Session, latency time.Duration) {
	if uc.repo == nil {
		return
	}
	log := &repository.SubmissionLog{
		SessionID:           sess.ID(),
		UserID:              userID,
		SHA1Hash:            sess.Image().SHA1,
		Status:              sess.Status().String(),
		ErrorKind:           waste.Kind(sess.Err()),
		HasBounty:           sess.Bounty() != nil,
		ProcessingLatencyMs: latency.Milliseconds(),
		CreatedAt:           time.Now().UTC(),
	}
	if loc := sess.Location(); loc != nil {
		log.Lat, log.Lng = &loc.Lat, &loc.Lng
	}
	if res := sess.Result(); res != nil {
		log.CandidateCount = len(res.Candidates)
		if !res.Empty() {
			log.TopType = res.Candidates[0].Type
			log.TopConfidence = res.Candidates[0].Confidence
		}
	}
	log.Details = fmt.Sprintf("status:%s candidates:%d top:%s hash:%s", log.Status, log.CandidateCount, log.TopType, log.SHA1Hash)

	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", sess.ID(), err)
		logging.WithOperation(uc.logger, "usecase.save_log", sess.ID()).Error("failed to persist submission log", logging.ErrorFields(wrapped)...)
	}
}
