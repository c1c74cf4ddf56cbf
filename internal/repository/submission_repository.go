package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/HacksterAman/Clean-Bounty/internal/logging"
)

// SubmissionLog is the persisted record of one classified submission.
type SubmissionLog struct {
	ID                  uint      `gorm:"primaryKey"`
	SessionID           string    `gorm:"column:session_id;uniqueIndex;size:64"`
	UserID              string    `gorm:"column:user_id;size:64;index"`
	SHA1Hash            string    `gorm:"column:sha1_hash;size:40;index"`
	Status              string    `gorm:"column:status;size:16"`
	ErrorKind           string    `gorm:"column:error_kind;size:32"`
	TopType             string    `gorm:"column:top_type;size:64"`
	TopConfidence       float64   `gorm:"column:top_confidence"`
	CandidateCount      int       `gorm:"column:candidate_count"`
	HasBounty           bool      `gorm:"column:has_bounty"`
	Details             string    `gorm:"column:details;type:text"`
	Lat                 *float64  `gorm:"column:lat"`
	Lng                 *float64  `gorm:"column:lng"`
	ProcessingLatencyMs int64     `gorm:"column:processing_latency_ms"`
	CreatedAt           time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (SubmissionLog) TableName() string {
	return "submission_logs"
}

// MetricsAggregation holds the raw totals behind the metrics summary.
type MetricsAggregation struct {
	TotalCount                 int64
	ReadyCount                 int64
	AverageTopConfidence       float64
	AverageProcessingLatencyMs float64
}

// SubmissionRepository provides persistence APIs for submission logs.
type SubmissionRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewSubmissionRepository creates a new repository instance.
func NewSubmissionRepository(db *gorm.DB, logger *zap.Logger) *SubmissionRepository {
	return &SubmissionRepository{
		db:             db,
		logger:         logger.Named("submission_repository"),
		retryAttempts:  3,
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     2 * time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *SubmissionRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&SubmissionLog{})
	})
}

// SaveLog persists a submission log entry.
func (r *SubmissionRepository) SaveLog(ctx context.Context, log *SubmissionLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.SessionID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindBySessionIDAndUser retrieves the log of a session owned by userID.
func (r *SubmissionRepository) FindBySessionIDAndUser(ctx context.Context, sessionID, userID string) (*SubmissionLog, error) {
	var log SubmissionLog
	err := r.executeWithRetry(ctx, "repository.find_by_session", sessionID, func() error {
		return r.db.WithContext(ctx).First(&log, "session_id = ? AND user_id = ?", sessionID, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// FindDuplicatesByHash lists the user's other submissions of the same image,
// oldest first.
func (r *SubmissionRepository) FindDuplicatesByHash(ctx context.Context, userID, hash, excludeSessionID string) ([]*SubmissionLog, error) {
	var logs []*SubmissionLog
	err := r.executeWithRetry(ctx, "repository.find_duplicates", excludeSessionID, func() error {
		return r.db.WithContext(ctx).
			Where("user_id = ? AND sha1_hash = ? AND session_id <> ?", userID, hash, excludeSessionID).
			Order("created_at ASC").
			Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregateMetrics computes totals across all submission logs.
func (r *SubmissionRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var row struct {
		TotalCount                 int64
		ReadyCount                 int64
		AverageTopConfidence       float64
		AverageProcessingLatencyMs float64
	}
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&SubmissionLog{}).
			Select(`COUNT(*) AS total_count,
				COALESCE(SUM(CASE WHEN status = 'ready' THEN 1 ELSE 0 END), 0) AS ready_count,
				COALESCE(AVG(CASE WHEN status = 'ready' THEN top_confidence END), 0) AS average_top_confidence,
				COALESCE(AVG(processing_latency_ms), 0) AS average_processing_latency_ms`).
			Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &MetricsAggregation{
		TotalCount:                 row.TotalCount,
		ReadyCount:                 row.ReadyCount,
		AverageTopConfidence:       row.AverageTopConfidence,
		AverageProcessingLatencyMs: row.AverageProcessingLatencyMs,
	}, nil
}

func (r *SubmissionRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return logging.NewOperationError(operation, requestID, err)
		}
		if !isTransientError(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}
