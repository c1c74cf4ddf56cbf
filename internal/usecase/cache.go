package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/HacksterAman/Clean-Bounty/internal/classifier"
	"github.com/HacksterAman/Clean-Bounty/internal/imageprocessor"
	"github.com/HacksterAman/Clean-Bounty/internal/logging"
	"github.com/HacksterAman/Clean-Bounty/internal/session"
)

// Cache abstracts the Redis operations used by the use case to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func classificationKey(img imageprocessor.Image) string {
	return fmt.Sprintf("classification:%s", img.SHA1)
}

// lookupCached returns a classifier serving the cached result for img, or the
// configured classifier on a miss. Cache errors are logged and treated as a miss.
func (uc *SubmissionUseCase) lookupCached(ctx context.Context, img imageprocessor.Image) (classifier.Classifier, bool) {
	if uc.cache == nil {
		return uc.classifier, false
	}
	ref := img.Ref()
	opLogger := logging.WithOperation(uc.logger, "usecase.cache_lookup", ref)

	cached, err := uc.withRedisGet(ctx, ref, "cache.get.classification", classificationKey(img))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
		return uc.classifier, false
	}

	result, err := classifier.ParseClassification(cached)
	if err != nil {
		opLogger.Warn("failed to decode cached classification", zap.Error(err))
		return uc.classifier, false
	}
	opLogger.Debug("classification cache hit", zap.Int("candidates", len(result.Candidates)))
	return classifier.Static(result), true
}

func (uc *SubmissionUseCase) storeCached(ctx context.Context, sess *session.Session) {
	if uc.cache == nil {
		return
	}
	res := sess.Result()
	if res == nil {
		return
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.cache_store", sess.ID())

	serialized, err := classifier.EncodeResult(*res)
	if err != nil {
		opLogger.Error("failed to serialize classification", zap.Error(err))
		return
	}
	key := classificationKey(sess.Image())
	if err := uc.withRedisRetry(ctx, sess.ID(), "cache.set.classification", func() error {
		return uc.cache.Set(ctx, key, serialized, uc.cacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache classification", zap.Error(err))
	}
}

func (uc *SubmissionUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			if !errors.Is(err, redis.Nil) {
				opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			}
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *SubmissionUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
