package vision

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	"github.com/fiapx/fiapx-vision-service/internal/domain/port"
	"go.uber.org/zap"
)

const maxBackoff = 60 * time.Second

// RetryingDetector retries transient detector failures with exponential backoff.
type RetryingDetector struct {
	inner       port.Detector
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger
}

func NewRetryingDetector(inner port.Detector, maxAttempts int, baseDelay time.Duration, logger *zap.Logger) *RetryingDetector {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryingDetector{inner: inner, maxAttempts: maxAttempts, baseDelay: baseDelay, logger: logger}
}

func (r *RetryingDetector) Detect(ctx context.Context, image []byte) ([]entity.Detection, error) {
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		var out []entity.Detection
		out, err = r.inner.Detect(ctx, image)
		if err == nil {
			return out, nil
		}
		if attempt == r.maxAttempts || !retryable(err) {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Warn("detector call failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, err
}

func (r *RetryingDetector) backoff(attempt int) time.Duration {
	delay := r.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// retryable is true for transport errors, throttling and server-side failures.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var derr *entity.DetectionServiceError
	if !errors.As(err, &derr) {
		return true
	}
	return derr.StatusCode == 0 ||
		derr.StatusCode == http.StatusTooManyRequests ||
		derr.StatusCode >= http.StatusInternalServerError
}
