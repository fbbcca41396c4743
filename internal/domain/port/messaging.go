package port

import (
	"context"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
)

type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}

// ResultEmitter fans analysis results out to subscribers outside the work queue.
type ResultEmitter interface {
	EmitAnalysis(ctx context.Context, baseName string, payload []byte) error
}

type AnalysisScheduler interface {
	ScheduleAnalysis(ctx context.Context, msg entity.AnalysisMessage) error
}
