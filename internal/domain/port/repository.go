package port

import (
	"context"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
)

type VideoRepository interface {
	Create(ctx context.Context, video *entity.Video) error
	Update(ctx context.Context, video *entity.Video) error
	FindByKey(ctx context.Context, videoKey string) (*entity.Video, error)
}
