package port

import (
	"context"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
)

type Detector interface {
	Detect(ctx context.Context, image []byte) ([]entity.Detection, error)
}
