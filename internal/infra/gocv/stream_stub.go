//go:build !gocv

package gocv

import (
	"context"
	"errors"

	"github.com/fiapx/fiapx-vision-service/internal/domain/port"
	"go.uber.org/zap"
)

const Available = false

var errNotBuilt = errors.New("gocv decoder not compiled in; rebuild with -tags gocv")

type Decoder struct{}

func NewDecoder(_ *zap.Logger) *Decoder {
	return &Decoder{}
}

func (d *Decoder) Open(_ context.Context, _ string) (port.VideoStream, error) {
	return nil, errNotBuilt
}
