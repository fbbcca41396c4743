//go:build gocv

package gocv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	"github.com/fiapx/fiapx-vision-service/internal/domain/port"
	"go.uber.org/zap"
	cv "gocv.io/x/gocv"
)

// Available reports whether this build links OpenCV.
const Available = true

type Decoder struct {
	logger *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{logger: logger}
}

func (d *Decoder) Open(_ context.Context, path string) (port.VideoStream, error) {
	vc, err := cv.VideoCaptureFile(path)
	if err != nil {
		return nil, &entity.InvalidStreamError{Source: path, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &entity.InvalidStreamError{Source: path}
	}

	s := &Stream{
		capture:    vc,
		mat:        cv.NewMat(),
		fps:        int(vc.Get(cv.VideoCaptureFPS)),
		frameCount: int(vc.Get(cv.VideoCaptureFrameCount)),
	}
	d.logger.Debug("video stream opened",
		zap.String("path", path),
		zap.Int("fps", s.fps),
		zap.Int("frame_count", s.frameCount),
	)
	return s, nil
}

// Stream wraps a VideoCapture. Reads seek with CAP_PROP_POS_FRAMES first, so
// the order of ReadFrame calls does not matter.
type Stream struct {
	mu         sync.Mutex
	capture    *cv.VideoCapture
	mat        cv.Mat
	fps        int
	frameCount int
	closed     bool
}

func (s *Stream) FPS() int        { return s.fps }
func (s *Stream) FrameCount() int { return s.frameCount }

func (s *Stream) ReadFrame(ctx context.Context, index int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("stream closed")
	}

	s.capture.Set(cv.VideoCapturePosFrames, float64(index))
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("%w: index %d", entity.ErrFrameUnavailable, index)
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame %d: %w", index, err)
	}
	return img, nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.mat.Close(); err != nil {
		return err
	}
	return s.capture.Close()
}
