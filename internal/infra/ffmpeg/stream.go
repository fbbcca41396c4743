package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"sync/atomic"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	"github.com/fiapx/fiapx-vision-service/internal/domain/port"
	"go.uber.org/zap"
)

var errStreamClosed = errors.New("stream closed")

type DecoderConfig struct {
	FFmpegPath  string
	FFprobePath string
	// ExactFrameCount decodes the whole file once at open time to count frames
	// instead of trusting the container header.
	ExactFrameCount bool
}

// Decoder opens local video files as frame-addressable streams backed by the
// ffmpeg and ffprobe binaries.
type Decoder struct {
	ffmpegPath      string
	ffprobePath     string
	exactFrameCount bool
	logger          *zap.Logger
}

func NewDecoder(cfg DecoderConfig, logger *zap.Logger) *Decoder {
	d := &Decoder{
		ffmpegPath:      cfg.FFmpegPath,
		ffprobePath:     cfg.FFprobePath,
		exactFrameCount: cfg.ExactFrameCount,
		logger:          logger,
	}
	if d.ffmpegPath == "" {
		d.ffmpegPath = "ffmpeg"
	}
	if d.ffprobePath == "" {
		d.ffprobePath = "ffprobe"
	}
	return d
}

func (d *Decoder) Open(ctx context.Context, path string) (port.VideoStream, error) {
	meta, err := d.probe(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &entity.InvalidStreamError{Source: path, Err: err}
	}

	d.logger.Debug("video stream opened",
		zap.String("path", path),
		zap.Int("fps", meta.FPS),
		zap.Int("frame_count", meta.FrameCount),
		zap.Int("width", meta.Width),
		zap.Int("height", meta.Height),
		zap.Float64("duration", meta.Duration),
	)

	return &Stream{ffmpegPath: d.ffmpegPath, path: path, meta: *meta}, nil
}

// Stream decodes single frames on demand. Each ReadFrame is an independent
// ffmpeg run selecting frame n exactly, so reads do not depend on each other.
type Stream struct {
	ffmpegPath string
	path       string
	meta       Metadata
	closed     atomic.Bool
}

func (s *Stream) FPS() int        { return s.meta.FPS }
func (s *Stream) FrameCount() int { return s.meta.FrameCount }

func (s *Stream) ReadFrame(ctx context.Context, index int) (image.Image, error) {
	if s.closed.Load() {
		return nil, errStreamClosed
	}
	if index < 0 || index >= s.meta.FrameCount {
		return nil, fmt.Errorf("%w: index %d of %d", entity.ErrFrameUnavailable, index, s.meta.FrameCount)
	}

	cmd := exec.CommandContext(ctx, s.ffmpegPath, readFrameArgs(s.path, index)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("ffmpeg error: %w, output: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: index %d produced no output", entity.ErrFrameUnavailable, index)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", index, err)
	}
	return img, nil
}

func (s *Stream) Close() error {
	s.closed.Store(true)
	return nil
}

func readFrameArgs(path string, index int) []string {
	return []string{
		"-nostats", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-map", "0:v:0",
		"-vf", fmt.Sprintf(`select=eq(n\,%d)`, index),
		"-fps_mode", "passthrough",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"pipe:1",
	}
}
