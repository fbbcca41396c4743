package port

import (
	"context"
	"image"
)

// VideoStream is a decodable video with random access by frame index.
type VideoStream interface {
	FPS() int
	FrameCount() int
	// ReadFrame seeks to index and decodes that single frame.
	ReadFrame(ctx context.Context, index int) (image.Image, error)
	Close() error
}

type VideoOpener interface {
	Open(ctx context.Context, path string) (VideoStream, error)
}
