package usecase

import (
	"context"
	"errors"
	"image"
	"image/color"
	"slices"
	"strings"
	"sync"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	"github.com/fiapx/fiapx-vision-service/internal/domain/port"
)

var errNotFound = errors.New("object not found")

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []string
	gets    []string
	failPut map[string]error
	failGet map[string]error
	listErr error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, failPut: map[string]error{}, failGet: map[string]error{}}
}

func (s *memStore) Put(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failPut[key]; ok {
		return err
	}
	s.puts = append(s.puts, key)
	s.objects[key] = slices.Clone(data)
	return nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets = append(s.gets, key)
	if err, ok := s.failGet[key]; ok {
		return nil, err
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, errNotFound
	}
	return slices.Clone(data), nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// fakeStream paints every frame a gray level derived from its index.
type fakeStream struct {
	fps, count int
	failAt     map[int]error
	closed     bool
}

func (f *fakeStream) FPS() int        { return f.fps }
func (f *fakeStream) FrameCount() int { return f.count }
func (f *fakeStream) Close() error    { f.closed = true; return nil }

func (f *fakeStream) ReadFrame(_ context.Context, index int) (image.Image, error) {
	if err, ok := f.failAt[index]; ok {
		return nil, err
	}
	if index >= f.count {
		return nil, entity.ErrFrameUnavailable
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	c := color.RGBA{R: uint8(index), G: uint8(index), B: uint8(index), A: 255}
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

type fakeOpener struct {
	stream *fakeStream
	err    error
	paths  []string
}

func (o *fakeOpener) Open(_ context.Context, path string) (port.VideoStream, error) {
	o.paths = append(o.paths, path)
	if o.err != nil {
		return nil, o.err
	}
	return o.stream, nil
}

type fakeDetector struct {
	mu         sync.Mutex
	detections []entity.Detection
	err        error
	calls      int
}

func (d *fakeDetector) Detect(_ context.Context, _ []byte) ([]entity.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.detections, d.err
}

type memRepo struct {
	mu     sync.Mutex
	videos map[string]*entity.Video
}

func newMemRepo() *memRepo {
	return &memRepo{videos: map[string]*entity.Video{}}
}

func (r *memRepo) Create(_ context.Context, v *entity.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *v
	r.videos[v.VideoKey] = &cp
	return nil
}

func (r *memRepo) Update(_ context.Context, v *entity.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.videos[v.VideoKey]; !ok {
		return entity.ErrVideoNotFound
	}
	cp := *v
	r.videos[v.VideoKey] = &cp
	return nil
}

func (r *memRepo) FindByKey(_ context.Context, key string) (*entity.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[key]
	if !ok {
		return nil, entity.ErrVideoNotFound
	}
	cp := *v
	return &cp, nil
}

type recordingPublisher struct {
	msgs [][]byte
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

type recordingDLQ struct {
	msgs    [][]byte
	reasons []string
	err     error
}

func (d *recordingDLQ) PublishToDLQ(_ context.Context, msg []byte, reason string) error {
	if d.err != nil {
		return d.err
	}
	d.msgs = append(d.msgs, msg)
	d.reasons = append(d.reasons, reason)
	return nil
}

type notification struct {
	to, videoKey, stage, errMsg string
}

type recordingNotifier struct {
	sent []notification
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, to, videoKey, stage, errMsg string) error {
	n.sent = append(n.sent, notification{to, videoKey, stage, errMsg})
	return nil
}

type recordingScheduler struct {
	msgs []entity.AnalysisMessage
}

func (s *recordingScheduler) ScheduleAnalysis(_ context.Context, msg entity.AnalysisMessage) error {
	s.msgs = append(s.msgs, msg)
	return nil
}

type emitted struct {
	baseName string
	payload  []byte
}

type recordingEmitter struct {
	events []emitted
	err    error
}

func (e *recordingEmitter) EmitAnalysis(_ context.Context, baseName string, payload []byte) error {
	e.events = append(e.events, emitted{baseName, payload})
	return e.err
}
