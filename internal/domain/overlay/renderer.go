package overlay

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	"github.com/fiapx/fiapx-vision-service/internal/domain/frame"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Renderer burns detection boxes and captions into frames.
type Renderer struct {
	style Style

	mu     sync.Mutex // font.Face caches glyphs and is not safe for concurrent use
	face   font.Face
	accent *image.Uniform
	text   *image.Uniform
}

func NewRenderer(style Style) (*Renderer, error) {
	if err := style.Validate(); err != nil {
		return nil, fmt.Errorf("overlay style: %w", err)
	}

	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    style.FontScale * emPixelsPerScale,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}

	return &Renderer{
		style:  style,
		face:   face,
		accent: image.NewUniform(style.Accent),
		text:   image.NewUniform(style.Text),
	}, nil
}

// Layout is the pixel geometry of one detection overlay, before clipping.
type Layout struct {
	Box      image.Rectangle
	Label    image.Rectangle
	Baseline image.Point
	Caption  string
}

// Layout computes where a detection's overlay goes. Box.Max is (right, bottom).
func (r *Renderer) Layout(d entity.Detection) Layout {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.layout(d)
}

func (r *Renderer) layout(d entity.Detection) Layout {
	caption := d.Caption()
	w, h := r.measure(caption)
	left, top := d.Box.Left, d.Box.Top

	return Layout{
		Box:      image.Rect(left, top, d.Box.Right(), d.Box.Bottom()),
		Label:    image.Rect(left, top-h-r.style.LabelGap, left+w, top),
		Baseline: image.Pt(left, top-r.style.BaselineGap),
		Caption:  caption,
	}
}

// measure returns the caption's advance width and its height above the baseline.
func (r *Renderer) measure(caption string) (int, int) {
	w := font.MeasureString(r.face, caption).Ceil() + r.style.TextThickness - 1
	h := r.face.Metrics().Ascent.Ceil()
	return w, h
}

// Render returns a copy of img with every detection drawn in input order, so
// later boxes paint over earlier ones. img is not modified and detections are
// returned unchanged. With no detections the copy is pixel-identical to img.
func (r *Renderer) Render(img image.Image, detections []entity.Detection) (*image.RGBA, []entity.Detection) {
	out := frame.ToRGBA(img)
	if len(detections) == 0 {
		return out, detections
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range detections {
		l := r.layout(d)
		r.strokeRect(out, l.Box)
		fill(out, l.Label, r.accent)
		r.drawText(out, l.Baseline, l.Caption)
	}
	return out, detections
}

// strokeRect draws an outline BoxThickness wide, centred on the rectangle edges.
func (r *Renderer) strokeRect(dst *image.RGBA, box image.Rectangle) {
	th := r.style.BoxThickness
	half := th / 2
	outer := image.Rect(box.Min.X-half, box.Min.Y-half, box.Max.X-half+th, box.Max.Y-half+th)

	fill(dst, image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, outer.Min.Y+th), r.accent)
	fill(dst, image.Rect(outer.Min.X, outer.Max.Y-th, outer.Max.X, outer.Max.Y), r.accent)
	fill(dst, image.Rect(outer.Min.X, outer.Min.Y, outer.Min.X+th, outer.Max.Y), r.accent)
	fill(dst, image.Rect(outer.Max.X-th, outer.Min.Y, outer.Max.X, outer.Max.Y), r.accent)
}

// drawText fakes stroke weight by drawing the caption TextThickness times, one pixel apart.
func (r *Renderer) drawText(dst *image.RGBA, baseline image.Point, caption string) {
	d := font.Drawer{Dst: dst, Src: r.text, Face: r.face}
	for dx := 0; dx < r.style.TextThickness; dx++ {
		d.Dot = fixed.P(baseline.X+dx, baseline.Y)
		d.DrawString(caption)
	}
}

// fill paints rect clamped to the frame; off-frame parts are dropped.
func fill(dst *image.RGBA, rect image.Rectangle, src image.Image) {
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	draw.Draw(dst, rect, src, image.Point{}, draw.Src)
}
