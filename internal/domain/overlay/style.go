package overlay

import (
	"fmt"
	"image/color"
)

// emPixelsPerScale converts FontScale to a pixel em size: scale 0.5 is a 15px face.
const emPixelsPerScale = 30

// Style holds every color and metric the renderer uses. Colors are RGB.
type Style struct {
	Accent        color.RGBA
	Text          color.RGBA
	BoxThickness  int
	FontScale     float64
	TextThickness int
	// LabelGap is the space between the top of the label background and the text height.
	LabelGap int
	// BaselineGap puts the text baseline this many pixels above the box top edge.
	BaselineGap int
}

func DefaultStyle() Style {
	return Style{
		Accent:        color.RGBA{R: 255, A: 255},
		Text:          color.RGBA{R: 255, G: 255, B: 255, A: 255},
		BoxThickness:  2,
		FontScale:     0.5,
		TextThickness: 2,
		LabelGap:      10,
		BaselineGap:   5,
	}
}

func (s Style) Validate() error {
	if s.BoxThickness < 1 {
		return fmt.Errorf("box thickness must be >= 1, got %d", s.BoxThickness)
	}
	if s.TextThickness < 1 {
		return fmt.Errorf("text thickness must be >= 1, got %d", s.TextThickness)
	}
	if s.FontScale <= 0 {
		return fmt.Errorf("font scale must be > 0, got %v", s.FontScale)
	}
	if s.LabelGap < 0 || s.BaselineGap < 0 {
		return fmt.Errorf("label gaps must be >= 0")
	}
	return nil
}
