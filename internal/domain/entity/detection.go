package entity

import "fmt"

// BoundingBox is a pixel rectangle anchored at its top-left corner.
type BoundingBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (b BoundingBox) Right() int  { return b.Left + b.Width }
func (b BoundingBox) Bottom() int { return b.Top + b.Height }

// Detection is one labeled rectangle returned by the object detector.
type Detection struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// Caption is the text burned above the box, confidence rounded to two decimals.
func (d Detection) Caption() string {
	return fmt.Sprintf("%s (%.2f)", d.Label, d.Confidence)
}
