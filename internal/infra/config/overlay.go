package config

import (
	"fmt"
	"image/color"
	"os"

	"github.com/fiapx/fiapx-vision-service/internal/domain/overlay"
	"gopkg.in/yaml.v3"
)

// overlayFile mirrors the YAML layout. Pointers tell an absent field from a zero one.
type overlayFile struct {
	Accent        *rgb     `yaml:"accent"`
	Text          *rgb     `yaml:"text"`
	BoxThickness  *int     `yaml:"box_thickness"`
	FontScale     *float64 `yaml:"font_scale"`
	TextThickness *int     `yaml:"text_thickness"`
	LabelGap      *int     `yaml:"label_gap"`
	BaselineGap   *int     `yaml:"baseline_gap"`
}

// rgb is written as a three element list in red, green, blue order.
type rgb [3]int

func (c rgb) toRGBA() (color.RGBA, error) {
	for _, v := range c {
		if v < 0 || v > 255 {
			return color.RGBA{}, fmt.Errorf("color component %d out of range", v)
		}
	}
	return color.RGBA{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2]), A: 255}, nil
}

// LoadOverlayStyle reads a style file on top of overlay.DefaultStyle.
// An empty path returns the defaults.
func LoadOverlayStyle(path string) (overlay.Style, error) {
	style := overlay.DefaultStyle()
	if path == "" {
		return style, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return style, fmt.Errorf("read overlay style: %w", err)
	}
	return parseOverlayStyle(data)
}

func parseOverlayStyle(data []byte) (overlay.Style, error) {
	style := overlay.DefaultStyle()

	var f overlayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return style, fmt.Errorf("parse overlay style: %w", err)
	}

	if f.Accent != nil {
		c, err := f.Accent.toRGBA()
		if err != nil {
			return style, fmt.Errorf("accent: %w", err)
		}
		style.Accent = c
	}
	if f.Text != nil {
		c, err := f.Text.toRGBA()
		if err != nil {
			return style, fmt.Errorf("text: %w", err)
		}
		style.Text = c
	}
	if f.BoxThickness != nil {
		style.BoxThickness = *f.BoxThickness
	}
	if f.FontScale != nil {
		style.FontScale = *f.FontScale
	}
	if f.TextThickness != nil {
		style.TextThickness = *f.TextThickness
	}
	if f.LabelGap != nil {
		style.LabelGap = *f.LabelGap
	}
	if f.BaselineGap != nil {
		style.BaselineGap = *f.BaselineGap
	}

	if err := style.Validate(); err != nil {
		return style, fmt.Errorf("overlay style: %w", err)
	}
	return style, nil
}
