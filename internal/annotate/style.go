// Package annotate draws hand detections onto images.
package annotate

import (
	"fmt"
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Style controls how detections are drawn.
type Style struct {
	BoxColor     color.RGBA
	BoxThickness int

	LabelColor     color.RGBA
	LabelScale     float64
	LabelThickness int
	// LabelOffset is how far above the box's top edge the label baseline sits.
	LabelOffset int

	SkeletonColor     color.RGBA
	SkeletonThickness int

	JointRadius           int
	JointFillColor        color.RGBA
	JointOutlineColor     color.RGBA
	JointOutlineThickness int
}

// DefaultStyle returns green boxes and labels, a blue skeleton and red
// joints with a blue outline.
func DefaultStyle() Style {
	green := color.RGBA{R: 0, G: 255, B: 0, A: 255}
	blue := color.RGBA{R: 0, G: 0, B: 255, A: 255}
	red := color.RGBA{R: 255, G: 0, B: 0, A: 255}

	return Style{
		BoxColor:     green,
		BoxThickness: 2,

		LabelColor:     green,
		LabelScale:     0.6,
		LabelThickness: 2,
		LabelOffset:    10,

		SkeletonColor:     blue,
		SkeletonThickness: 2,

		JointRadius:           5,
		JointFillColor:        red,
		JointOutlineColor:     blue,
		JointOutlineThickness: 2,
	}
}

// Palette holds style colours as hex strings, e.g. "#00ff00".
// Empty fields keep the default colour.
type Palette struct {
	Box          string `yaml:"box"`
	Skeleton     string `yaml:"skeleton"`
	JointFill    string `yaml:"joint_fill"`
	JointOutline string `yaml:"joint_outline"`
}

// WithPalette returns a copy of s with the palette colours applied.
// The label shares the box colour.
func (s Style) WithPalette(p Palette) (Style, error) {
	fields := []struct {
		hex string
		dst []*color.RGBA
	}{
		{p.Box, []*color.RGBA{&s.BoxColor, &s.LabelColor}},
		{p.Skeleton, []*color.RGBA{&s.SkeletonColor}},
		{p.JointFill, []*color.RGBA{&s.JointFillColor}},
		{p.JointOutline, []*color.RGBA{&s.JointOutlineColor}},
	}

	for _, f := range fields {
		if f.hex == "" {
			continue
		}
		c, err := ParseColor(f.hex)
		if err != nil {
			return Style{}, err
		}
		for _, dst := range f.dst {
			*dst = c
		}
	}
	return s, nil
}

// ParseColor parses a "#rrggbb" hex colour.
func ParseColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
