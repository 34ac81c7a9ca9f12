package annotate

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/handpose/internal/detector"
)

// ErrEmptyImage is returned when there is nothing to draw on.
var ErrEmptyImage = errors.New("cannot annotate an empty image")

// Canvas is the set of drawing primitives the annotator needs.
// A negative thickness fills the shape.
type Canvas interface {
	Rectangle(r image.Rectangle, c color.RGBA, thickness int)
	Text(text string, org image.Point, scale float64, c color.RGBA, thickness int)
	Line(p1, p2 image.Point, c color.RGBA, thickness int)
	Circle(center image.Point, radius int, c color.RGBA, thickness int)
}

// Filled is the thickness value that fills a shape.
const Filled = -1

// Annotator draws bounding boxes, confidence labels and hand skeletons.
type Annotator struct {
	style Style
}

// New creates an Annotator with the given style.
func New(style Style) *Annotator {
	return &Annotator{style: style}
}

// Style returns the annotator's style.
func (a *Annotator) Style() Style {
	return a.style
}

// Annotate draws results onto a copy of img and returns the copy.
// img itself is never modified. The caller owns the returned Mat.
func (a *Annotator) Annotate(img gocv.Mat, results []detector.Result) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}

	out := img.Clone()
	a.Draw(&matCanvas{mat: &out}, results)
	return out, nil
}

// Draw renders results onto c. For each result every box and its label is
// drawn first, then every keypoint set, whether or not it has a box.
func (a *Annotator) Draw(c Canvas, results []detector.Result) {
	s := a.style

	for _, res := range results {
		for _, raw := range res.Boxes {
			box := detector.NewBox(raw.X1, raw.Y1, raw.X2, raw.Y2)
			c.Rectangle(image.Rect(box.X1, box.Y1, box.X2, box.Y2), s.BoxColor, s.BoxThickness)
			c.Text(Label(raw.Confidence), image.Pt(box.X1, box.Y1-s.LabelOffset), s.LabelScale, s.LabelColor, s.LabelThickness)
		}

		for _, kps := range res.Keypoints {
			a.drawHand(c, kps)
		}
	}
}

func (a *Annotator) drawHand(c Canvas, kps []detector.Point) {
	s := a.style

	for _, edge := range detector.Skeleton {
		start, end := edge[0], edge[1]
		if start >= len(kps) || end >= len(kps) {
			continue
		}
		if kps[start].Missing() || kps[end].Missing() {
			continue
		}
		c.Line(pixel(kps[start]), pixel(kps[end]), s.SkeletonColor, s.SkeletonThickness)
	}

	for _, kp := range kps {
		if !kp.Visible() {
			continue
		}
		center := pixel(kp)
		c.Circle(center, s.JointRadius, s.JointFillColor, Filled)
		c.Circle(center, s.JointRadius, s.JointOutlineColor, s.JointOutlineThickness)
	}
}

// Label returns the text drawn above a hand's bounding box.
func Label(confidence float64) string {
	return fmt.Sprintf("Hand %.2f", confidence)
}

func pixel(p detector.Point) image.Point {
	x, y := p.Pixel()
	return image.Pt(x, y)
}

// matCanvas draws onto a gocv Mat.
type matCanvas struct {
	mat *gocv.Mat
}

func (m *matCanvas) Rectangle(r image.Rectangle, c color.RGBA, thickness int) {
	gocv.Rectangle(m.mat, r, c, thickness)
}

func (m *matCanvas) Text(text string, org image.Point, scale float64, c color.RGBA, thickness int) {
	gocv.PutText(m.mat, text, org, gocv.FontHersheySimplex, scale, c, thickness)
}

func (m *matCanvas) Line(p1, p2 image.Point, c color.RGBA, thickness int) {
	gocv.Line(m.mat, p1, p2, c, thickness)
}

func (m *matCanvas) Circle(center image.Point, radius int, c color.RGBA, thickness int) {
	gocv.Circle(m.mat, center, radius, c, thickness)
}
