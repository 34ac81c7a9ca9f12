// Package yolo runs Ultralytics YOLOv8-pose hand models exported to ONNX.
//
// The exported graph has a single output of shape [1, 4+1+21*3, N]: box centre,
// size and score for each of N anchors, followed by x, y and visibility for
// each of the 21 hand keypoints. Coordinates are in model input pixels.
package yolo

import (
	"fmt"
	"math"
	"sort"

	"github.com/ayusman/handpose/internal/detector"
)

const (
	// DefaultInputSize is the square input resolution of the exported model.
	DefaultInputSize = 640
	// DefaultIOU is the overlap above which a lower scoring box is suppressed.
	DefaultIOU = 0.7
	// DefaultMaxDetections caps the hands returned per image.
	DefaultMaxDetections = 300

	// Channels is the number of values per anchor.
	Channels = 5 + detector.NumLandmarks*3

	// minVisibility is the keypoint confidence below which a keypoint is
	// reported as not detected.
	minVisibility = 0.5
)

// Decoder turns the raw output tensor into a detector.Result.
type Decoder struct {
	InputSize     int
	IOU           float64
	MaxDetections int
}

// NewDecoder returns a Decoder with defaults applied to zero fields.
func NewDecoder(inputSize int, iou float64) Decoder {
	d := Decoder{InputSize: inputSize, IOU: iou, MaxDetections: DefaultMaxDetections}
	if d.InputSize <= 0 {
		d.InputSize = DefaultInputSize
	}
	if d.IOU <= 0 {
		d.IOU = DefaultIOU
	}
	return d
}

// Anchors returns the number of anchors for a square input of the given size
// using the three YOLOv8 strides.
func Anchors(inputSize int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		side := inputSize / stride
		n += side * side
	}
	return n
}

type candidate struct {
	box       detector.RawBox
	keypoints []detector.Point
}

// Decode filters anchors by threshold, suppresses overlapping boxes and
// scales everything back to a srcW x srcH image.
func (d Decoder) Decode(data []float32, srcW, srcH int, threshold float64) (detector.Result, error) {
	if len(data) == 0 || len(data)%Channels != 0 {
		return detector.Result{}, fmt.Errorf("unexpected output length %d, not a multiple of %d", len(data), Channels)
	}
	n := len(data) / Channels

	scaleX := float64(srcW) / float64(d.InputSize)
	scaleY := float64(srcH) / float64(d.InputSize)

	var candidates []candidate
	for i := 0; i < n; i++ {
		score := float64(data[4*n+i])
		if score < threshold {
			continue
		}

		cx := float64(data[i])
		cy := float64(data[n+i])
		w := float64(data[2*n+i])
		h := float64(data[3*n+i])

		box := detector.RawBox{
			X1:         clamp((cx-w/2)*scaleX, float64(srcW)),
			Y1:         clamp((cy-h/2)*scaleY, float64(srcH)),
			X2:         clamp((cx+w/2)*scaleX, float64(srcW)),
			Y2:         clamp((cy+h/2)*scaleY, float64(srcH)),
			Confidence: score,
		}

		kps := make([]detector.Point, detector.NumLandmarks)
		for k := 0; k < detector.NumLandmarks; k++ {
			base := (5 + 3*k) * n
			if float64(data[base+2*n+i]) < minVisibility {
				continue
			}
			kps[k] = detector.Point{
				X: float64(data[base+i]) * scaleX,
				Y: float64(data[base+n+i]) * scaleY,
			}
		}

		candidates = append(candidates, candidate{box: box, keypoints: kps})
	}

	kept := d.suppress(candidates)

	res := detector.Result{
		Boxes:     make([]detector.RawBox, 0, len(kept)),
		Keypoints: make([][]detector.Point, 0, len(kept)),
	}
	for _, c := range kept {
		res.Boxes = append(res.Boxes, c.box)
		res.Keypoints = append(res.Keypoints, c.keypoints)
	}
	return res, nil
}

// suppress performs greedy non-maximum suppression, highest score first.
func (d Decoder) suppress(candidates []candidate) []candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].box.Confidence > candidates[j].box.Confidence
	})

	var kept []candidate
	for _, c := range candidates {
		if d.MaxDetections > 0 && len(kept) >= d.MaxDetections {
			break
		}
		overlaps := false
		for _, k := range kept {
			if iou(c.box, k.box) > d.IOU {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}
	return kept
}

func iou(a, b detector.RawBox) float64 {
	ix := math.Min(a.X2, b.X2) - math.Max(a.X1, b.X1)
	iy := math.Min(a.Y2, b.Y2) - math.Max(a.Y1, b.Y1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := (a.X2-a.X1)*(a.Y2-a.Y1) + (b.X2-b.X1)*(b.Y2-b.Y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, hi float64) float64 {
	return math.Max(0, math.Min(v, hi))
}
