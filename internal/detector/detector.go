package detector

import "gocv.io/x/gocv"

// Model defines the capability of a pre-trained hand pose model.
type Model interface {
	// Predict runs inference on a BGR frame and returns one Result per image.
	// Detections below threshold are already dropped by the model.
	Predict(img gocv.Mat, threshold float64, device Device) ([]Result, error)

	// Close releases any resources held by the model.
	Close() error
}

// Device selects where inference executes.
type Device string

const (
	// DeviceCPU runs inference on the host CPU.
	DeviceCPU Device = "cpu"
	// DeviceGPU runs inference on the first CUDA device.
	DeviceGPU Device = "gpu"
)

// Label returns the device name reported by the model-info endpoint.
func (d Device) Label() string {
	if d == DeviceGPU {
		return "GPU"
	}
	return "CPU"
}

// RawBox is a bounding box as returned by the model, in source pixels.
type RawBox struct {
	X1, Y1, X2, Y2 float64
	Confidence     float64
}

// Result is the raw model output for a single image. Boxes and Keypoints are
// index-aligned when both are present, but either may be shorter.
type Result struct {
	Boxes     []RawBox
	Keypoints [][]Point
}

// RawHand pairs a box with the keypoint set at the same index.
type RawHand struct {
	Box       RawBox
	Keypoints []Point
}

// Hands joins boxes with their keypoint sets by position. A box without a
// keypoint set at its index gets an empty, non-nil keypoint slice.
func (r Result) Hands() []RawHand {
	hands := make([]RawHand, 0, len(r.Boxes))
	for i, box := range r.Boxes {
		kps := []Point{}
		if i < len(r.Keypoints) && r.Keypoints[i] != nil {
			kps = r.Keypoints[i]
		}
		hands = append(hands, RawHand{Box: box, Keypoints: kps})
	}
	return hands
}
