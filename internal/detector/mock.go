package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockModel is a test implementation of the Model interface.
// It allows tests to control the inference results.
type MockModel struct {
	mu        sync.Mutex
	results   []Result
	err       error
	calls     int
	threshold float64
	device    Device
	closed    bool
}

// NewMockModel creates a new MockModel instance.
func NewMockModel() *MockModel {
	return &MockModel{}
}

// SetResults sets the results that will be returned by Predict.
func (m *MockModel) SetResults(results []Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
}

// SetError sets the error that will be returned by Predict.
func (m *MockModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Predict returns the pre-configured results or error.
func (m *MockModel) Predict(img gocv.Mat, threshold float64, device Device) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.threshold = threshold
	m.device = device

	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

// Calls returns how many times Predict was invoked.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastThreshold returns the threshold passed to the most recent Predict call.
func (m *MockModel) LastThreshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}

// LastDevice returns the device passed to the most recent Predict call.
func (m *MockModel) LastDevice() Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device
}

// Close marks the mock as closed.
func (m *MockModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockModel) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// openPalm holds an open palm pose in coordinates relative to the hand box.
var openPalm = [NumLandmarks]Point{
	Wrist: {0.5, 0.8},

	// Thumb extended to the side
	ThumbCMC: {0.55, 0.75},
	ThumbMCP: {0.62, 0.70},
	ThumbIP:  {0.68, 0.65},
	ThumbTip: {0.73, 0.60},

	IndexMCP: {0.55, 0.68},
	IndexPIP: {0.57, 0.55},
	IndexDIP: {0.58, 0.45},
	IndexTip: {0.58, 0.35},

	// Middle finger is slightly longer
	MiddleMCP: {0.50, 0.66},
	MiddlePIP: {0.50, 0.52},
	MiddleDIP: {0.50, 0.40},
	MiddleTip: {0.50, 0.28},

	RingMCP: {0.45, 0.68},
	RingPIP: {0.43, 0.55},
	RingDIP: {0.42, 0.45},
	RingTip: {0.42, 0.35},

	PinkyMCP: {0.40, 0.70},
	PinkyPIP: {0.37, 0.60},
	PinkyDIP: {0.35, 0.50},
	PinkyTip: {0.34, 0.42},
}

// OpenPalmKeypoints returns a full 21-point open palm placed inside box.
// Every point is strictly positive as long as the box is.
func OpenPalmKeypoints(box Box) []Point {
	w := float64(box.X2 - box.X1)
	h := float64(box.Y2 - box.Y1)

	kps := make([]Point, NumLandmarks)
	for i, p := range openPalm {
		kps[i] = Point{
			X: float64(box.X1) + p.X*w,
			Y: float64(box.Y1) + p.Y*h,
		}
	}
	return kps
}

// OpenPalmResult returns a single-hand Result with an open palm inside box.
func OpenPalmResult(box Box, confidence float64) Result {
	return Result{
		Boxes: []RawBox{{
			X1:         float64(box.X1),
			Y1:         float64(box.Y1),
			X2:         float64(box.X2),
			Y2:         float64(box.Y2),
			Confidence: confidence,
		}},
		Keypoints: [][]Point{OpenPalmKeypoints(box)},
	}
}
