// Package detector defines the hand pose data model, the model capability the
// pipeline runs against, and the normalization of raw model output.
package detector

// Hand keypoint indices in the order the pose model emits them.
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Skeleton lists the keypoint pairs joined by an edge when a hand is drawn.
// Each finger is one path rooted at the wrist.
var Skeleton = [20][2]int{
	{Wrist, ThumbCMC}, {ThumbCMC, ThumbMCP}, {ThumbMCP, ThumbIP}, {ThumbIP, ThumbTip},
	{Wrist, IndexMCP}, {IndexMCP, IndexPIP}, {IndexPIP, IndexDIP}, {IndexDIP, IndexTip},
	{Wrist, MiddleMCP}, {MiddleMCP, MiddlePIP}, {MiddlePIP, MiddleDIP}, {MiddleDIP, MiddleTip},
	{Wrist, RingMCP}, {RingMCP, RingPIP}, {RingPIP, RingDIP}, {RingDIP, RingTip},
	{Wrist, PinkyMCP}, {PinkyMCP, PinkyPIP}, {PinkyPIP, PinkyDIP}, {PinkyDIP, PinkyTip},
}

// Point is a keypoint in image pixel coordinates.
// The zero value means the keypoint was not detected.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pixel returns the point truncated to integer pixel coordinates.
func (p Point) Pixel() (int, int) {
	return int(p.X), int(p.Y)
}

// Missing reports whether the point is the (0,0) "not detected" sentinel
// once truncated to pixels.
func (p Point) Missing() bool {
	x, y := p.Pixel()
	return x == 0 && y == 0
}

// Visible reports whether both pixel coordinates are strictly positive.
func (p Point) Visible() bool {
	x, y := p.Pixel()
	return x > 0 && y > 0
}
