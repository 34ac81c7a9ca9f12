package detector

// Box is an axis-aligned bounding box in integer pixel coordinates.
// X1 <= X2 and Y1 <= Y2 always hold.
type Box struct {
	X1, Y1, X2, Y2 int
}

// Array returns the box as [x1, y1, x2, y2].
func (b Box) Array() [4]int {
	return [4]int{b.X1, b.Y1, b.X2, b.Y2}
}

// Hand is one detected hand, ready for serialization.
type Hand struct {
	Box        Box
	Confidence float64
	Keypoints  []Point
}

// NewBox truncates raw coordinates toward zero and orders the corners.
func NewBox(x1, y1, x2, y2 float64) Box {
	b := Box{X1: int(x1), Y1: int(y1), X2: int(x2), Y2: int(y2)}
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

// Normalize converts raw model output into hands, in the order the model
// returned them. Results without boxes contribute nothing.
func Normalize(results []Result) []Hand {
	hands := make([]Hand, 0)
	for _, res := range results {
		for _, raw := range res.Hands() {
			kps := make([]Point, len(raw.Keypoints))
			copy(kps, raw.Keypoints)
			hands = append(hands, Hand{
				Box:        NewBox(raw.Box.X1, raw.Box.Y1, raw.Box.X2, raw.Box.Y2),
				Confidence: raw.Box.Confidence,
				Keypoints:  kps,
			})
		}
	}
	return hands
}
