// Package app runs the detection pipeline for a single uploaded image:
// decode, inference, normalization, annotation and response assembly.
package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/handpose/internal/annotate"
	"github.com/ayusman/handpose/internal/detector"
	"github.com/ayusman/handpose/internal/gateway"
	"github.com/ayusman/handpose/internal/store"
)

// InvalidImageMessage is the error text reported for undecodable uploads.
const InvalidImageMessage = "Invalid image"

// Detection is one hand in a response.
type Detection struct {
	Box        [4]int       `json:"box"`
	Keypoints  [][2]float64 `json:"keypoints"`
	Confidence float64      `json:"confidence"`
}

// Response is the payload returned for every detection request.
type Response struct {
	Success    bool        `json:"success"`
	Image      string      `json:"image"`
	Detections []Detection `json:"detections"`
	Error      string      `json:"error,omitempty"`
	RequestID  string      `json:"request_id,omitempty"`
}

// Failure builds a failed response with empty image and detections.
func Failure(message string) Response {
	return Response{
		Success:    false,
		Image:      "",
		Detections: []Detection{},
		Error:      message,
	}
}

// Timings records how long each pipeline stage took.
type Timings struct {
	RequestID string
	Decode    time.Duration
	Inference time.Duration
	Annotate  time.Duration
	Encode    time.Duration
	Total     time.Duration
}

// Config holds the pipeline's collaborators.
type Config struct {
	Gateway   *gateway.Gateway
	Annotator *annotate.Annotator

	// Store is optional. When set, every request outcome is recorded.
	Store *store.Store

	// Debug logs per-request timings.
	Debug bool
}

// App is the detection pipeline.
type App struct {
	gateway   *gateway.Gateway
	annotator *annotate.Annotator
	store     *store.Store
	debug     bool
}

// New creates an App. A nil Annotator uses the default style.
func New(config Config) *App {
	annotator := config.Annotator
	if annotator == nil {
		annotator = annotate.New(annotate.DefaultStyle())
	}
	return &App{
		gateway:   config.Gateway,
		annotator: annotator,
		store:     config.Store,
		debug:     config.Debug,
	}
}

// Gateway returns the model gateway.
func (a *App) Gateway() *gateway.Gateway {
	return a.gateway
}

// Store returns the request log, or nil.
func (a *App) Store() *store.Store {
	return a.store
}

// outcome is what one pipeline run produced.
type outcome struct {
	response      Response
	width, height int
}

// Detect runs the pipeline on data. It always returns a well-formed
// Response. The error is non-nil only when the model could not be loaded,
// in which case the response describes the failure as well.
func (a *App) Detect(ctx context.Context, data []byte) (Response, error) {
	start := time.Now()
	timings := &Timings{RequestID: uuid.NewString()}

	out, err := a.run(data, timings)
	out.response.RequestID = timings.RequestID

	timings.Total = time.Since(start)
	a.logTimings(timings)
	a.record(ctx, timings, out)

	return out.response, err
}

func (a *App) run(data []byte, timings *Timings) (outcome, error) {
	decodeStart := time.Now()
	img, err := Decode(data)
	timings.Decode = time.Since(decodeStart)
	if err != nil {
		img.Close()
		return outcome{response: Failure(InvalidImageMessage)}, nil
	}
	defer img.Close()

	out := outcome{width: img.Cols(), height: img.Rows()}

	if _, err := a.gateway.EnsureLoaded(); err != nil {
		out.response = Failure(err.Error())
		return out, err
	}

	inferStart := time.Now()
	results, err := a.gateway.Infer(img)
	timings.Inference = time.Since(inferStart)
	if err != nil {
		log.Printf("Request %s: %v", timings.RequestID, err)
		out.response = Failure(err.Error())
		return out, nil
	}

	hands := detector.Normalize(results)

	annotateStart := time.Now()
	annotated, err := a.annotator.Annotate(img, results)
	timings.Annotate = time.Since(annotateStart)
	if err != nil {
		annotated.Close()
		err = &DrawError{Cause: err}
		log.Printf("Request %s: %v", timings.RequestID, err)
		out.response = Failure(err.Error())
		return out, nil
	}
	defer annotated.Close()

	encodeStart := time.Now()
	encoded, err := EncodeJPEG(annotated)
	timings.Encode = time.Since(encodeStart)
	if err != nil {
		log.Printf("Request %s: %v", timings.RequestID, err)
		out.response = Failure(err.Error())
		return out, nil
	}

	out.response = Response{
		Success:    true,
		Image:      encoded,
		Detections: Detections(hands),
	}
	return out, nil
}

// Detections converts normalized hands into their response form.
func Detections(hands []detector.Hand) []Detection {
	detections := make([]Detection, 0, len(hands))
	for _, h := range hands {
		detections = append(detections, Detection{
			Box:        h.Box.Array(),
			Keypoints:  keypointPairs(h.Keypoints),
			Confidence: h.Confidence,
		})
	}
	return detections
}

func keypointPairs(points []detector.Point) [][2]float64 {
	pairs := make([][2]float64, len(points))
	for i, p := range points {
		pairs[i] = [2]float64{p.X, p.Y}
	}
	return pairs
}

func (a *App) logTimings(t *Timings) {
	if !a.debug {
		return
	}
	log.Printf("[DEBUG] RequestID: %s - Processing times:\n"+
		"\tDecode:    %v\n"+
		"\tInference: %v\n"+
		"\tAnnotate:  %v\n"+
		"\tEncode:    %v\n"+
		"\tTotal:     %v",
		t.RequestID,
		t.Decode,
		t.Inference,
		t.Annotate,
		t.Encode,
		t.Total)
}

// record writes the outcome to the request log. Failures are logged and
// never change the response.
func (a *App) record(ctx context.Context, t *Timings, out outcome) {
	if a.store == nil {
		return
	}

	hands := make([]store.Hand, 0, len(out.response.Detections))
	for _, d := range out.response.Detections {
		hands = append(hands, store.Hand{
			Box:        d.Box,
			Confidence: d.Confidence,
			Keypoints:  d.Keypoints,
		})
	}

	req := &store.Request{
		ID:         t.RequestID,
		Success:    out.response.Success,
		Error:      out.response.Error,
		Width:      out.width,
		Height:     out.height,
		DurationMs: float64(t.Total) / float64(time.Millisecond),
		Hands:      hands,
	}

	// The request context may already be cancelled once the client is gone.
	if err := a.store.Requests().Create(context.WithoutCancel(ctx), req); err != nil {
		log.Printf("Failed to record request %s: %v", t.RequestID, err)
	}
}
