package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"

	"github.com/ayusman/handpose/internal/app"
)

// DefaultMaxUploadBytes bounds a single uploaded image.
const DefaultMaxUploadBytes = 32 << 20

// DetectHandler serves the detection and model-info endpoints.
type DetectHandler struct {
	app       *app.App
	maxUpload int64
}

// NewDetectHandler creates a new DetectHandler around the pipeline.
func NewDetectHandler(a *app.App) *DetectHandler {
	return &DetectHandler{app: a, maxUpload: DefaultMaxUploadBytes}
}

// Detect handles POST /api/detect.
//
// The image is read from the multipart field "file", from a JSON Frame, or
// from the raw request body, depending on the content type.
func (h *DetectHandler) Detect(w http.ResponseWriter, r *http.Request) {
	data, err := h.readImage(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, app.Failure(fmt.Sprintf("invalid request: %v", err)))
		return
	}

	resp, err := h.app.Detect(r.Context(), data)
	if err != nil {
		log.Printf("Detection unavailable: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *DetectHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		return readMultipart(r, h.maxUpload)
	case "application/json":
		var frame Frame
		if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
			return nil, fmt.Errorf("malformed JSON: %w", err)
		}
		return frame.Bytes()
	default:
		return io.ReadAll(r.Body)
	}
}

func readMultipart(r *http.Request, maxMemory int64) ([]byte, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, errors.New(`missing form field "file"`)
		}
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// ModelInfo handles GET /api/model-info. The model is loaded first so the
// endpoint reports whether the service can actually serve detections.
func (h *DetectHandler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	g := h.app.Gateway()
	if _, err := g.EnsureLoaded(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, g.Info())
}
