package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Frame is a single image sent as JSON, by POST /api/detect or over the
// frame WebSocket.
type Frame struct {
	// Image is base64 image data, optionally as a data URL.
	Image     string  `json:"image"`
	Timestamp float64 `json:"timestamp"`
}

// Bytes decodes the frame's image data.
func (f Frame) Bytes() ([]byte, error) {
	data := f.Image
	if strings.HasPrefix(data, "data:") {
		i := strings.Index(data, ",")
		if i < 0 {
			return nil, errors.New("malformed data URL")
		}
		data = data[i+1:]
	}
	if data == "" {
		return nil, errors.New("frame has no image")
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("image is not valid base64: %w", err)
	}
	return decoded, nil
}
