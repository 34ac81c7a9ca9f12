package app

import (
	"encoding/base64"
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrInvalidImage is returned when the uploaded bytes cannot be decoded.
var ErrInvalidImage = errors.New("invalid image")

// EncodingError wraps a failure to re-encode the annotated image.
type EncodingError struct {
	Cause error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode image: %v", e.Cause)
}

func (e *EncodingError) Unwrap() error {
	return e.Cause
}

// DrawError wraps a failure to annotate the decoded image.
type DrawError struct {
	Cause error
}

func (e *DrawError) Error() string {
	return fmt.Sprintf("annotate image: %v", e.Cause)
}

func (e *DrawError) Unwrap() error {
	return e.Cause
}

// Decode decodes data into a BGR image. The caller owns the returned Mat.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), ErrInvalidImage
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), ErrInvalidImage
	}
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), ErrInvalidImage
	}
	return img, nil
}

// EncodeJPEG compresses img as JPEG and returns it as base64 text.
func EncodeJPEG(img gocv.Mat) (string, error) {
	if img.Empty() {
		return "", &EncodingError{Cause: errors.New("empty image")}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return "", &EncodingError{Cause: err}
	}
	defer buf.Close()

	return base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}
