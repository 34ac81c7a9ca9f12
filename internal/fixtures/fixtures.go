// Package fixtures builds synthetic images for tests.
package fixtures

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// Frame returns a width x height RGB image with a horizontal gradient and a
// lighter square in the middle.
func Frame(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(40 + x*120/max(width, 1))
			img.Set(x, y, color.RGBA{R: v, G: v / 2, B: 90, A: 255})
		}
	}

	x0, y0 := width/3, height/3
	for y := y0; y < 2*y0; y++ {
		for x := x0; x < 2*x0; x++ {
			img.Set(x, y, color.RGBA{R: 220, G: 200, B: 180, A: 255})
		}
	}
	return img
}

// JPEG returns Frame(width, height) encoded as JPEG.
func JPEG(width, height int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Frame(width, height), &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PNG returns Frame(width, height) encoded as PNG.
func PNG(width, height int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Frame(width, height)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Base64JPEG returns JPEG(width, height) as standard base64 text.
func Base64JPEG(width, height int) string {
	return base64.StdEncoding.EncodeToString(JPEG(width, height))
}

// Garbage returns bytes that no image codec accepts.
func Garbage() []byte {
	return []byte("definitely not an image \x00\x01\x02")
}
