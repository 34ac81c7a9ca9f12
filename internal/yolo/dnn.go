package yolo

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/handpose/internal/detector"
)

// DNN runs the model through the OpenCV DNN module.
type DNN struct {
	decoder Decoder

	mu     sync.Mutex
	net    gocv.Net
	device detector.Device
}

// NewDNN reads the ONNX model at path and targets the given device.
func NewDNN(path string, device detector.Device, decoder Decoder) (*DNN, error) {
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("read onnx model %s", path)
	}

	d := &DNN{decoder: decoder, net: net}
	d.setDevice(device)
	return d, nil
}

func (d *DNN) setDevice(device detector.Device) {
	if device == detector.DeviceGPU {
		d.net.SetPreferableBackend(gocv.NetBackendCUDA)
		d.net.SetPreferableTarget(gocv.NetTargetCUDA)
	} else {
		d.net.SetPreferableBackend(gocv.NetBackendDefault)
		d.net.SetPreferableTarget(gocv.NetTargetCPU)
	}
	d.device = device
}

// Predict runs a forward pass on img and decodes the hands found.
func (d *DNN) Predict(img gocv.Mat, threshold float64, device detector.Device) ([]detector.Result, error) {
	if img.Empty() {
		return nil, errors.New("empty frame")
	}

	size := d.decoder.InputSize
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if device != d.device {
		d.setDevice(device)
	}

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output tensor: %w", err)
	}

	res, err := d.decoder.Decode(data, img.Cols(), img.Rows(), threshold)
	if err != nil {
		return nil, err
	}
	return []detector.Result{res}, nil
}

// Close releases the network.
func (d *DNN) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
