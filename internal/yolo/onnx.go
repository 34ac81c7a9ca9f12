package yolo

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/ayusman/handpose/internal/detector"
)

var runtimeInit struct {
	once sync.Once
	err  error
}

// InitializeRuntime loads the ONNX Runtime shared library once per process.
// An empty libPath uses the library's default search path.
func InitializeRuntime(libPath string) error {
	runtimeInit.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		runtimeInit.err = ort.InitializeEnvironment()
	})
	return runtimeInit.err
}

// ORT runs the model through ONNX Runtime with preallocated tensors.
type ORT struct {
	decoder Decoder
	device  detector.Device

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewORT creates a session for the model at path. InitializeRuntime must
// have succeeded first.
func NewORT(path string, device detector.Device, decoder Decoder) (*ORT, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	if device == detector.DeviceGPU {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("error creating CUDA options: %w", err)
		}
		defer cudaOptions.Destroy()

		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, fmt.Errorf("error enabling CUDA: %w", err)
		}
	}

	size := int64(decoder.InputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, Channels, int64(Anchors(decoder.InputSize)))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		path,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ORT{
		decoder: decoder,
		device:  device,
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

// Predict runs the session on img. The execution provider is fixed when the
// session is created, so device must match it.
func (o *ORT) Predict(img gocv.Mat, threshold float64, device detector.Device) ([]detector.Result, error) {
	if img.Empty() {
		return nil, errors.New("empty frame")
	}
	if device != o.device {
		return nil, fmt.Errorf("session created for %s, asked to run on %s", o.device, device)
	}

	src, err := img.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return nil, errors.New("session is closed")
	}

	prepareInput(src, o.input.GetData(), o.decoder.InputSize)

	if err := o.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	res, err := o.decoder.Decode(o.output.GetData(), img.Cols(), img.Rows(), threshold)
	if err != nil {
		return nil, err
	}
	return []detector.Result{res}, nil
}

// prepareInput resizes src to size x size and writes it into dst as planar
// RGB scaled to [0, 1].
func prepareInput(src image.Image, dst []float32, size int) {
	resized := imaging.Resize(src, size, size, imaging.Linear)
	channelSize := size * size

	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < size; x++ {
			i := y*size + x
			dst[i] = float32(row[x*4]) / 255.0
			dst[channelSize+i] = float32(row[x*4+1]) / 255.0
			dst[channelSize*2+i] = float32(row[x*4+2]) / 255.0
		}
	}
}

// Close destroys the session and its tensors.
func (o *ORT) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.input.Destroy()
	o.output.Destroy()
	o.session = nil
	return err
}
