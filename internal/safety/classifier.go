package safety

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/inference"
)

// InputSize is the square input of the open-NSFW model
const InputSize = 224

// ONNXClassifier scores frames with an open-NSFW style model. The model
// takes a mean-subtracted BGR image and returns two class scores; the
// second is the unsafe class.
type ONNXClassifier struct {
	session *inference.Session
	nhwc    bool
}

// NewONNXClassifier loads the model, reading its input and output names and
// its tensor layout from the model itself
func NewONNXClassifier(modelPath string) (*ONNXClassifier, error) {
	info, err := inference.Describe(modelPath)
	if err != nil {
		return nil, err
	}
	if len(info.Inputs) != 1 || len(info.Outputs) < 1 {
		return nil, fmt.Errorf("%s: expected one input and an output, got %d and %d",
			modelPath, len(info.Inputs), len(info.Outputs))
	}
	in := info.Inputs[0]
	nhwc := len(in.Shape) == 4 && in.Shape[3] == 3

	session, err := inference.NewSession(modelPath, []string{in.Name}, []string{info.Outputs[0].Name})
	if err != nil {
		return nil, fmt.Errorf("failed to create safety session: %w", err)
	}
	return &ONNXClassifier{session: session, nhwc: nhwc}, nil
}

// Classify returns the probability that frame is unsafe
func (c *ONNXClassifier) Classify(frame gocv.Mat) (float32, error) {
	if frame.Empty() {
		return 0, fmt.Errorf("empty frame")
	}
	blob := gocv.BlobFromImage(frame, 1.0, image.Pt(InputSize, InputSize),
		gocv.NewScalar(104, 117, 123, 0), false, false)
	defer blob.Close()

	data := inference.BlobData(blob)
	shape := []int64{1, 3, InputSize, InputSize}
	if c.nhwc {
		data = toNHWC(data, InputSize)
		shape = []int64{1, InputSize, InputSize, 3}
	}

	input, err := inference.CreateTensor(shape, data)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := inference.CreateEmptyTensor[float32]([]int64{1, 2})
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := c.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}
	return unsafeScore(output.GetData()), nil
}

// Close releases the session
func (c *ONNXClassifier) Close() error {
	return c.session.Destroy()
}

// unsafeScore returns the probability of class 1. Raw logits are passed
// through softmax; outputs that already form a distribution are used as is.
func unsafeScore(out []float32) float32 {
	if len(out) < 2 {
		return 0
	}
	a, b := out[0], out[1]
	if a >= 0 && b >= 0 && math.Abs(float64(a+b-1)) < 1e-3 {
		return b
	}
	m := max(a, b)
	ea := math.Exp(float64(a - m))
	eb := math.Exp(float64(b - m))
	return float32(eb / (ea + eb))
}

// toNHWC reorders a size x size CHW tensor to HWC
func toNHWC(chw []float32, size int) []float32 {
	plane := size * size
	out := make([]float32, 3*plane)
	for c := 0; c < 3; c++ {
		for i := 0; i < plane; i++ {
			out[i*3+c] = chw[c*plane+i]
		}
	}
	return out
}
