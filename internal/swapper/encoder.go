// Package swapper replaces a face in a frame with the identity of another:
// ArcFace extracts the identity, inswapper renders it onto the aligned target
// face, and the blender pastes the result back.
package swapper

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/inference"
)

// ArcFaceEncoder extracts identity embeddings
type ArcFaceEncoder struct {
	session *inference.Session
}

// NewArcFaceEncoder loads the ArcFace model
func NewArcFaceEncoder(modelPath string) (*ArcFaceEncoder, error) {
	session, err := inference.NewSession(modelPath, []string{"input.1"}, []string{"683"})
	if err != nil {
		return nil, fmt.Errorf("failed to create ArcFace session: %w", err)
	}
	return &ArcFaceEncoder{session: session}, nil
}

// Extract computes the L2-normalized embedding of an aligned 112x112 face
func (e *ArcFaceEncoder) Extract(aligned gocv.Mat) (*face.Embedding, error) {
	if aligned.Rows() != ArcFaceSize || aligned.Cols() != ArcFaceSize {
		return nil, fmt.Errorf("expected %dx%d input, got %dx%d", ArcFaceSize, ArcFaceSize, aligned.Cols(), aligned.Rows())
	}

	// (x - 127.5) / 127.5, RGB
	blob := gocv.BlobFromImage(aligned, 1.0/127.5, image.Pt(ArcFaceSize, ArcFaceSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	input, err := inference.CreateTensor([]int64{1, 3, ArcFaceSize, ArcFaceSize}, inference.BlobData(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := inference.CreateEmptyTensor[float32]([]int64{1, 512})
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := e.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return normalize(output.GetData()), nil
}

// Embed aligns f in frame and extracts its embedding
func (e *ArcFaceEncoder) Embed(frame gocv.Mat, f face.Face) (*face.Embedding, error) {
	a := Align(frame, f.Landmarks, ArcFaceSize)
	defer a.Close()
	return e.Extract(a.Face)
}

// Close releases encoder resources
func (e *ArcFaceEncoder) Close() error {
	return e.session.Destroy()
}

func normalize(data []float32) *face.Embedding {
	var out face.Embedding
	copy(out[:], data)

	var norm float64
	for _, v := range out {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm < 1e-10 {
		return &out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return &out
}
