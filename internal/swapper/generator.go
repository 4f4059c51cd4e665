package swapper

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/inference"
)

// Inswapper renders a source identity onto an aligned target face
type Inswapper struct {
	session *inference.Session
}

// NewInswapper loads the inswapper model
func NewInswapper(modelPath string) (*Inswapper, error) {
	session, err := inference.NewSession(modelPath, []string{"target", "source"}, []string{"output"})
	if err != nil {
		return nil, fmt.Errorf("failed to create Inswapper session: %w", err)
	}
	return &Inswapper{session: session}, nil
}

// Swap returns the 128x128 BGR face carrying latent's identity. target must
// be aligned with Align(..., InswapperSize).
func (s *Inswapper) Swap(target gocv.Mat, latent *face.Embedding) (gocv.Mat, error) {
	if target.Rows() != InswapperSize || target.Cols() != InswapperSize {
		return gocv.NewMat(), fmt.Errorf("expected %dx%d target, got %dx%d", InswapperSize, InswapperSize, target.Cols(), target.Rows())
	}

	blob := gocv.BlobFromImage(target, 1.0/255.0, image.Pt(InswapperSize, InswapperSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	targetTensor, err := inference.CreateTensor([]int64{1, 3, InswapperSize, InswapperSize}, inference.BlobData(blob))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create target tensor: %w", err)
	}
	defer targetTensor.Destroy()

	sourceTensor, err := inference.CreateTensor([]int64{1, 512}, latent[:])
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create source tensor: %w", err)
	}
	defer sourceTensor.Destroy()

	output, err := inference.CreateEmptyTensor[float32]([]int64{1, 3, InswapperSize, InswapperSize})
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := s.session.Run([]ort.Value{targetTensor, sourceTensor}, []ort.Value{output}); err != nil {
		return gocv.NewMat(), fmt.Errorf("inference failed: %w", err)
	}
	return inference.PlanarToBGR(output.GetData(), InswapperSize, 255, 0)
}

// Close releases swapper resources
func (s *Inswapper) Close() error {
	return s.session.Destroy()
}
