// Package enhancer restores detail in swapped faces with GFPGAN.
package enhancer

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/inference"
	"github.com/dudu/facemap/internal/swapper"
)

// InputSize is the GFPGAN crop size
const InputSize = 512

// ffhqTemplate is the five-point FFHQ landmark layout GFPGAN was trained on
var ffhqTemplate = [5]face.Point{
	{X: 192.98138, Y: 239.94708},
	{X: 318.90277, Y: 240.1936},
	{X: 256.63416, Y: 314.01935},
	{X: 201.26117, Y: 371.41043},
	{X: 313.08905, Y: 371.15118},
}

// GFPGAN performs face restoration
type GFPGAN struct {
	session *inference.Session
	blender *swapper.Blender
}

// NewGFPGAN loads the model. blurSize feathers the paste edge.
func NewGFPGAN(modelPath string, blurSize int) (*GFPGAN, error) {
	session, err := inference.NewSession(modelPath, []string{"input"}, []string{"output"})
	if err != nil {
		return nil, fmt.Errorf("failed to create GFPGAN session: %w", err)
	}
	return &GFPGAN{session: session, blender: swapper.NewBlender(blurSize)}, nil
}

// Enhance restores a face crop aligned to the FFHQ template. Crops of any
// other size are resized to 512x512 first.
func (g *GFPGAN) Enhance(crop gocv.Mat) (gocv.Mat, error) {
	// (x / 255 - 0.5) / 0.5, RGB
	blob := gocv.BlobFromImage(crop, 1.0/127.5, image.Pt(InputSize, InputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	input, err := inference.CreateTensor([]int64{1, 3, InputSize, InputSize}, inference.BlobData(blob))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := inference.CreateEmptyTensor[float32]([]int64{1, 3, InputSize, InputSize})
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := g.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return gocv.NewMat(), fmt.Errorf("GFPGAN inference failed: %w", err)
	}
	return inference.PlanarToBGR(output.GetData(), InputSize, 127.5, 127.5)
}

// EnhanceFace restores f in place within frame
func (g *GFPGAN) EnhanceFace(frame *gocv.Mat, f face.Face) error {
	aligned := swapper.AlignTemplate(*frame, f.Landmarks, ffhqTemplate, InputSize)
	defer aligned.Close()

	restored, err := g.Enhance(aligned.Face)
	if err != nil {
		return err
	}
	defer restored.Close()

	g.blender.Paste(frame, restored, aligned.M, false)
	return nil
}

// Close releases resources
func (g *GFPGAN) Close() error {
	g.blender.Close()
	return g.session.Destroy()
}
