// Package detector finds faces and their five landmarks with SCRFD.
package detector

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/inference"
)

var strides = [3]int{8, 16, 32}

// anchorsPerCell is the number of anchors SCRFD predicts at every grid cell
const anchorsPerCell = 2

// Options tunes the detector
type Options struct {
	InputSize     int
	ConfThreshold float32
	NMSThreshold  float32
}

// SCRFD implements the SCRFD face detector
type SCRFD struct {
	session *inference.Session
	opts    Options
}

// NewSCRFD loads the detector model
func NewSCRFD(modelPath string, opts Options) (*SCRFD, error) {
	// one input, then score/bbox/kps for each of the three strides
	inputNames := []string{"input.1"}
	outputNames := []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}

	session, err := inference.NewSession(modelPath, inputNames, outputNames)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}
	return &SCRFD{session: session, opts: opts}, nil
}

// Detect finds faces in a BGR frame. Faces come back sorted by score.
func (s *SCRFD) Detect(img gocv.Mat) ([]face.Face, error) {
	if img.Empty() {
		return nil, nil
	}
	size := s.opts.InputSize

	blob, scale := letterbox(img, size)
	defer blob.Close()

	input, err := inference.CreateTensor([]int64{1, 3, int64(size), int64(size)}, inference.BlobData(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	var levels [3]level
	outputs := make([]ort.Value, 0, 9)
	var tensors []*ort.Tensor[float32]
	defer func() {
		for _, t := range tensors {
			t.Destroy()
		}
	}()
	for _, width := range []int64{1, 4, 10} {
		for _, stride := range strides {
			cells := int64(size/stride) * int64(size/stride) * anchorsPerCell
			t, err := inference.CreateEmptyTensor[float32]([]int64{cells, width})
			if err != nil {
				return nil, fmt.Errorf("failed to create output tensor: %w", err)
			}
			tensors = append(tensors, t)
			outputs = append(outputs, t)
		}
	}

	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	for i, stride := range strides {
		levels[i] = level{
			stride: stride,
			scores: tensors[i].GetData(),
			boxes:  tensors[i+3].GetData(),
			kps:    tensors[i+6].GetData(),
		}
	}

	faces := decode(levels[:], size, scale, s.opts.ConfThreshold, img.Cols(), img.Rows())
	return nms(faces, s.opts.NMSThreshold), nil
}

// letterbox scales img to fit size x size at the top-left of a black canvas
// and packs it into a normalized RGB NCHW blob.
func letterbox(img gocv.Mat, size int) (gocv.Mat, float32) {
	scale := float32(size) / float32(max(img.Rows(), img.Cols()))
	w := int(float32(img.Cols()) * scale)
	h := int(float32(img.Rows()) * scale)

	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size, size, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	roi := canvas.Region(image.Rect(0, 0, w, h))
	gocv.Resize(img, &roi, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
	roi.Close()

	// (x - 127.5) / 128 with BGR swapped to RGB
	blob := gocv.BlobFromImage(canvas, 1.0/128.0, image.Pt(size, size),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	return blob, scale
}

type level struct {
	stride int
	scores []float32
	boxes  []float32
	kps    []float32
}

// decode turns raw per-anchor predictions into faces in original image
// coordinates. Boxes are clamped to the image; landmarks are not.
func decode(levels []level, inputSize int, scale, conf float32, width, height int) []face.Face {
	var faces []face.Face
	for _, lv := range levels {
		cells := inputSize / lv.stride
		stride := float32(lv.stride)
		anchor := 0
		for y := 0; y < cells; y++ {
			for x := 0; x < cells; x++ {
				cx := float32(x) * stride
				cy := float32(y) * stride
				for a := 0; a < anchorsPerCell; a, anchor = a+1, anchor+1 {
					if anchor >= len(lv.scores) {
						break
					}
					score := lv.scores[anchor]
					if score < 0 || score > 1 {
						score = sigmoid(score)
					}
					if score <= conf {
						continue
					}

					b := lv.boxes[anchor*4 : anchor*4+4]
					box := face.BoundingBox{
						X1: clamp((cx-b[0]*stride)/scale, 0, float32(width)),
						Y1: clamp((cy-b[1]*stride)/scale, 0, float32(height)),
						X2: clamp((cx+b[2]*stride)/scale, 0, float32(width)),
						Y2: clamp((cy+b[3]*stride)/scale, 0, float32(height)),
					}

					k := lv.kps[anchor*10 : anchor*10+10]
					pt := func(i int) face.Point {
						return face.Point{
							X: (cx + k[i*2]*stride) / scale,
							Y: (cy + k[i*2+1]*stride) / scale,
						}
					}
					faces = append(faces, face.Face{
						BoundingBox: box,
						Landmarks: face.Landmarks{
							LeftEye:    pt(0),
							RightEye:   pt(1),
							Nose:       pt(2),
							LeftMouth:  pt(3),
							RightMouth: pt(4),
						},
						Score: score,
					})
				}
			}
		}
	}
	return faces
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

func clamp(x, lo, hi float32) float32 {
	return min(max(x, lo), hi)
}
