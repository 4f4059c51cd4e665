package pipeline

import (
	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/mapping"
)

// FaceDetector locates faces without embeddings
type FaceDetector interface {
	Detect(frame gocv.Mat) ([]face.Face, error)
}

// FaceEnhancer restores one face in place
type FaceEnhancer interface {
	EnhanceFace(frame *gocv.Mat, f face.Face) error
	Close() error
}

// Enhance is the face_enhancer stage. It restores every face in the frame
// whatever the mode, so the source face and table only gate whether it runs.
type Enhance struct {
	detector FaceDetector
	enhancer FaceEnhancer
}

// NewEnhance builds the enhancer stage. It owns enhancer but not detector.
func NewEnhance(detector FaceDetector, enhancer FaceEnhancer) *Enhance {
	return &Enhance{detector: detector, enhancer: enhancer}
}

func (e *Enhance) Name() string {
	return "face_enhancer"
}

func (e *Enhance) ApplyWithFace(src *face.Face, frame *gocv.Mat) error {
	if src == nil {
		return nil
	}
	return e.enhanceAll(frame)
}

func (e *Enhance) ApplyWithTable(_ mapping.Table, frame *gocv.Mat) error {
	return e.enhanceAll(frame)
}

func (e *Enhance) enhanceAll(frame *gocv.Mat) error {
	faces, err := e.detector.Detect(*frame)
	if err != nil {
		return err
	}
	for _, f := range faces {
		if err := e.enhancer.EnhanceFace(frame, f); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enhance) Close() error {
	return e.enhancer.Close()
}
