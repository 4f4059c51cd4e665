package pipeline

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/mapping"
	"github.com/dudu/facemap/internal/swapper"
)

// FaceAnalyser finds faces with embeddings
type FaceAnalyser interface {
	Faces(frame gocv.Mat) ([]face.Face, error)
}

// Generator renders an identity onto an aligned face
type Generator interface {
	Swap(target gocv.Mat, latent *face.Embedding) (gocv.Mat, error)
	Close() error
}

// SwapOptions are the swapper switches from the session settings
type SwapOptions struct {
	ManyFaces           bool
	ColorCorrection     bool
	SimilarityThreshold float32
}

// Swap is the face_swapper stage
type Swap struct {
	analyser FaceAnalyser
	gen      Generator
	emap     *swapper.Emap
	blender  *swapper.Blender
	opts     SwapOptions
}

// NewSwap builds the swapper stage. A nil emap feeds embeddings to the
// generator unchanged. The stage owns gen and blender but not analyser.
func NewSwap(analyser FaceAnalyser, gen Generator, emap *swapper.Emap, blender *swapper.Blender, opts SwapOptions) *Swap {
	return &Swap{analyser: analyser, gen: gen, emap: emap, blender: blender, opts: opts}
}

func (s *Swap) Name() string {
	return "face_swapper"
}

// ApplyWithFace replaces the leftmost face, or every face with ManyFaces
func (s *Swap) ApplyWithFace(src *face.Face, frame *gocv.Mat) error {
	if src == nil || src.Embedding == nil {
		return nil
	}
	faces, err := s.analyser.Faces(*frame)
	if err != nil {
		return err
	}
	if !s.opts.ManyFaces {
		f, ok := face.Leftmost(faces)
		if !ok {
			return nil
		}
		faces = []face.Face{f}
	}

	latent := s.latent(src.Embedding)
	for _, target := range faces {
		if err := s.swapOne(frame, target, latent); err != nil {
			return err
		}
	}
	return nil
}

// ApplyWithTable replaces every frame face matched to a table entry
func (s *Swap) ApplyWithTable(t mapping.Table, frame *gocv.Mat) error {
	faces, err := s.analyser.Faces(*frame)
	if err != nil {
		return err
	}
	for _, a := range mapping.Assign(t, faces, s.opts.SimilarityThreshold) {
		if a.Source.Embedding == nil {
			continue
		}
		if err := s.swapOne(frame, a.Target, s.latent(a.Source.Embedding)); err != nil {
			return fmt.Errorf("entry %d: %w", a.EntryID, err)
		}
	}
	return nil
}

func (s *Swap) latent(e *face.Embedding) *face.Embedding {
	if s.emap == nil {
		return e
	}
	return s.emap.Latent(e)
}

func (s *Swap) swapOne(frame *gocv.Mat, target face.Face, latent *face.Embedding) error {
	aligned := swapper.Align(*frame, target.Landmarks, swapper.InswapperSize)
	defer aligned.Close()

	swapped, err := s.gen.Swap(aligned.Face, latent)
	if err != nil {
		return err
	}
	defer swapped.Close()

	s.blender.Paste(frame, swapped, aligned.M, s.opts.ColorCorrection)
	return nil
}

// Close releases the generator and blender
func (s *Swap) Close() error {
	s.blender.Close()
	return s.gen.Close()
}
