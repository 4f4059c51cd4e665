// Package analyser finds faces together with their identity embeddings. It
// is the one place detection and encoding meet, and it adapts both to the
// still images and videos the mapping editor works with.
package analyser

import (
	"context"
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/config"
	"github.com/dudu/facemap/internal/detector"
	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/swapper"
	"github.com/dudu/facemap/internal/video"
)

// Detector locates faces in a BGR frame
type Detector interface {
	Detect(frame gocv.Mat) ([]face.Face, error)
	Close() error
}

// Embedder computes the identity embedding of a face within its frame
type Embedder interface {
	Embed(frame gocv.Mat, f face.Face) (*face.Embedding, error)
	Close() error
}

// Analyser detects faces and fills in their embeddings
type Analyser struct {
	det      Detector
	enc      Embedder
	step     int
	progress io.Writer
}

// Option configures an Analyser
type Option func(*Analyser)

// WithSampleStep scans every n-th video frame during discovery
func WithSampleStep(n int) Option {
	return func(a *Analyser) { a.step = n }
}

// WithProgress draws a progress bar on w while scanning videos
func WithProgress(w io.Writer) Option {
	return func(a *Analyser) { a.progress = w }
}

// New wraps a detector and an embedder
func New(det Detector, enc Embedder, opts ...Option) *Analyser {
	a := &Analyser{det: det, enc: enc, step: 1}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Open loads the SCRFD detector and the ArcFace encoder named in s
func Open(s config.Settings, opts ...Option) (*Analyser, error) {
	det, err := detector.NewSCRFD(s.Models.Path(s.Models.Detector), detector.Options{
		InputSize:     s.Detection.Size,
		ConfThreshold: s.Detection.ConfThreshold,
		NMSThreshold:  s.Detection.NMSThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}
	enc, err := swapper.NewArcFaceEncoder(s.Models.Path(s.Models.Encoder))
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	return New(det, enc, opts...), nil
}

// Detect locates faces without computing embeddings
func (a *Analyser) Detect(frame gocv.Mat) ([]face.Face, error) {
	faces, err := a.det.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	return faces, nil
}

// Faces returns every face in frame with its embedding, highest score first
func (a *Analyser) Faces(frame gocv.Mat) ([]face.Face, error) {
	faces, err := a.Detect(frame)
	if err != nil {
		return nil, err
	}
	for i := range faces {
		emb, err := a.enc.Embed(frame, faces[i])
		if err != nil {
			return nil, fmt.Errorf("embedding failed: %w", err)
		}
		faces[i].Embedding = emb
	}
	return faces, nil
}

// One returns the leftmost face in frame, or nil when there is none
func (a *Analyser) One(frame gocv.Mat) (*face.Face, error) {
	faces, err := a.Faces(frame)
	if err != nil {
		return nil, err
	}
	f, ok := face.Leftmost(faces)
	if !ok {
		return nil, nil
	}
	return &f, nil
}

// DetectOne analyses a decoded still image
func (a *Analyser) DetectOne(img image.Image) (*face.Face, error) {
	m, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer m.Close()
	return a.One(m)
}

// Scan visits the image at path, or the sampled frames of the video at path,
// with the faces found in each
func (a *Analyser) Scan(ctx context.Context, path string, visit func(img image.Image, faces []face.Face) error) error {
	opts := video.EachOptions{Step: a.step, Progress: a.progress, Description: "getting unique faces"}
	return video.Each(ctx, path, opts, func(_ int, frame gocv.Mat) error {
		faces, err := a.Faces(frame)
		if err != nil {
			return err
		}
		if len(faces) == 0 {
			return nil
		}
		img, err := frame.ToImage()
		if err != nil {
			return fmt.Errorf("failed to convert frame: %w", err)
		}
		return visit(img, faces)
	})
}

// Close releases the models
func (a *Analyser) Close() error {
	derr := a.det.Close()
	eerr := a.enc.Close()
	if derr != nil {
		return derr
	}
	return eerr
}
