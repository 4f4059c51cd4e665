// Package safety decides whether media may be processed. An unsafe target is
// ignored rather than reported as an error.
package safety

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/config"
	"github.com/dudu/facemap/internal/imageio"
	"github.com/dudu/facemap/internal/logger"
	"github.com/dudu/facemap/internal/video"
)

// Classifier scores one frame in [0, 1]; higher is less safe
type Classifier interface {
	Classify(frame gocv.Mat) (float32, error)
	Close() error
}

// Gate applies the content filter to paths and frames
type Gate struct {
	enabled    bool
	classifier Classifier
	threshold  float32
	step       int
	progress   io.Writer
}

// Option configures a Gate
type Option func(*Gate)

// WithProgress draws a progress bar on w while sampling videos
func WithProgress(w io.Writer) Option {
	return func(g *Gate) { g.progress = w }
}

// New builds an enabled gate. Frames scoring above threshold are unsafe;
// videos are sampled every step frames.
func New(c Classifier, threshold float32, step int, opts ...Option) *Gate {
	g := &Gate{enabled: true, classifier: c, threshold: threshold, step: max(step, 1)}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Disabled returns a gate that passes everything
func Disabled() *Gate {
	return &Gate{}
}

// Open builds the gate described by s, loading the classifier only when the
// content filter is on
func Open(s config.Settings, opts ...Option) (*Gate, error) {
	if !s.ContentFilter {
		return Disabled(), nil
	}
	c, err := NewONNXClassifier(s.Models.Path(s.Models.Safety))
	if err != nil {
		return nil, fmt.Errorf("failed to create safety classifier: %w", err)
	}
	return New(c, s.SafetyThreshold, s.VideoSampleStep, opts...), nil
}

// Enabled reports whether the gate classifies anything
func (g *Gate) Enabled() bool {
	return g.enabled
}

// CheckFrame reports whether frame is unsafe
func (g *Gate) CheckFrame(_ context.Context, frame gocv.Mat) (bool, error) {
	if !g.enabled {
		return false, nil
	}
	score, err := g.classifier.Classify(frame)
	if err != nil {
		return false, fmt.Errorf("failed to classify frame: %w", err)
	}
	unsafe := score > g.threshold
	if unsafe {
		logger.Debug("Safety", "frame rejected, score %.3f", score)
	}
	return unsafe, nil
}

// CheckPath reports whether the image or video at path is unsafe. A video
// is unsafe when any sampled frame is. Paths that are neither pass.
func (g *Gate) CheckPath(ctx context.Context, path string) (bool, error) {
	if !g.enabled {
		return false, nil
	}
	switch imageio.KindOf(path) {
	case imageio.KindImage:
		m, err := video.ReadImage(path)
		if err != nil {
			return false, err
		}
		defer m.Close()
		return g.CheckFrame(ctx, m)
	case imageio.KindVideo:
		return g.checkVideo(ctx, path)
	}
	return false, nil
}

var errUnsafe = errors.New("unsafe frame")

func (g *Gate) checkVideo(ctx context.Context, path string) (bool, error) {
	opts := video.EachOptions{Step: g.step, Progress: g.progress, Description: "checking content"}
	err := video.Each(ctx, path, opts, func(index int, frame gocv.Mat) error {
		unsafe, err := g.CheckFrame(ctx, frame)
		if err != nil {
			return fmt.Errorf("frame %d: %w", index, err)
		}
		if unsafe {
			logger.Info("Safety", "%s rejected at frame %d", path, index)
			return errUnsafe
		}
		return nil
	})
	if errors.Is(err, errUnsafe) {
		return true, nil
	}
	return false, err
}

// Close releases the classifier
func (g *Gate) Close() error {
	if g.classifier == nil {
		return nil
	}
	return g.classifier.Close()
}
