package mapping

import (
	"context"
	"fmt"
	"image"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/logger"
)

// Scanner walks the frames of an image or video and reports the faces found
// in each. A still image is a single frame. Videos may be sampled.
type Scanner interface {
	Scan(ctx context.Context, path string, visit func(img image.Image, faces []face.Face) error) error
}

// Discover builds a table with one entry per distinct face found at path.
// Faces whose embedding matches an already discovered target with cosine
// similarity >= threshold are the same person; for those the higher scoring
// detection is kept as the target crop. Ids follow first-seen order.
// Faces without embeddings cannot be compared and are skipped.
//
// No faces yields an empty table and a nil error.
func Discover(ctx context.Context, s Scanner, path string, threshold float32) (Table, error) {
	var entries []Entry

	err := s.Scan(ctx, path, func(img image.Image, faces []face.Face) error {
		for _, f := range faces {
			if f.Embedding == nil {
				continue
			}
			if i := matchTarget(entries, &f, threshold); i >= 0 {
				if f.Score > entries[i].Target.Face.Score {
					c := NewCrop(img, f)
					entries[i].Target = &c
				}
				continue
			}
			c := NewCrop(img, f)
			entries = append(entries, Entry{ID: len(entries), Target: &c})
		}
		return ctx.Err()
	})
	if err != nil {
		return Table{}, fmt.Errorf("failed to scan %s: %w", path, err)
	}

	logger.Info("Mapping", "discovered %d unique faces in %s", len(entries), path)
	return NewTable(OriginDiscovered, entries...), nil
}

func matchTarget(entries []Entry, f *face.Face, threshold float32) int {
	best, bestSim := -1, threshold
	for i := range entries {
		sim := face.Similarity(&entries[i].Target.Face, f)
		if sim >= bestSim {
			best, bestSim = i, sim
		}
	}
	return best
}
