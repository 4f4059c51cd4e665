package detector

import (
	"cmp"
	"slices"

	"github.com/dudu/facemap/internal/face"
)

// nms keeps the highest scoring face of every cluster whose boxes overlap by
// more than iouThreshold. The result is sorted by descending score.
func nms(faces []face.Face, iouThreshold float32) []face.Face {
	slices.SortStableFunc(faces, func(a, b face.Face) int {
		return cmp.Compare(b.Score, a.Score)
	})

	kept := faces[:0:0]
	for _, f := range faces {
		suppressed := false
		for _, k := range kept {
			if iou(k.BoundingBox, f.BoundingBox) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, f)
		}
	}
	return kept
}

// iou is the intersection over union of two boxes
func iou(a, b face.BoundingBox) float32 {
	x1, y1 := max(a.X1, b.X1), max(a.Y1, b.Y1)
	x2, y2 := min(a.X2, b.X2), min(a.Y2, b.Y2)
	if x1 >= x2 || y1 >= y2 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
