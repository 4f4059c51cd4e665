package face

import (
	"image"
	"math"
)

// Point represents a 2D point
type Point struct {
	X, Y float32
}

// BoundingBox represents a face bounding box
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns box center point
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Rect converts the box to integer pixel coordinates clamped to bounds.
// The result is empty when the box does not overlap bounds.
func (b BoundingBox) Rect(bounds image.Rectangle) image.Rectangle {
	r := image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
	return r.Intersect(bounds)
}

// Landmarks represents 5 facial landmark points
type Landmarks struct {
	LeftEye    Point // index 0
	RightEye   Point // index 1
	Nose       Point // index 2
	LeftMouth  Point // index 3
	RightMouth Point // index 4
}

// Points returns the landmarks in model order
func (l Landmarks) Points() [5]Point {
	return [5]Point{l.LeftEye, l.RightEye, l.Nose, l.LeftMouth, l.RightMouth}
}

// Embedding represents a 512-dimensional ArcFace identity embedding
type Embedding [512]float32

// Face is a detected face: where it is and who it is.
// Values are treated as immutable once produced by a detector.
type Face struct {
	BoundingBox BoundingBox
	Landmarks   Landmarks
	Score       float32
	Embedding   *Embedding // nil when the detector ran without an encoder
}

// Similarity returns the cosine similarity between two faces' embeddings,
// or -1 when either face has no embedding.
func Similarity(a, b *Face) float32 {
	if a == nil || b == nil || a.Embedding == nil || b.Embedding == nil {
		return -1
	}
	return CosineSimilarity(a.Embedding, b.Embedding)
}

// CosineSimilarity computes cosine similarity between two embeddings
func CosineSimilarity(a, b *Embedding) float32 {
	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Leftmost returns the face with the smallest X1, matching how a single
// source face is picked from a photo with several people in it.
func Leftmost(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.BoundingBox.X1 < best.BoundingBox.X1 {
			best = f
		}
	}
	return best, true
}
