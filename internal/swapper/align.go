package swapper

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/face"
)

// arcfaceRef holds the ArcFace landmark template for a 112x112 crop
var arcfaceRef = [5]face.Point{
	{X: 38.2946, Y: 51.6963},
	{X: 73.5318, Y: 51.5014},
	{X: 56.0252, Y: 71.7366},
	{X: 41.5493, Y: 92.3655},
	{X: 70.7299, Y: 92.2041},
}

// Input sizes of the encoder and swapper models
const (
	ArcFaceSize   = 112
	InswapperSize = 128
)

// Affine is a 2x3 affine transform [a b tx; c d ty]
type Affine [2][3]float64

// Apply maps p through the transform
func (m Affine) Apply(p face.Point) face.Point {
	x, y := float64(p.X), float64(p.Y)
	return face.Point{
		X: float32(m[0][0]*x + m[0][1]*y + m[0][2]),
		Y: float32(m[1][0]*x + m[1][1]*y + m[1][2]),
	}
}

// Invert returns the inverse transform. A singular transform inverts to zero.
func (m Affine) Invert() Affine {
	det := m[0][0]*m[1][1] - m[0][1]*m[1][0]
	if math.Abs(det) < 1e-12 {
		return Affine{}
	}
	a, b := m[1][1]/det, -m[0][1]/det
	c, d := -m[1][0]/det, m[0][0]/det
	return Affine{
		{a, b, -(a*m[0][2] + b*m[1][2])},
		{c, d, -(c*m[0][2] + d*m[1][2])},
	}
}

// Translate shifts the output of m by (dx, dy)
func (m Affine) Translate(dx, dy float64) Affine {
	m[0][2] += dx
	m[1][2] += dy
	return m
}

// Mat converts m to the CV_64F matrix WarpAffine expects. The caller closes it.
func (m Affine) Mat() gocv.Mat {
	out := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			out.SetDoubleAt(r, c, m[r][c])
		}
	}
	return out
}

// Aligned is a face warped onto the landmark template, with the transform
// that produced it
type Aligned struct {
	Face gocv.Mat
	M    Affine
}

// Close releases the aligned image
func (a *Aligned) Close() error {
	return a.Face.Close()
}

// Align warps the face with landmarks lm in img to a size x size crop
// matching the ArcFace template scaled to size.
func Align(img gocv.Mat, lm face.Landmarks, size int) Aligned {
	ratio := float32(size) / ArcFaceSize
	var dst [5]face.Point
	for i, p := range arcfaceRef {
		dst[i] = face.Point{X: p.X * ratio, Y: p.Y * ratio}
	}
	return AlignTemplate(img, lm, dst, size)
}

// AlignTemplate warps the face so its landmarks land on tmpl in a size x size crop
func AlignTemplate(img gocv.Mat, lm face.Landmarks, tmpl [5]face.Point, size int) Aligned {
	m := estimateSimilarity(lm.Points(), tmpl)
	mat := m.Mat()
	defer mat.Close()

	aligned := gocv.NewMat()
	gocv.WarpAffine(img, &aligned, mat, image.Pt(size, size))
	return Aligned{Face: aligned, M: m}
}

// estimateSimilarity solves the least-squares rotation, uniform scale and
// translation taking src onto dst.
func estimateSimilarity(src, dst [5]face.Point) Affine {
	n := float64(len(src))
	var sx, sy, dx, dy float64
	for i := range src {
		sx += float64(src[i].X)
		sy += float64(src[i].Y)
		dx += float64(dst[i].X)
		dy += float64(dst[i].Y)
	}
	sx, sy, dx, dy = sx/n, sy/n, dx/n, dy/n

	var dot, cross, srcVar float64
	for i := range src {
		px, py := float64(src[i].X)-sx, float64(src[i].Y)-sy
		qx, qy := float64(dst[i].X)-dx, float64(dst[i].Y)-dy
		dot += px*qx + py*qy
		cross += px*qy - py*qx
		srcVar += px*px + py*py
	}
	if srcVar < 1e-12 {
		return Affine{{1, 0, dx - sx}, {0, 1, dy - sy}}
	}

	// a = s*cos, b = s*sin
	a := dot / srcVar
	b := cross / srcVar
	return Affine{
		{a, -b, dx - (a*sx - b*sy)},
		{b, a, dy - (b*sx + a*sy)},
	}
}
