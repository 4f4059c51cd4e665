package ui

import (
	"image"

	"gocv.io/x/gocv"
)

// FitScale returns the factor that brings a w x h frame to a tw x th
// surface. When either target dimension is zero the frame is left as is. A landscape target
// fits the height; otherwise the frame covers the target.
func FitScale(w, h, tw, th int) float64 {
	if tw == 0 || th == 0 || w <= 0 || h <= 0 {
		return 1
	}
	if tw > th {
		return float64(th) / float64(h)
	}
	return max(float64(tw)/float64(w), float64(th)/float64(h))
}

// Fit returns img scaled by FitScale. The caller closes the result.
func Fit(img gocv.Mat, tw, th int) gocv.Mat {
	out := gocv.NewMat()
	s := FitScale(img.Cols(), img.Rows(), tw, th)
	if s == 1 {
		img.CopyTo(&out)
		return out
	}
	size := image.Pt(max(int(float64(img.Cols())*s), 1), max(int(float64(img.Rows())*s), 1))
	gocv.Resize(img, &out, size, 0, 0, gocv.InterpolationLinear)
	return out
}
