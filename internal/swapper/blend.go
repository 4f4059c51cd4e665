package swapper

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Blender pastes swapped faces back into the frame they came from
type Blender struct {
	kernel   gocv.Mat
	blurSize int
}

// NewBlender creates a blender that feathers the paste edge with a
// blurSize Gaussian. Even sizes are rounded up.
func NewBlender(blurSize int) *Blender {
	if blurSize%2 == 0 {
		blurSize++
	}
	return &Blender{
		kernel:   gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(5, 5)),
		blurSize: blurSize,
	}
}

// Paste warps swapped back through the inverse of m and alpha-blends it into
// frame. With colorTransfer the swapped face first takes on the LAB
// statistics of the region it replaces.
func (b *Blender) Paste(frame *gocv.Mat, swapped gocv.Mat, m Affine, colorTransfer bool) {
	inv := m.Invert()
	roi := warpedBounds(inv, swapped.Cols(), swapped.Rows(), image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if roi.Dx() < 2 || roi.Dy() < 2 {
		return
	}
	local := inv.Translate(-float64(roi.Min.X), -float64(roi.Min.Y))
	localMat := local.Mat()
	defer localMat.Close()

	warped := gocv.NewMat()
	defer warped.Close()
	gocv.WarpAffine(swapped, &warped, localMat, roi.Size())

	white := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), swapped.Rows(), swapped.Cols(), gocv.MatTypeCV8U)
	defer white.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.WarpAffine(white, &mask, localMat, roi.Size())
	gocv.Erode(mask, &mask, b.kernel)
	gocv.GaussianBlur(mask, &mask, image.Pt(b.blurSize, b.blurSize), 0, 0, gocv.BorderDefault)

	region := frame.Region(roi)
	defer region.Close()

	if colorTransfer {
		b.applyColorTransfer(&warped, region)
	}
	alphaBlend(&region, warped, mask)
}

// warpedBounds is the bounding box of a w x h image pushed through m,
// clipped to bounds
func warpedBounds(m Affine, w, h int, bounds image.Rectangle) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range [4][2]float64{{0, 0}, {float64(w), 0}, {0, float64(h)}, {float64(w), float64(h)}} {
		x := m[0][0]*c[0] + m[0][1]*c[1] + m[0][2]
		y := m[1][0]*c[0] + m[1][1]*c[1] + m[1][2]
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	r := image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
	return r.Intersect(bounds)
}

// alphaBlend writes fg*mask + dst*(1-mask) into dst. mask is 8-bit single channel.
func alphaBlend(dst *gocv.Mat, fg gocv.Mat, mask gocv.Mat) {
	alpha := gocv.NewMat()
	defer alpha.Close()
	mask.ConvertToWithParams(&alpha, gocv.MatTypeCV32F, 1.0/255.0, 0)
	beta := gocv.NewMat()
	defer beta.Close()
	mask.ConvertToWithParams(&beta, gocv.MatTypeCV32F, -1.0/255.0, 1)

	alpha3 := gocv.NewMat()
	defer alpha3.Close()
	gocv.Merge([]gocv.Mat{alpha, alpha, alpha}, &alpha3)
	beta3 := gocv.NewMat()
	defer beta3.Close()
	gocv.Merge([]gocv.Mat{beta, beta, beta}, &beta3)

	fgF := gocv.NewMat()
	defer fgF.Close()
	fg.ConvertTo(&fgF, gocv.MatTypeCV32FC3)
	dstF := gocv.NewMat()
	defer dstF.Close()
	dst.ConvertTo(&dstF, gocv.MatTypeCV32FC3)

	gocv.Multiply(fgF, alpha3, &fgF)
	gocv.Multiply(dstF, beta3, &dstF)
	gocv.Add(fgF, dstF, &fgF)

	out := gocv.NewMat()
	defer out.Close()
	fgF.ConvertTo(&out, gocv.MatTypeCV8UC3)
	out.CopyTo(dst)
}

// applyColorTransfer shifts each LAB channel of source to the mean and
// standard deviation of target
func (b *Blender) applyColorTransfer(source *gocv.Mat, target gocv.Mat) {
	sourceLab := gocv.NewMat()
	defer sourceLab.Close()
	targetLab := gocv.NewMat()
	defer targetLab.Close()
	gocv.CvtColor(*source, &sourceLab, gocv.ColorBGRToLab)
	gocv.CvtColor(target, &targetLab, gocv.ColorBGRToLab)

	srcMean, srcStd := gocv.NewMat(), gocv.NewMat()
	tgtMean, tgtStd := gocv.NewMat(), gocv.NewMat()
	defer srcMean.Close()
	defer srcStd.Close()
	defer tgtMean.Close()
	defer tgtStd.Close()
	gocv.MeanStdDev(sourceLab, &srcMean, &srcStd)
	gocv.MeanStdDev(targetLab, &tgtMean, &tgtStd)

	channels := gocv.Split(sourceLab)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()
	for i := range channels {
		scale := tgtStd.GetDoubleAt(i, 0) / math.Max(srcStd.GetDoubleAt(i, 0), 1e-6)
		offset := tgtMean.GetDoubleAt(i, 0) - srcMean.GetDoubleAt(i, 0)*scale
		channels[i].ConvertToWithParams(&channels[i], gocv.MatTypeCV8U, float32(scale), float32(offset))
	}

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(channels, &merged)
	gocv.CvtColor(merged, source, gocv.ColorLabToBGR)
}

// Close releases blender resources
func (b *Blender) Close() error {
	return b.kernel.Close()
}
