package inference

import (
	"encoding/binary"
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// Float32s reinterprets little-endian bytes as float32 values
func Float32s(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// BlobData copies the contents of an NCHW float blob made by gocv.BlobFromImage
func BlobData(blob gocv.Mat) []float32 {
	return Float32s(blob.ToBytes())
}

// Bytes is the inverse of Float32s
func Bytes(data []float32) []byte {
	out := make([]byte, 0, len(data)*4)
	for _, v := range data {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

// PlanarToBGR converts a size x size CHW RGB float tensor into an 8-bit BGR
// image, mapping each value v to v*alpha + beta with saturation.
func PlanarToBGR(data []float32, size int, alpha, beta float32) (gocv.Mat, error) {
	plane := size * size
	if len(data) < 3*plane {
		return gocv.NewMat(), fmt.Errorf("expected %d values, got %d", 3*plane, len(data))
	}

	var channels [3]gocv.Mat
	for c := 0; c < 3; c++ {
		m, err := gocv.NewMatFromBytes(size, size, gocv.MatTypeCV32F, Bytes(data[c*plane:(c+1)*plane]))
		if err != nil {
			for _, prev := range channels[:c] {
				prev.Close()
			}
			return gocv.NewMat(), fmt.Errorf("failed to wrap channel %d: %w", c, err)
		}
		channels[c] = m
	}
	defer func() {
		for _, m := range channels {
			m.Close()
		}
	}()

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge([]gocv.Mat{channels[2], channels[1], channels[0]}, &merged)

	out := gocv.NewMat()
	merged.ConvertToWithParams(&out, gocv.MatTypeCV8UC3, alpha, beta)
	return out, nil
}
