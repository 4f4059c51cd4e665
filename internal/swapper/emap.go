package swapper

import (
	"fmt"
	"os"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/inference"
)

// Emap projects an ArcFace embedding into the inswapper latent space
type Emap [512][512]float32

// LoadEmap reads a raw little-endian 512x512 float32 matrix
func LoadEmap(path string) (*Emap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read emap file: %w", err)
	}
	const size = 512 * 512 * 4
	if len(data) != size {
		return nil, fmt.Errorf("emap file size mismatch: expected %d, got %d", size, len(data))
	}

	values := inference.Float32s(data)
	var m Emap
	for i := range m {
		copy(m[i][:], values[i*512:(i+1)*512])
	}
	return &m, nil
}

// Latent computes normalize(embedding @ emap)
func (m *Emap) Latent(e *face.Embedding) *face.Embedding {
	var sums [512]float32
	for i, v := range e {
		if v == 0 {
			continue
		}
		row := &m[i]
		for j := range sums {
			sums[j] += v * row[j]
		}
	}
	return normalize(sums[:])
}
