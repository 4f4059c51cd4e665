package config

import (
	"path/filepath"

	"github.com/dudu/facemap/internal/imageio"
)

// Paths are the media chosen for a run
type Paths struct {
	Source string
	Target string
	Output string
}

// Swap exchanges source and target. Only two still images can trade places;
// otherwise nothing changes and false is returned.
func (p *Paths) Swap() bool {
	if !imageio.IsImage(p.Source) || !imageio.IsImage(p.Target) {
		return false
	}
	p.Source, p.Target = p.Target, p.Source
	return true
}

// ResolveOutput fills Output when empty: output.png next to a still target,
// output.mp4 next to a video target.
func (p *Paths) ResolveOutput() string {
	if p.Output != "" {
		return p.Output
	}
	name := "output.png"
	if imageio.IsVideo(p.Target) {
		name = "output.mp4"
	}
	p.Output = filepath.Join(filepath.Dir(p.Target), name)
	return p.Output
}
