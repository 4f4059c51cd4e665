package pipeline

import (
	"fmt"

	"github.com/dudu/facemap/internal/analyser"
	"github.com/dudu/facemap/internal/config"
	"github.com/dudu/facemap/internal/enhancer"
	"github.com/dudu/facemap/internal/swapper"
)

// Build loads the processors enabled in s. The swapper always runs; the
// enhancer follows it when FaceEnhancer is set. The chain shares a but does
// not close it.
func Build(s config.Settings, a *analyser.Analyser) (*Chain, error) {
	gen, err := swapper.NewInswapper(s.Models.Path(s.Models.Swapper))
	if err != nil {
		return nil, fmt.Errorf("failed to create swapper: %w", err)
	}

	var emap *swapper.Emap
	if s.Models.Emap != "" {
		emap, err = swapper.LoadEmap(s.Models.Path(s.Models.Emap))
		if err != nil {
			gen.Close()
			return nil, fmt.Errorf("failed to load emap: %w", err)
		}
	}

	stages := []Processor{NewSwap(a, gen, emap, swapper.NewBlender(s.BlurSize), SwapOptions{
		ManyFaces:           s.ManyFaces,
		ColorCorrection:     s.ColorCorrection,
		SimilarityThreshold: s.SimilarityThreshold,
	})}

	if s.FaceEnhancer {
		gfpgan, err := enhancer.NewGFPGAN(s.Models.Path(s.Models.Enhancer), s.BlurSize)
		if err != nil {
			NewChain(stages...).Close()
			return nil, fmt.Errorf("failed to create enhancer: %w", err)
		}
		stages = append(stages, NewEnhance(a, gfpgan))
	}

	return NewChain(stages...), nil
}
