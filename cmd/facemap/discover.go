package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dudu/facemap/internal/analyser"
	"github.com/dudu/facemap/internal/config"
	"github.com/dudu/facemap/internal/imageio"
	"github.com/dudu/facemap/internal/logger"
	"github.com/dudu/facemap/internal/mapping"
)

var discoverDir string

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find the unique faces in the target and start a mapping file",
	Long: `Saves a crop of every unique face in the target image or video and
writes mapping.toml pairing each crop with an empty source. Fill in the
sources and pass the file to --mapping.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiscover(cmd)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverDir, "dir", "faces", "directory for face crops and mapping.toml")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command) error {
	if opts.Target == "" {
		return fmt.Errorf("--target is required")
	}
	a, err := analyser.Open(settings,
		analyser.WithSampleStep(settings.VideoSampleStep), analyser.WithProgress(os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("[facemap] getting unique faces")
	t, err := mapping.Discover(cmd.Context(), a, opts.Target, settings.UniqueThreshold)
	if err != nil {
		return err
	}
	if t.Len() == 0 {
		fmt.Println("[facemap] no faces found in target")
		return nil
	}

	if err := os.MkdirAll(discoverDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", discoverDir, err)
	}
	var mf config.MappingFile
	for _, e := range t.Entries() {
		crop := filepath.Join(discoverDir, fmt.Sprintf("target_%d.png", e.ID))
		if err := imageio.Save(crop, e.Target.Image); err != nil {
			return err
		}
		thumb := filepath.Join(discoverDir, fmt.Sprintf("target_%d_thumb.png", e.ID))
		if err := imageio.Save(thumb, e.Target.Thumbnail()); err != nil {
			return err
		}
		mf.Pairs = append(mf.Pairs, config.Pair{ID: e.ID, Target: crop})
	}

	out := filepath.Join(discoverDir, "mapping.toml")
	if err := config.SaveMapping(out, mf); err != nil {
		return err
	}
	logger.Info("Mapping", "%d unique faces written to %s", t.Len(), discoverDir)
	fmt.Printf("Fill in the sources in %s and run with --mapping %s\n", out, out)
	return nil
}
