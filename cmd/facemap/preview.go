package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dudu/facemap/internal/playback"
	"github.com/dudu/facemap/internal/ui"
	"github.com/dudu/facemap/internal/video"
)

var previewFrame int

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview one processed frame of the target",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPreview(cmd)
	},
}

func init() {
	previewCmd.Flags().IntVarP(&previewFrame, "frame", "f", 0, "frame of a video target to preview")
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command) error {
	if opts.Target == "" {
		return fmt.Errorf("--target is required")
	}
	count, err := video.FrameCount(opts.Target)
	if err != nil {
		return err
	}
	frame := video.ClampIndex(previewFrame, count)

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	win := ui.NewWindow("facemap preview", ui.WindowOptions{
		Width:  settings.Preview.MaxWidth,
		Height: settings.Preview.MaxHeight,
		Fit:    true,
	})
	defer win.Close()

	res, err := a.driver().Preview(ctx, win, playback.PreviewRequest{
		SourcePath: opts.Source,
		TargetPath: opts.Target,
		FrameIndex: frame,
	})
	if err != nil {
		return err
	}
	if res.Rejected {
		return nil
	}
	fmt.Printf("frame %d of %d, press 'q' to close\n", frame, count)
	win.Wait(ctx)
	return nil
}
