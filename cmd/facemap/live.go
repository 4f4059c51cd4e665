package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dudu/facemap/internal/logger"
	"github.com/dudu/facemap/internal/playback"
	"github.com/dudu/facemap/internal/ui"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Swap faces in the camera feed",
	Long: `Opens the camera and shows the processed feed until the window is
closed (Esc or q) or the process is interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLive(cmd)
	},
}

func init() {
	rootCmd.AddCommand(liveCmd)
}

func runLive(cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.table()
	if err != nil {
		return err
	}

	win := ui.NewWindow("facemap", ui.WindowOptions{
		Width:   settings.Preview.MaxWidth,
		Height:  settings.Preview.MaxHeight,
		Fit:     settings.Resizable,
		ShowFPS: true,
	})
	defer win.Close()

	fmt.Println("Running... Press 'q' to quit")
	res, err := a.driver().Live(ctx, win, playback.LiveRequest{SourcePath: opts.Source, Table: t})
	if err != nil {
		return err
	}
	logger.Info("Live", "%d frames, %d rendered, %d failed", res.Frames, res.Rendered, res.Failures)
	return nil
}
