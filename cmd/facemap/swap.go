package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dudu/facemap/internal/logger"
	"github.com/dudu/facemap/internal/playback"
)

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Swap faces in the target file and write the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwap(cmd)
	},
}

func init() {
	rootCmd.AddCommand(swapCmd)
}

func runSwap(cmd *cobra.Command) error {
	if opts.Target == "" {
		return fmt.Errorf("--target is required")
	}
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

	res, err := a.driver().Render(ctx, playback.RenderRequest{
		SourcePath: opts.Source,
		TargetPath: opts.Target,
		OutputPath: opts.Output,
		Table:      t,
	})
	if err != nil {
		return err
	}
	logger.Info("Render", "%d frames, %d written, %d failed", res.Frames, res.Rendered, res.Failures)
	return nil
}
