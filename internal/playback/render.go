package playback

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/config"
	"github.com/dudu/facemap/internal/imageio"
	"github.com/dudu/facemap/internal/logger"
	"github.com/dudu/facemap/internal/mapping"
	"github.com/dudu/facemap/internal/pipeline"
	"github.com/dudu/facemap/internal/video"
)

// DefaultFPS is the output rate when the source rate is not kept
const DefaultFPS = 30

// RenderRequest processes a whole target file
type RenderRequest struct {
	SourcePath string
	TargetPath string
	// OutputPath defaults to output.png or output.mp4 next to the target
	OutputPath string
	Table      mapping.Table
}

// Render processes the target image, or every frame of the target video, and
// writes the result. Failed video frames are written as the last good output.
func (d *Driver) Render(ctx context.Context, req RenderRequest) (Result, error) {
	var res Result
	end, err := d.begin(Rendering)
	if err != nil {
		return res, err
	}
	defer end()
	run := logger.ForRun("Render", uuid.NewString())

	paths := config.Paths{Source: req.SourcePath, Target: req.TargetPath, Output: req.OutputPath}
	output := paths.ResolveOutput()

	unsafe, err := d.gate.CheckPath(ctx, req.TargetPath)
	if err != nil {
		return res, err
	}
	if unsafe {
		d.reject(run, &res)
		return res, nil
	}

	mode, err := d.mode(run, req.SourcePath, req.Table)
	if err != nil {
		return res, err
	}
	d.report(run, StatusProcessing)

	switch imageio.KindOf(req.TargetPath) {
	case imageio.KindImage:
		err = d.renderImage(run, mode, req.TargetPath, output, &res)
	case imageio.KindVideo:
		err = d.renderVideo(ctx, run, mode, req.TargetPath, output, &res)
	default:
		err = fmt.Errorf("unsupported target %s", req.TargetPath)
	}
	if err != nil {
		return res, err
	}
	run.Info("wrote %s", output)
	d.report(run, StatusSucceeded)
	return res, nil
}

func (d *Driver) renderImage(run logger.Run, mode pipeline.Mode, target, output string, res *Result) error {
	frame, err := video.ReadImage(target)
	if err != nil {
		return err
	}
	defer frame.Close()
	res.Frames = 1
	d.metrics.FramesRead.Add(1)

	out := frame.Clone()
	defer out.Close()
	if err := d.chain.Process(mode, &out); err != nil {
		d.metrics.FramesFailed.Add(1)
		return fmt.Errorf("failed to process %s: %w", target, err)
	}
	d.metrics.FramesProcessed.Add(1)

	if err := video.WriteImage(output, out); err != nil {
		return err
	}
	res.Rendered = 1
	d.metrics.FramesRendered.Add(1)
	return nil
}

func (d *Driver) renderVideo(ctx context.Context, run logger.Run, mode pipeline.Mode, target, output string, res *Result) error {
	r, err := video.Open(target)
	if err != nil {
		return err
	}
	fps := float64(DefaultFPS)
	if d.settings.KeepFPS && r.FPS() > 0 {
		fps = r.FPS()
	}
	w, h := r.Size()
	r.Close()

	if d.settings.KeepAudio {
		run.Warn("audio is not copied to %s", output)
	}

	writer, err := video.Create(output, fps, w, h)
	if err != nil {
		return err
	}
	defer writer.Close()

	last := gocv.NewMat()
	defer func() { last.Close() }()

	opts := video.EachOptions{Step: 1, Progress: d.progress, Description: "processing"}
	return video.Each(ctx, target, opts, func(index int, frame gocv.Mat) error {
		res.Frames++
		d.metrics.FramesRead.Add(1)

		out, ok := d.process(run, mode, frame, index)
		var werr error
		switch {
		case ok:
			last.Close()
			last = out
			werr = writer.Write(last)
		case last.Empty():
			res.Failures++
			werr = writer.Write(frame)
		default:
			res.Failures++
			werr = writer.Write(last)
		}
		if werr != nil {
			return werr
		}
		res.Rendered++
		d.metrics.FramesRendered.Add(1)
		return nil
	})
}
