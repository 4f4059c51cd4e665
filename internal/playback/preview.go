package playback

import (
	"context"

	"github.com/google/uuid"

	"github.com/dudu/facemap/internal/logger"
	"github.com/dudu/facemap/internal/ui"
	"github.com/dudu/facemap/internal/video"
)

// PreviewRequest selects one frame to preview
type PreviewRequest struct {
	SourcePath string
	TargetPath string
	// FrameIndex is clamped to the frames of a video target and ignored for images
	FrameIndex int
}

// Preview decodes one target frame, checks it, processes it and shows it on
// sink. Nothing is cached between calls. A processor failure shows the
// unprocessed frame. The preview always swaps the source face, also when
// mapping is enabled.
func (d *Driver) Preview(ctx context.Context, sink Sink, req PreviewRequest) (Result, error) {
	var res Result
	end, err := d.begin(Previewing)
	if err != nil {
		return res, err
	}
	defer end()
	run := logger.ForRun("Preview", uuid.NewString())

	frame, err := video.FrameAt(req.TargetPath, req.FrameIndex)
	if err != nil {
		return res, err
	}
	defer frame.Close()
	res.Frames = 1
	d.metrics.FramesRead.Add(1)

	unsafe, err := d.gate.CheckFrame(ctx, frame)
	if err != nil {
		return res, err
	}
	if unsafe {
		d.reject(run, &res)
		return res, nil
	}

	mode, err := d.sourceMode(run, req.SourcePath)
	if err != nil {
		return res, err
	}
	d.report(run, StatusProcessing)

	tw, th := sink.Size()
	fitted := ui.Fit(frame, tw, th)
	defer fitted.Close()

	out, ok := d.process(run, mode, fitted, req.FrameIndex)
	if ok {
		defer out.Close()
		sink.Show(out)
	} else {
		res.Failures++
		sink.Show(fitted)
	}
	res.Rendered = 1
	d.metrics.FramesRendered.Add(1)
	d.report(run, StatusSucceeded)
	return res, nil
}
