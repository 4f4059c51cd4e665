package playback

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/logger"
	"github.com/dudu/facemap/internal/mapping"
	"github.com/dudu/facemap/internal/ui"
)

// LiveRequest starts the capture loop
type LiveRequest struct {
	SourcePath string
	// Table is simplified and frozen for the run in mapping mode
	Table mapping.Table
}

// Live pulls frames from the capture device until the device runs dry, the
// sink is closed or ctx is done. Each frame is optionally mirrored, fitted to
// the sink and processed. A frame whose processing fails is replaced by the
// last good output, or by the input before any frame succeeded. The content
// filter is applied to the first frame only; a rejection ends the run.
// The device is released on every path.
func (d *Driver) Live(ctx context.Context, sink Sink, req LiveRequest) (res Result, err error) {
	end, err := d.begin(LiveStreaming)
	if err != nil {
		return res, err
	}
	defer end()
	run := logger.ForRun("Live", uuid.NewString())

	mode, err := d.mode(run, req.SourcePath, req.Table)
	if err != nil {
		return res, err
	}

	dev, err := d.open(d.settings.Capture)
	if err != nil {
		return res, fmt.Errorf("failed to open capture device: %w", err)
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			run.Warn("failed to release capture device: %v", cerr)
		}
		run.Info("stopped after %d frames (%d failed)", res.Frames, res.Failures)
	}()

	d.metrics.Streaming.Store(true)
	defer d.metrics.Streaming.Store(false)

	frame := gocv.NewMat()
	defer frame.Close()
	last := gocv.NewMat()
	defer func() { last.Close() }()

	checked := false
	for {
		if ctx.Err() != nil || sink.Closed() {
			return res, nil
		}
		if !dev.Read(&frame) {
			return res, nil
		}
		index := res.Frames
		res.Frames++
		d.metrics.FramesRead.Add(1)

		if d.settings.Mirror {
			gocv.Flip(frame, &frame, 1)
		}
		tw, th := sink.Size()
		fitted := ui.Fit(frame, tw, th)

		if !checked {
			unsafe, err := d.gate.CheckFrame(ctx, fitted)
			if err != nil {
				fitted.Close()
				return res, err
			}
			if unsafe {
				fitted.Close()
				d.reject(run, &res)
				return res, nil
			}
			checked = true
		}

		out, ok := d.process(run, mode, fitted, index)
		switch {
		case ok:
			last.Close()
			last = out
			sink.Show(last)
		case last.Empty():
			res.Failures++
			sink.Show(fitted)
		default:
			res.Failures++
			sink.Show(last)
		}
		fitted.Close()
		res.Rendered++
		d.metrics.FramesRendered.Add(1)
	}
}
