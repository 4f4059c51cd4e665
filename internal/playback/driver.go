// Package playback drives frames from a file or a capture device through the
// processor chain to a sink. One run is active at a time.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/camera"
	"github.com/dudu/facemap/internal/config"
	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/logger"
	"github.com/dudu/facemap/internal/mapping"
	"github.com/dudu/facemap/internal/metrics"
	"github.com/dudu/facemap/internal/pipeline"
	"github.com/dudu/facemap/internal/video"
)

var (
	// ErrBusy is returned when a run starts while another is active
	ErrBusy = errors.New("another run is active")
	// ErrInvalidTable is returned in mapping mode when no entry has both sides
	ErrInvalidTable = errors.New("at least one source with target is required")
)

// State is what the driver is doing
type State int

const (
	Idle State = iota
	Previewing
	LiveStreaming
	Rendering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Previewing:
		return "previewing"
	case LiveStreaming:
		return "live"
	case Rendering:
		return "rendering"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status messages reported to the user
const (
	StatusProcessing   = "processing..."
	StatusSucceeded    = "succeeded"
	StatusIgnored      = "processing ignored"
	StatusNoFace       = "face not detected"
	StatusInvalidTable = "at least one source with target is required"
)

// Sink receives rendered frames. Show must not keep frame.
type Sink interface {
	Show(frame gocv.Mat)
	Closed() bool
	Size() (int, int)
}

// Chain transforms a frame in place
type Chain interface {
	Process(mode pipeline.Mode, frame *gocv.Mat) error
}

// Gate decides whether media may be processed
type Gate interface {
	CheckPath(ctx context.Context, path string) (bool, error)
	CheckFrame(ctx context.Context, frame gocv.Mat) (bool, error)
}

// SourceDetector picks the face to apply in single-source mode
type SourceDetector interface {
	One(frame gocv.Mat) (*face.Face, error)
}

// Result summarises a run
type Result struct {
	Frames   int
	Rendered int
	Failures int
	Rejected bool
}

// Driver runs previews, the live loop and file renders
type Driver struct {
	settings config.Settings
	chain    Chain
	gate     Gate
	detector SourceDetector

	open     camera.Opener
	metrics  *metrics.Metrics
	status   func(string)
	progress io.Writer

	mu    sync.Mutex
	state State
}

// Option configures a Driver
type Option func(*Driver)

// WithOpener replaces the camera opener
func WithOpener(open camera.Opener) Option {
	return func(d *Driver) { d.open = open }
}

// WithMetrics counts frames on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithStatus receives status messages
func WithStatus(fn func(string)) Option {
	return func(d *Driver) { d.status = fn }
}

// WithProgress draws render progress on w
func WithProgress(w io.Writer) Option {
	return func(d *Driver) { d.progress = w }
}

// New creates an idle driver
func New(s config.Settings, chain Chain, gate Gate, detector SourceDetector, opts ...Option) *Driver {
	d := &Driver{
		settings: s,
		chain:    chain,
		gate:     gate,
		detector: detector,
		open:     camera.Open,
		metrics:  metrics.New(),
		status:   func(string) {},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// State returns the current state
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Metrics returns the driver's counters
func (d *Driver) Metrics() *metrics.Metrics {
	return d.metrics
}

// begin moves from Idle to s. The returned func moves back to Idle.
func (d *Driver) begin(s State) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Idle {
		return nil, fmt.Errorf("cannot start %s while %s: %w", s, d.state, ErrBusy)
	}
	d.state = s
	d.metrics.RunsStarted.Add(1)
	return func() {
		d.mu.Lock()
		d.state = Idle
		d.mu.Unlock()
	}, nil
}

func (d *Driver) report(run logger.Run, msg string) {
	run.Info("%s", msg)
	d.status(msg)
}

func (d *Driver) reject(run logger.Run, res *Result) {
	res.Rejected = true
	d.metrics.RunsRejected.Add(1)
	d.report(run, StatusIgnored)
}

// mode chooses how the chain runs for live and render runs. In mapping mode
// the table is simplified and must be valid. Otherwise the source face is used.
func (d *Driver) mode(run logger.Run, sourcePath string, t mapping.Table) (pipeline.Mode, error) {
	if d.settings.MapFaces {
		t = t.Simplify()
		if !t.Valid() {
			d.report(run, StatusInvalidTable)
			return nil, ErrInvalidTable
		}
		return pipeline.TableDriven{Table: t}, nil
	}
	return d.sourceMode(run, sourcePath)
}

// sourceMode uses the leftmost face of the source image. A source without a
// face leaves frames unchanged.
func (d *Driver) sourceMode(run logger.Run, sourcePath string) (pipeline.Mode, error) {
	if sourcePath == "" {
		return pipeline.SingleFace{}, nil
	}
	img, err := video.ReadImage(sourcePath)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	src, err := d.detector.One(img)
	if err != nil {
		return nil, fmt.Errorf("failed to detect source face: %w", err)
	}
	if src == nil {
		d.report(run, StatusNoFace)
	}
	return pipeline.SingleFace{Face: src}, nil
}

// process runs the chain on a copy of in. On failure the copy is discarded
// and ok is false.
func (d *Driver) process(run logger.Run, mode pipeline.Mode, in gocv.Mat, index int) (out gocv.Mat, ok bool) {
	out = in.Clone()
	err := d.chain.Process(mode, &out)
	if c, isChain := d.chain.(interface{ LastTiming() pipeline.Timing }); isChain {
		d.metrics.ObserveProcess(c.LastTiming().Total)
	}
	if err != nil {
		out.Close()
		d.metrics.FramesFailed.Add(1)
		run.Warn("frame %d: %v", index, err)
		return gocv.NewMat(), false
	}
	d.metrics.FramesProcessed.Add(1)
	return out, true
}
