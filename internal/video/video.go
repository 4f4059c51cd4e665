// Package video reads and writes frames of media files with OpenCV.
package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/imageio"
)

// ErrNoFrame is returned when a file yields no decodable frame
var ErrNoFrame = errors.New("no frame")

// Reader decodes frames of a video file in order
type Reader struct {
	capture *gocv.VideoCapture
	path    string
}

// Open starts decoding path
func Open(path string) (*Reader, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("failed to open video %s", path)
	}
	return &Reader{capture: capture, path: path}, nil
}

// FrameCount is the container's frame count; it may be 0 when unknown
func (r *Reader) FrameCount() int {
	return int(r.capture.Get(gocv.VideoCaptureFrameCount))
}

// FPS is the container's frame rate
func (r *Reader) FPS() float64 {
	return r.capture.Get(gocv.VideoCaptureFPS)
}

// Size is the frame size
func (r *Reader) Size() (int, int) {
	return int(r.capture.Get(gocv.VideoCaptureFrameWidth)), int(r.capture.Get(gocv.VideoCaptureFrameHeight))
}

// Seek positions the reader so the next Read returns frame index
func (r *Reader) Seek(index int) {
	r.capture.Set(gocv.VideoCapturePosFrames, float64(index))
}

// Read decodes the next frame into m
func (r *Reader) Read(m *gocv.Mat) bool {
	return r.capture.Read(m) && !m.Empty()
}

// Close releases the decoder
func (r *Reader) Close() error {
	return r.capture.Close()
}

// ClampIndex bounds index to [0, count-1]. An unknown count leaves it
// only bounded below.
func ClampIndex(index, count int) int {
	if count > 0 && index > count-1 {
		index = count - 1
	}
	return max(index, 0)
}

// FrameCount reports the number of frames in path: 1 for a still image
func FrameCount(path string) (int, error) {
	if imageio.IsImage(path) {
		return 1, nil
	}
	r, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.FrameCount(), nil
}

// ReadImage decodes a still image as BGR
func ReadImage(path string) (gocv.Mat, error) {
	m := gocv.IMRead(path, gocv.IMReadColor)
	if m.Empty() {
		m.Close()
		return gocv.NewMat(), fmt.Errorf("failed to load image %s: %w", path, ErrNoFrame)
	}
	return m, nil
}

// WriteImage encodes m to path, format chosen by extension
func WriteImage(path string, m gocv.Mat) error {
	if !gocv.IMWrite(path, m) {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}

// FrameAt returns frame index of path; a still image is its only frame.
// The index is clamped to the frames available.
func FrameAt(path string, index int) (gocv.Mat, error) {
	if imageio.IsImage(path) {
		return ReadImage(path)
	}

	r, err := Open(path)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer r.Close()

	r.Seek(ClampIndex(index, r.FrameCount()))
	m := gocv.NewMat()
	if !r.Read(&m) {
		m.Close()
		return gocv.NewMat(), fmt.Errorf("frame %d of %s: %w", index, path, ErrNoFrame)
	}
	return m, nil
}

// EachOptions tunes Each
type EachOptions struct {
	// Step visits every Step-th frame starting at 0. Values below 1 mean 1.
	Step int
	// Progress, when non-nil, receives a progress bar
	Progress io.Writer
	// Description labels the progress bar
	Description string
}

// Each calls fn for the sampled frames of path in order. A still image is a
// single frame. fn must not keep frame after returning. Iteration stops at
// the first error from fn or when ctx is done.
func Each(ctx context.Context, path string, opts EachOptions, fn func(index int, frame gocv.Mat) error) error {
	if imageio.IsImage(path) {
		m, err := ReadImage(path)
		if err != nil {
			return err
		}
		defer m.Close()
		return fn(0, m)
	}

	r, err := Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	step := max(opts.Step, 1)
	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		total := r.FrameCount()
		if total <= 0 {
			total = -1
		}
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(opts.Description),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	frame := gocv.NewMat()
	defer frame.Close()
	for index := 0; r.Read(&frame); index++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if bar != nil {
			bar.Add(1)
		}
		if index%step != 0 {
			continue
		}
		if err := fn(index, frame); err != nil {
			return err
		}
	}
	return nil
}

// Writer encodes frames to a video file
type Writer struct {
	writer *gocv.VideoWriter
	path   string
	frames int
}

// Create opens path for writing w x h frames at fps
func Create(path string, fps float64, w, h int) (*Writer, error) {
	vw, err := gocv.VideoWriterFile(path, "mp4v", fps, w, h, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create video %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to create video %s: encoder not available", path)
	}
	return &Writer{writer: vw, path: path}, nil
}

// Write appends one frame
func (w *Writer) Write(m gocv.Mat) error {
	if err := w.writer.Write(m); err != nil {
		return fmt.Errorf("failed to write frame %d to %s: %w", w.frames, w.path, err)
	}
	w.frames++
	return nil
}

// Frames is the number of frames written
func (w *Writer) Frames() int {
	return w.frames
}

// Close finalizes the file
func (w *Writer) Close() error {
	return w.writer.Close()
}
