// Package camera opens the capture device the live loop reads from.
package camera

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/config"
	"github.com/dudu/facemap/internal/logger"
)

// Device yields frames until it is closed or runs dry
type Device interface {
	Read(frame *gocv.Mat) bool
	Close() error
}

// Opener acquires a device configured from c
type Opener func(c config.CaptureConfig) (Device, error)

var _ Device = (*Capture)(nil)

// Capture is a webcam opened through OpenCV
type Capture struct {
	webcam *gocv.VideoCapture
	index  int
	width  int
	height int
	mu     sync.Mutex
}

// Open acquires camera c.CameraIndex and requests its resolution and rate.
// The camera may settle on different values; Width and Height report them.
func Open(c config.CaptureConfig) (Device, error) {
	webcam, err := gocv.OpenVideoCapture(c.CameraIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", c.CameraIndex, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("camera %d is not available", c.CameraIndex)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	webcam.Set(gocv.VideoCaptureFPS, float64(c.FPS))

	capture := &Capture{
		webcam: webcam,
		index:  c.CameraIndex,
		width:  int(webcam.Get(gocv.VideoCaptureFrameWidth)),
		height: int(webcam.Get(gocv.VideoCaptureFrameHeight)),
	}
	logger.Info("Camera", "camera %d opened at %dx%d", c.CameraIndex, capture.width, capture.height)
	return capture, nil
}

// Read captures a frame into the provided Mat
func (c *Capture) Read(frame *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return false
	}
	return c.webcam.Read(frame) && !frame.Empty()
}

// Width returns frame width
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	return c.height
}

// Close releases the camera. Later calls are no-ops.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		logger.Info("Camera", "camera %d released", c.index)
		return err
	}
	return nil
}
