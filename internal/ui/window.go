// Package ui shows processed frames on screen.
package ui

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

// WindowOptions configures a Window
type WindowOptions struct {
	Width, Height int
	// Fit asks callers to fit frames to Width x Height
	Fit     bool
	ShowFPS bool
}

// Window is an on-screen sink for processed frames
type Window struct {
	window     *gocv.Window
	name       string
	opts       WindowOptions
	lastFrame  time.Time
	frameCount int
	fps        float64
	closed     bool
}

// NewWindow opens a window of opts.Width x opts.Height
func NewWindow(name string, opts WindowOptions) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(opts.Width, opts.Height)
	window.MoveWindow(100, 100)
	return &Window{
		window:    window,
		name:      name,
		opts:      opts,
		lastFrame: time.Now(),
	}
}

// Show displays a frame and pumps window events. Esc or q closes the window.
// frame is not modified.
func (w *Window) Show(frame gocv.Mat) {
	if w.closed {
		return
	}
	if w.opts.ShowFPS {
		w.tick()
		frame = frame.Clone()
		defer frame.Close()
		gocv.PutText(&frame, fmt.Sprintf("FPS: %.1f", w.fps), image.Pt(10, 30),
			gocv.FontHersheyPlain, 2, color.RGBA{R: 0, G: 255, B: 0, A: 255}, 2)
	}
	w.window.IMShow(frame)
	w.poll(1)
}

func (w *Window) poll(delayMs int) {
	switch w.window.WaitKey(delayMs) {
	case 27, 'q':
		w.closed = true
	}
}

// Wait pumps events until the window is dismissed or ctx is done
func (w *Window) Wait(ctx context.Context) {
	for !w.Closed() && ctx.Err() == nil {
		w.poll(50)
	}
}

func (w *Window) tick() {
	w.frameCount++
	now := time.Now()
	if elapsed := now.Sub(w.lastFrame); elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}
}

// Closed reports whether the user dismissed the window
func (w *Window) Closed() bool {
	if !w.closed && !w.window.IsOpen() {
		w.closed = true
	}
	return w.closed
}

// Size returns the surface frames are fitted to, or zero when frames are
// shown at their own size
func (w *Window) Size() (int, int) {
	if !w.opts.Fit {
		return 0, 0
	}
	return w.opts.Width, w.opts.Height
}

// FPS returns current frames per second
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window
func (w *Window) Close() error {
	w.closed = true
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
