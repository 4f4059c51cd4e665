package mapping

import (
	"errors"
	"fmt"
	"image"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/imageio"
	"github.com/dudu/facemap/internal/logger"
)

// ErrFaceNotDetected is returned when an image chosen for an entry holds no face
var ErrFaceNotDetected = errors.New("face not detected")

// ErrTargetsDiscovered is returned when a target is set by hand on a table
// whose targets came from discovery.
var ErrTargetsDiscovered = errors.New("targets of a discovered table are fixed")

// ErrBlankDiscovered is returned when a blank entry is requested on a table
// whose entries came from discovery.
var ErrBlankDiscovered = errors.New("entries of a discovered table are fixed")

// Detector finds the face to use when a user picks an image for an entry.
// It returns a nil face and nil error when the image holds no face.
type Detector interface {
	DetectOne(img image.Image) (*face.Face, error)
}

// Loader decodes the image at path
type Loader func(path string) (image.Image, error)

// Event is one user action on the table
type Event interface {
	event()
}

// SetSource picks the source image for entry ID
type SetSource struct {
	ID   int
	Path string
}

// SetTarget picks the target image for entry ID
type SetTarget struct {
	ID   int
	Path string
}

// Clear removes one side of entry ID
type Clear struct {
	ID   int
	Side Side
}

// AppendBlank adds an empty entry
type AppendBlank struct{}

func (SetSource) event()   {}
func (SetTarget) event()   {}
func (Clear) event()       {}
func (AppendBlank) event() {}

// Editor applies events to tables. It holds no table itself; the caller
// threads the returned table into the next call.
type Editor struct {
	detector    Detector
	load        Loader
	subscribers []func(Table)
}

// NewEditor creates an editor. A nil loader decodes from disk.
func NewEditor(d Detector, load Loader) *Editor {
	if load == nil {
		load = imageio.Load
	}
	return &Editor{detector: d, load: load}
}

// Subscribe registers fn to receive every table produced by a change
func (e *Editor) Subscribe(fn func(Table)) {
	e.subscribers = append(e.subscribers, fn)
}

func (e *Editor) publish(t Table) {
	for _, fn := range e.subscribers {
		fn(t)
	}
}

// Apply reduces ev onto t. Addressing an id that is not in t panics.
//
// Choosing a source or target always re-runs detection on the chosen image.
// When the image cannot be loaded or detection fails the table is returned
// unchanged with the error. When detection finds nothing the side is cleared
// and ErrFaceNotDetected is returned with the table.
func (e *Editor) Apply(t Table, ev Event) (Table, error) {
	var (
		out Table
		err error
	)
	switch ev := ev.(type) {
	case SetSource:
		out, err = e.choose(t, ev.ID, Source, ev.Path)
	case SetTarget:
		if t.Origin() == OriginDiscovered {
			t.mustIndex(ev.ID)
			return t, ErrTargetsDiscovered
		}
		out, err = e.choose(t, ev.ID, Target, ev.Path)
	case Clear:
		out = t.Clear(ev.ID, ev.Side)
	case AppendBlank:
		if t.Origin() == OriginDiscovered {
			return t, ErrBlankDiscovered
		}
		out, _ = t.AppendBlank()
	default:
		panic(fmt.Sprintf("mapping: unknown event %T", ev))
	}
	e.publish(out)
	return out, err
}

func (e *Editor) choose(t Table, id int, side Side, path string) (Table, error) {
	t.mustIndex(id)
	if path == "" {
		return t, nil
	}
	img, err := e.load(path)
	if err != nil {
		return t, fmt.Errorf("failed to load %s image: %w", side, err)
	}
	f, err := e.detector.DetectOne(img)
	if err != nil {
		return t, fmt.Errorf("failed to detect %s face: %w", side, err)
	}
	if f == nil {
		logger.Warn("Mapping", "entry %d: no face in %s", id, path)
		return t.Clear(id, side), ErrFaceNotDetected
	}
	return t.Set(id, side, NewCrop(img, *f)), nil
}
