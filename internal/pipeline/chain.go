// Package pipeline runs a frame through the configured processors: the
// face swapper first, then the optional enhancer.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/mapping"
)

// Mode selects how processors choose which faces to replace. It is either
// SingleFace or TableDriven.
type Mode interface {
	mode()
}

// SingleFace applies one source face. A nil Face leaves frames untouched.
type SingleFace struct {
	Face *face.Face
}

// TableDriven applies the correspondence table; each entry's source goes
// onto the frame face that matches its target.
type TableDriven struct {
	Table mapping.Table
}

func (SingleFace) mode()  {}
func (TableDriven) mode() {}

// Processor transforms a frame in place. Implementations must produce a
// frame of the same size and type as the input.
type Processor interface {
	Name() string
	ApplyWithFace(src *face.Face, frame *gocv.Mat) error
	ApplyWithTable(t mapping.Table, frame *gocv.Mat) error
	Close() error
}

// StageError reports which processor failed
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageTiming is the duration of one processor on the last frame
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// Timing holds performance timing of the last Process call
type Timing struct {
	Stages []StageTiming
	Total  time.Duration
}

// Chain applies processors in order
type Chain struct {
	stages     []Processor
	lastTiming Timing
}

// NewChain builds a chain. An empty chain passes frames through.
func NewChain(stages ...Processor) *Chain {
	return &Chain{stages: stages}
}

// Names lists the stages in order
func (c *Chain) Names() []string {
	names := make([]string, len(c.stages))
	for i, p := range c.stages {
		names[i] = p.Name()
	}
	return names
}

// Process runs every stage on frame. The first failing stage stops the chain
// and is reported as a *StageError; frame may then be partially processed.
func (c *Chain) Process(mode Mode, frame *gocv.Mat) error {
	start := time.Now()
	timing := Timing{Stages: make([]StageTiming, 0, len(c.stages))}
	defer func() {
		timing.Total = time.Since(start)
		c.lastTiming = timing
	}()

	for _, p := range c.stages {
		stageStart := time.Now()
		var err error
		switch m := mode.(type) {
		case SingleFace:
			err = p.ApplyWithFace(m.Face, frame)
		case TableDriven:
			err = p.ApplyWithTable(m.Table, frame)
		default:
			panic(fmt.Sprintf("pipeline: unknown mode %T", mode))
		}
		timing.Stages = append(timing.Stages, StageTiming{Stage: p.Name(), Duration: time.Since(stageStart)})
		if err != nil {
			return &StageError{Stage: p.Name(), Err: err}
		}
	}
	return nil
}

// LastTiming returns timing from the last Process call
func (c *Chain) LastTiming() Timing {
	return c.lastTiming
}

// Close releases every stage
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.stages {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
