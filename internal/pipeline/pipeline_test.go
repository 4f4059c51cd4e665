package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/mapping"
	"github.com/dudu/facemap/internal/swapper"
)

type recorder struct {
	name   string
	calls  *[]string
	err    error
	closed bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) ApplyWithFace(*face.Face, *gocv.Mat) error {
	*r.calls = append(*r.calls, r.name+":face")
	return r.err
}

func (r *recorder) ApplyWithTable(mapping.Table, *gocv.Mat) error {
	*r.calls = append(*r.calls, r.name+":table")
	return r.err
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

func TestChainRunsStagesInOrder(t *testing.T) {
	var calls []string
	a := &recorder{name: "a", calls: &calls}
	b := &recorder{name: "b", calls: &calls}
	c := NewChain(a, b)
	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	require.NoError(t, c.Process(SingleFace{}, &frame))
	require.NoError(t, c.Process(TableDriven{}, &frame))
	assert.Equal(t, []string{"a:face", "b:face", "a:table", "b:table"}, calls)
	assert.Equal(t, []string{"a", "b"}, c.Names())
	assert.Len(t, c.LastTiming().Stages, 2)

	require.NoError(t, c.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestChainStopsAtFirstFailure(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	c := NewChain(&recorder{name: "a", calls: &calls, err: boom}, &recorder{name: "b", calls: &calls})
	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	err := c.Process(SingleFace{}, &frame)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "a", se.Stage)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a:face"}, calls)
}

func TestEmptyChainPassesThrough(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(7, 8, 9, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()
	require.NoError(t, NewChain().Process(SingleFace{}, &frame))
	v := frame.GetVecbAt(2, 2)
	assert.Equal(t, []uint8{7, 8, 9}, []uint8(v))
}

type fakeAnalyser struct {
	faces []face.Face
	calls int
}

func (a *fakeAnalyser) Faces(gocv.Mat) ([]face.Face, error) {
	a.calls++
	return append([]face.Face(nil), a.faces...), nil
}

func (a *fakeAnalyser) Detect(m gocv.Mat) ([]face.Face, error) {
	return a.Faces(m)
}

type fakeGenerator struct {
	swaps  int
	closed bool
}

func (g *fakeGenerator) Swap(gocv.Mat, *face.Embedding) (gocv.Mat, error) {
	g.swaps++
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 255, 0, 0), swapper.InswapperSize, swapper.InswapperSize, gocv.MatTypeCV8UC3), nil
}

func (g *fakeGenerator) Close() error {
	g.closed = true
	return nil
}

// centredFace sits so that aligning to 128 is a pure translation by 36
func centredFace(emb *face.Embedding) face.Face {
	return face.Face{
		BoundingBox: face.BoundingBox{X1: 60, Y1: 60, X2: 140, Y2: 150},
		Landmarks: face.Landmarks{
			LeftEye:    face.Point{X: 79.77, Y: 95.08},
			RightEye:   face.Point{X: 120.04, Y: 94.86},
			Nose:       face.Point{X: 100.03, Y: 117.98},
			LeftMouth:  face.Point{X: 83.49, Y: 141.56},
			RightMouth: face.Point{X: 116.83, Y: 141.38},
		},
		Score:     0.9,
		Embedding: emb,
	}
}

func embedding(i int) *face.Embedding {
	var e face.Embedding
	e[i] = 1
	return &e
}

func newTestSwap(a *fakeAnalyser, g *fakeGenerator) *Swap {
	return NewSwap(a, g, nil, swapper.NewBlender(31), SwapOptions{SimilarityThreshold: 0.4})
}

func TestSwapSingleFacePastesGeneratorOutput(t *testing.T) {
	a := &fakeAnalyser{faces: []face.Face{centredFace(embedding(1))}}
	g := &fakeGenerator{}
	s := newTestSwap(a, g)
	defer s.Close()

	frame := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8UC3)
	defer frame.Close()
	src := face.Face{Embedding: embedding(2)}

	require.NoError(t, s.ApplyWithFace(&src, &frame))
	assert.Equal(t, 1, g.swaps)
	assert.Equal(t, []uint8{0, 255, 0}, []uint8(frame.GetVecbAt(100, 100)))
	assert.Equal(t, []uint8{0, 0, 0}, []uint8(frame.GetVecbAt(5, 5)))
}

func TestSwapWithoutSourceIsNoop(t *testing.T) {
	a := &fakeAnalyser{faces: []face.Face{centredFace(embedding(1))}}
	g := &fakeGenerator{}
	s := newTestSwap(a, g)
	defer s.Close()

	frame := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8UC3)
	defer frame.Close()

	require.NoError(t, s.ApplyWithFace(nil, &frame))
	require.NoError(t, s.ApplyWithFace(&face.Face{}, &frame))
	assert.Zero(t, a.calls)
	assert.Zero(t, g.swaps)
}

func TestSwapTableSwapsMatchedFacesOnly(t *testing.T) {
	known, stranger := centredFace(embedding(1)), centredFace(embedding(9))
	stranger.BoundingBox.X1 = 0
	a := &fakeAnalyser{faces: []face.Face{known, stranger}}
	g := &fakeGenerator{}
	s := newTestSwap(a, g)
	defer s.Close()

	tbl := mapping.NewTable(mapping.OriginManual, mapping.Entry{
		ID:     0,
		Source: &mapping.Crop{Face: face.Face{Embedding: embedding(2)}},
		Target: &mapping.Crop{Face: face.Face{Embedding: embedding(1)}},
	})
	frame := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8UC3)
	defer frame.Close()

	require.NoError(t, s.ApplyWithTable(tbl, &frame))
	assert.Equal(t, 1, g.swaps)
}

func TestSwapCloseReleasesGenerator(t *testing.T) {
	g := &fakeGenerator{}
	require.NoError(t, newTestSwap(&fakeAnalyser{}, g).Close())
	assert.True(t, g.closed)
}

type fakeEnhancer struct {
	enhanced int
	closed   bool
}

func (e *fakeEnhancer) EnhanceFace(*gocv.Mat, face.Face) error {
	e.enhanced++
	return nil
}

func (e *fakeEnhancer) Close() error {
	e.closed = true
	return nil
}

func TestEnhanceAllFaces(t *testing.T) {
	a := &fakeAnalyser{faces: []face.Face{centredFace(nil), centredFace(nil)}}
	enh := &fakeEnhancer{}
	stage := NewEnhance(a, enh)
	frame := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8UC3)
	defer frame.Close()

	require.NoError(t, stage.ApplyWithFace(nil, &frame))
	assert.Zero(t, enh.enhanced)

	require.NoError(t, stage.ApplyWithFace(&face.Face{}, &frame))
	assert.Equal(t, 2, enh.enhanced)

	require.NoError(t, stage.ApplyWithTable(mapping.Table{}, &frame))
	assert.Equal(t, 4, enh.enhanced)

	require.NoError(t, stage.Close())
	assert.True(t, enh.closed)
}
