package safety

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/dudu/facemap/internal/video"
)

type fakeClassifier struct {
	score  float32
	err    error
	calls  int
	closed bool
}

func (c *fakeClassifier) Classify(gocv.Mat) (float32, error) {
	c.calls++
	return c.score, c.err
}

func (c *fakeClassifier) Close() error {
	c.closed = true
	return nil
}

func frame() gocv.Mat {
	return gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
}

func TestCheckFrameThreshold(t *testing.T) {
	m := frame()
	defer m.Close()
	ctx := context.Background()

	unsafe, err := New(&fakeClassifier{score: 0.9}, 0.85, 1).CheckFrame(ctx, m)
	require.NoError(t, err)
	assert.True(t, unsafe)

	unsafe, err = New(&fakeClassifier{score: 0.85}, 0.85, 1).CheckFrame(ctx, m)
	require.NoError(t, err)
	assert.False(t, unsafe, "threshold itself is safe")
}

func TestCheckFrameError(t *testing.T) {
	m := frame()
	defer m.Close()
	_, err := New(&fakeClassifier{err: errors.New("boom")}, 0.5, 1).CheckFrame(context.Background(), m)
	assert.Error(t, err)
}

func TestDisabledGatePassesEverything(t *testing.T) {
	g := Disabled()
	m := frame()
	defer m.Close()

	unsafe, err := g.CheckFrame(context.Background(), m)
	require.NoError(t, err)
	assert.False(t, unsafe)

	unsafe, err = g.CheckPath(context.Background(), "/does/not/exist.mp4")
	require.NoError(t, err)
	assert.False(t, unsafe)
	assert.False(t, g.Enabled())
	assert.NoError(t, g.Close())
}

func TestCheckPathImage(t *testing.T) {
	m := frame()
	defer m.Close()
	path := filepath.Join(t.TempDir(), "target.png")
	require.NoError(t, video.WriteImage(path, m))

	c := &fakeClassifier{score: 0.99}
	unsafe, err := New(c, 0.85, 1).CheckPath(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, unsafe)
	assert.Equal(t, 1, c.calls)
}

func TestCheckPathUnknownKind(t *testing.T) {
	c := &fakeClassifier{score: 1}
	unsafe, err := New(c, 0.85, 1).CheckPath(context.Background(), "notes.txt")
	require.NoError(t, err)
	assert.False(t, unsafe)
	assert.Zero(t, c.calls)
}

func TestCloseReleasesClassifier(t *testing.T) {
	c := &fakeClassifier{}
	require.NoError(t, New(c, 0.5, 1).Close())
	assert.True(t, c.closed)
}

func TestUnsafeScore(t *testing.T) {
	assert.InDelta(t, 0.9, unsafeScore([]float32{0.1, 0.9}), 1e-6)
	assert.InDelta(t, 0.5, unsafeScore([]float32{3, 3}), 1e-6)
	assert.Greater(t, unsafeScore([]float32{-2, 4}), float32(0.99))
	assert.Zero(t, unsafeScore(nil))
}

func TestToNHWC(t *testing.T) {
	// 2x2 image, channels r=0.., g=10.., b=20..
	chw := []float32{0, 1, 2, 3, 10, 11, 12, 13, 20, 21, 22, 23}
	assert.Equal(t, []float32{0, 10, 20, 1, 11, 21, 2, 12, 22, 3, 13, 23}, toNHWC(chw, 2))
}
