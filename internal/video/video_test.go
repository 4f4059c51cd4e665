package video

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestClampIndex(t *testing.T) {
	assert.Equal(t, 0, ClampIndex(-3, 10))
	assert.Equal(t, 4, ClampIndex(4, 10))
	assert.Equal(t, 9, ClampIndex(25, 10))
	assert.Equal(t, 25, ClampIndex(25, 0))
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 8, 12, gocv.MatTypeCV8UC3)
	defer m.Close()
	path := filepath.Join(t.TempDir(), "still.png")
	require.NoError(t, WriteImage(path, m))
	return path
}

func TestStillImageIsOneFrame(t *testing.T) {
	path := writeTestImage(t)

	n, err := FrameCount(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	m, err := FrameAt(path, 7)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 12, m.Cols())
	assert.Equal(t, 8, m.Rows())

	var visited []int
	err = Each(context.Background(), path, EachOptions{}, func(i int, frame gocv.Mat) error {
		visited = append(visited, i)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, visited)
}

func TestReadImageMissing(t *testing.T) {
	_, err := ReadImage(filepath.Join(t.TempDir(), "none.png"))
	assert.ErrorIs(t, err, ErrNoFrame)
}
