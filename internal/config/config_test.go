package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/mapping"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, 960, s.Capture.Width)
	assert.Equal(t, 540, s.Capture.Height)
	assert.Equal(t, 60, s.Capture.FPS)
	assert.Equal(t, filepath.Join("models", "arcface.onnx"), s.Models.Path(s.Models.Encoder))
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, "facemap.toml", `
mirror = true
many_faces = true
similarity_threshold = 0.5

[capture]
camera_index = 2
fps = 30

[models]
dir = "/opt/models"
`)
	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.Mirror)
	assert.True(t, s.ManyFaces)
	assert.InDelta(t, 0.5, s.SimilarityThreshold, 1e-6)
	assert.Equal(t, 2, s.Capture.CameraIndex)
	assert.Equal(t, 30, s.Capture.FPS)
	assert.Equal(t, 960, s.Capture.Width, "unset keys keep defaults")
	assert.Equal(t, "/opt/models/inswapper.onnx", s.Models.Path(s.Models.Swapper))
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(EnvModelsDir, "/srv/weights")
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/weights", s.Models.Dir)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.toml", "mirror = ["))
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", EnvModelsDir+"=/from/dotenv\n")
	t.Setenv(EnvModelsDir, "")
	os.Unsetenv(EnvModelsDir)

	require.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "none.env"), path))
	assert.Equal(t, "/from/dotenv", os.Getenv(EnvModelsDir))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Settings){
		"similarity":  func(s *Settings) { s.SimilarityThreshold = 1.5 },
		"safety":      func(s *Settings) { s.SafetyThreshold = 1 },
		"sample step": func(s *Settings) { s.VideoSampleStep = 0 },
		"blur even":   func(s *Settings) { s.BlurSize = 30 },
		"camera":      func(s *Settings) { s.Capture.CameraIndex = -1 },
		"size":        func(s *Settings) { s.Capture.Width = 0 },
		"fps":         func(s *Settings) { s.Capture.FPS = 0 },
		"detection":   func(s *Settings) { s.Detection.Size = 100 },
		"enhancer":    func(s *Settings) { s.FaceEnhancer = true; s.Models.Enhancer = "" },
		"safety path": func(s *Settings) { s.Models.Safety = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := Default()
			mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestPathsSwap(t *testing.T) {
	p := Paths{Source: "a.jpg", Target: "b.png"}
	assert.True(t, p.Swap())
	assert.Equal(t, "b.png", p.Source)
	assert.Equal(t, "a.jpg", p.Target)

	v := Paths{Source: "a.jpg", Target: "clip.mp4"}
	assert.False(t, v.Swap())
	assert.Equal(t, "a.jpg", v.Source)
}

func TestResolveOutput(t *testing.T) {
	p := Paths{Target: "/data/clip.mp4"}
	assert.Equal(t, "/data/output.mp4", p.ResolveOutput())

	p = Paths{Target: "/data/still.jpg"}
	assert.Equal(t, "/data/output.png", p.ResolveOutput())

	p = Paths{Target: "/data/still.jpg", Output: "/tmp/x.png"}
	assert.Equal(t, "/tmp/x.png", p.ResolveOutput())
}

func TestLoadMapping(t *testing.T) {
	path := writeFile(t, "map.toml", `
[[pair]]
id = 0
source = "alice.jpg"
target = "left.jpg"

[[pair]]
id = 3
source = "bob.jpg"
target = "right.jpg"
`)
	mf, err := LoadMapping(path)
	require.NoError(t, err)
	require.Len(t, mf.Pairs, 2)
	assert.Equal(t, Pair{ID: 3, Source: "bob.jpg", Target: "right.jpg"}, mf.Pairs[1])

	_, err = LoadMapping(writeFile(t, "dup.toml", "[[pair]]\nid = 1\n[[pair]]\nid = 1\n"))
	assert.Error(t, err)
}

func TestSaveMappingRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.toml")
	mf := MappingFile{Pairs: []Pair{{ID: 0, Target: "target_0.png"}, {ID: 1, Target: "target_1.png"}}}
	require.NoError(t, SaveMapping(path, mf))

	got, err := LoadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, mf, got)
}

type pathDetector struct {
	faces map[image.Image]*face.Face
}

func (d pathDetector) DetectOne(img image.Image) (*face.Face, error) {
	return d.faces[img], nil
}

func TestMappingFileTable(t *testing.T) {
	imgs := map[string]image.Image{}
	for _, p := range []string{"alice.jpg", "left.jpg", "bob.jpg", "empty.jpg"} {
		imgs[p] = image.NewRGBA(image.Rect(0, 0, 20, 20))
	}
	var e face.Embedding
	f := &face.Face{BoundingBox: face.BoundingBox{X2: 10, Y2: 10}, Embedding: &e}
	det := pathDetector{faces: map[image.Image]*face.Face{
		imgs["alice.jpg"]: f,
		imgs["left.jpg"]:  f,
		imgs["bob.jpg"]:   f,
	}}
	ed := mapping.NewEditor(det, func(path string) (image.Image, error) { return imgs[path], nil })

	mf := MappingFile{Pairs: []Pair{
		{ID: 0, Source: "alice.jpg", Target: "left.jpg"},
		{ID: 4, Source: "bob.jpg", Target: "empty.jpg"},
	}}
	tbl, errs := mf.Table(ed)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], mapping.ErrFaceNotDetected)

	assert.False(t, tbl.Valid())
	simple := tbl.Simplify()
	require.Equal(t, 1, simple.Len())
	assert.Equal(t, 0, simple.Entries()[0].ID)
}
