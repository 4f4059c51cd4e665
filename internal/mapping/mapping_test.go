package mapping

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/dudu/facemap/internal/face"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emb(i int) *face.Embedding {
	var e face.Embedding
	e[i] = 1
	return &e
}

func faceAt(x float32, identity int) face.Face {
	return face.Face{
		BoundingBox: face.BoundingBox{X1: x, Y1: 0, X2: x + 10, Y2: 10},
		Score:       0.9,
		Embedding:   emb(identity),
	}
}

func crop(identity int) *Crop {
	c := NewCrop(image.NewRGBA(image.Rect(0, 0, 32, 32)), faceAt(0, identity))
	return &c
}

// fakeDetector returns a face for paths present in faces, nothing otherwise
type fakeDetector struct {
	faces map[string]*face.Face
	calls int
}

func (d *fakeDetector) DetectOne(img image.Image) (*face.Face, error) {
	d.calls++
	return d.faces[img.(*namedImage).name], nil
}

type namedImage struct {
	*image.RGBA
	name string
}

func loader(fail map[string]bool) Loader {
	return func(path string) (image.Image, error) {
		if fail[path] {
			return nil, errors.New("no such file")
		}
		return &namedImage{RGBA: image.NewRGBA(image.Rect(0, 0, 64, 64)), name: path}, nil
	}
}

func TestValidAndSimplify(t *testing.T) {
	tbl := NewTable(OriginManual,
		Entry{ID: 0, Source: crop(1), Target: crop(2)},
		Entry{ID: 1, Source: crop(3), Target: crop(4)},
	)
	assert.True(t, tbl.Valid())

	cleared := tbl.Clear(1, Source)
	assert.False(t, cleared.Valid())
	assert.True(t, tbl.Valid(), "receiver must not change")

	simple := cleared.Simplify()
	require.Equal(t, 1, simple.Len())
	assert.Equal(t, 0, simple.Entries()[0].ID)
	assert.True(t, simple.Frozen())
	assert.True(t, simple.Valid())
}

func TestValidRequiresEntries(t *testing.T) {
	assert.False(t, Table{}.Valid())
	assert.False(t, Table{}.Simplify().Valid())
}

func TestValidIffEveryEntryComplete(t *testing.T) {
	cases := []struct {
		name    string
		entries []Entry
		want    bool
	}{
		{"one complete", []Entry{{ID: 0, Source: crop(0), Target: crop(1)}}, true},
		{"missing source", []Entry{{ID: 0, Target: crop(1)}}, false},
		{"missing target", []Entry{{ID: 0, Source: crop(1)}}, false},
		{"blank", []Entry{{ID: 0}}, false},
		{"mixed", []Entry{{ID: 0, Source: crop(0), Target: crop(1)}, {ID: 1}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NewTable(OriginManual, tc.entries...).Valid())
		})
	}
}

func TestSimplifyIdempotent(t *testing.T) {
	tbl := NewTable(OriginManual,
		Entry{ID: 0, Source: crop(0), Target: crop(1)},
		Entry{ID: 3, Target: crop(2)},
		Entry{ID: 5, Source: crop(3), Target: crop(4)},
	)
	once := tbl.Simplify()
	twice := once.Simplify()
	assert.Equal(t, once.Entries(), twice.Entries())
	for _, e := range once.Entries() {
		assert.True(t, e.Complete())
	}
}

func TestFrozenTablePanicsOnEdit(t *testing.T) {
	tbl := NewTable(OriginManual, Entry{ID: 0, Source: crop(0), Target: crop(1)}).Simplify()
	assert.Panics(t, func() { tbl.Clear(0, Source) })
	assert.Panics(t, func() { tbl.AppendBlank() })
}

func TestAppendBlankIDs(t *testing.T) {
	tbl, id := Table{}.AppendBlank()
	assert.Equal(t, 0, id)

	tbl = NewTable(OriginManual, Entry{ID: 0}, Entry{ID: 7}, Entry{ID: 2})
	tbl, id = tbl.AppendBlank()
	assert.Equal(t, 8, id)
	e, ok := tbl.Entry(8)
	require.True(t, ok)
	assert.Nil(t, e.Source)
	assert.Nil(t, e.Target)
}

func TestAppendBlankOnDiscoveredPanics(t *testing.T) {
	tbl := NewTable(OriginDiscovered, Entry{ID: 0, Target: crop(0)})
	assert.Panics(t, func() { tbl.AppendBlank() })
}

func TestUnknownIDPanics(t *testing.T) {
	ed := NewEditor(&fakeDetector{}, loader(nil))
	assert.Panics(t, func() { ed.Apply(Table{}, SetSource{ID: 4, Path: "a.png"}) })
	assert.Panics(t, func() { ed.Apply(Table{}, Clear{ID: 4, Side: Target}) })
}

func TestDuplicateIDsPanic(t *testing.T) {
	assert.Panics(t, func() { NewTable(OriginManual, Entry{ID: 1}, Entry{ID: 1}) })
}

func TestEditorSetSource(t *testing.T) {
	f := faceAt(5, 1)
	det := &fakeDetector{faces: map[string]*face.Face{"alice.png": &f}}
	ed := NewEditor(det, loader(nil))

	var published []Table
	ed.Subscribe(func(t Table) { published = append(published, t) })

	tbl, err := ed.Apply(Table{}, AppendBlank{})
	require.NoError(t, err)
	tbl, err = ed.Apply(tbl, SetSource{ID: 0, Path: "alice.png"})
	require.NoError(t, err)

	e, _ := tbl.Entry(0)
	require.NotNil(t, e.Source)
	assert.Equal(t, f.BoundingBox, e.Source.Face.BoundingBox)
	assert.Equal(t, 10, e.Source.Image.Bounds().Dx())
	assert.Len(t, published, 2)
}

func TestEditorNoFace(t *testing.T) {
	det := &fakeDetector{}
	ed := NewEditor(det, loader(nil))
	tbl, _ := Table{}.AppendBlank()

	out, err := ed.Apply(tbl, SetSource{ID: 0, Path: "landscape.png"})
	assert.ErrorIs(t, err, ErrFaceNotDetected)
	e, _ := out.Entry(0)
	assert.Nil(t, e.Source)
}

func TestEditorReplacesSource(t *testing.T) {
	f := faceAt(0, 2)
	det := &fakeDetector{faces: map[string]*face.Face{"bob.png": &f}}
	ed := NewEditor(det, loader(nil))

	tbl := NewTable(OriginManual, Entry{ID: 0, Source: crop(9)})

	out, err := ed.Apply(tbl, SetSource{ID: 0, Path: "bob.png"})
	require.NoError(t, err)
	e, _ := out.Entry(0)
	assert.Equal(t, f.Embedding, e.Source.Face.Embedding)
}

func TestEditorKeepsSideWhenImageMissing(t *testing.T) {
	ed := NewEditor(&fakeDetector{}, loader(map[string]bool{"gone.png": true}))
	tbl := NewTable(OriginManual, Entry{ID: 0, Source: crop(9)})

	out, err := ed.Apply(tbl, SetSource{ID: 0, Path: "gone.png"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrFaceNotDetected)
	assert.Equal(t, tbl.Entries(), out.Entries())
}

func TestEditorClearsSideWhenNoFace(t *testing.T) {
	ed := NewEditor(&fakeDetector{}, loader(nil))
	tbl := NewTable(OriginManual, Entry{ID: 0, Source: crop(9)})

	out, err := ed.Apply(tbl, SetSource{ID: 0, Path: "landscape.png"})
	assert.ErrorIs(t, err, ErrFaceNotDetected)
	e, _ := out.Entry(0)
	assert.Nil(t, e.Source)
}

func TestEditorAppendBlankOnDiscovered(t *testing.T) {
	ed := NewEditor(&fakeDetector{}, loader(nil))
	tbl := NewTable(OriginDiscovered, Entry{ID: 0, Target: crop(0)})

	var out Table
	var err error
	assert.NotPanics(t, func() { out, err = ed.Apply(tbl, AppendBlank{}) })
	assert.ErrorIs(t, err, ErrBlankDiscovered)
	assert.Equal(t, tbl.Entries(), out.Entries())
}

func TestEditorEmptyPathIsNoop(t *testing.T) {
	det := &fakeDetector{}
	ed := NewEditor(det, loader(nil))
	tbl := NewTable(OriginManual, Entry{ID: 0, Source: crop(1)})

	out, err := ed.Apply(tbl, SetSource{ID: 0, Path: ""})
	require.NoError(t, err)
	assert.Equal(t, tbl.Entries(), out.Entries())
	assert.Zero(t, det.calls)
}

func TestEditorDetectsAgainEveryTime(t *testing.T) {
	f := faceAt(0, 1)
	det := &fakeDetector{faces: map[string]*face.Face{"a.png": &f}}
	ed := NewEditor(det, loader(nil))
	tbl, _ := Table{}.AppendBlank()

	tbl, _ = ed.Apply(tbl, SetTarget{ID: 0, Path: "a.png"})
	tbl, _ = ed.Apply(tbl, SetTarget{ID: 0, Path: "a.png"})
	assert.Equal(t, 2, det.calls)
	e, _ := tbl.Entry(0)
	assert.NotNil(t, e.Target)
}

func TestEditorSetTargetOnDiscovered(t *testing.T) {
	ed := NewEditor(&fakeDetector{}, loader(nil))
	tbl := NewTable(OriginDiscovered, Entry{ID: 0, Target: crop(0)})

	out, err := ed.Apply(tbl, SetTarget{ID: 0, Path: "x.png"})
	assert.ErrorIs(t, err, ErrTargetsDiscovered)
	assert.Equal(t, tbl.Entries(), out.Entries())
}

func TestEditorClear(t *testing.T) {
	ed := NewEditor(&fakeDetector{}, loader(nil))
	tbl := NewTable(OriginManual, Entry{ID: 0, Source: crop(0), Target: crop(1)})

	out, err := ed.Apply(tbl, Clear{ID: 0, Side: Target})
	require.NoError(t, err)
	e, _ := out.Entry(0)
	assert.NotNil(t, e.Source)
	assert.Nil(t, e.Target)
}

type fakeScanner struct {
	frames [][]face.Face
}

func (s fakeScanner) Scan(ctx context.Context, path string, visit func(image.Image, []face.Face) error) error {
	for _, faces := range s.frames {
		if err := visit(image.NewRGBA(image.Rect(0, 0, 100, 100)), faces); err != nil {
			return err
		}
	}
	return nil
}

func TestDiscoverTwoFaces(t *testing.T) {
	s := fakeScanner{frames: [][]face.Face{{faceAt(10, 0), faceAt(50, 1)}}}

	tbl, err := Discover(context.Background(), s, "group.jpg", 0.6)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, OriginDiscovered, tbl.Origin())
	for i, e := range tbl.Entries() {
		assert.Equal(t, i, e.ID)
		assert.NotNil(t, e.Target)
		assert.Nil(t, e.Source)
	}
}

func TestDiscoverDeduplicatesAcrossFrames(t *testing.T) {
	better := faceAt(60, 0)
	better.Score = 0.99
	s := fakeScanner{frames: [][]face.Face{
		{faceAt(10, 0)},
		{faceAt(20, 1), better},
		{{Score: 0.9}},
	}}

	tbl, err := Discover(context.Background(), s, "clip.mp4", 0.6)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	first, _ := tbl.Entry(0)
	assert.Equal(t, float32(0.99), first.Target.Face.Score)
	second, _ := tbl.Entry(1)
	assert.Equal(t, emb(1), second.Target.Face.Embedding)
}

func TestDiscoverNoFaces(t *testing.T) {
	tbl, err := Discover(context.Background(), fakeScanner{frames: [][]face.Face{nil}}, "empty.jpg", 0.6)
	require.NoError(t, err)
	assert.Zero(t, tbl.Len())
}

func TestDiscoverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Discover(ctx, fakeScanner{frames: [][]face.Face{{faceAt(0, 0)}}}, "a.jpg", 0.6)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssign(t *testing.T) {
	tbl := NewTable(OriginManual,
		Entry{ID: 0, Source: crop(10), Target: crop(1)},
		Entry{ID: 1, Source: crop(11), Target: crop(2)},
		Entry{ID: 2, Target: crop(3)},
	)
	detected := []face.Face{faceAt(0, 2), faceAt(30, 5), faceAt(60, 1)}

	got := Assign(tbl, detected, 0.5)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].EntryID)
	assert.Equal(t, float32(60), got[0].Target.BoundingBox.X1)
	assert.Equal(t, emb(10), got[0].Source.Embedding)
	assert.Equal(t, 1, got[1].EntryID)
	assert.Equal(t, float32(0), got[1].Target.BoundingBox.X1)
}

func TestAssignUsesFaceOnce(t *testing.T) {
	tbl := NewTable(OriginManual,
		Entry{ID: 0, Source: crop(10), Target: crop(1)},
		Entry{ID: 1, Source: crop(11), Target: crop(1)},
	)
	got := Assign(tbl, []face.Face{faceAt(0, 1)}, 0.5)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].EntryID)
}

func TestCropThumbnail(t *testing.T) {
	c := crop(0)
	th := c.Thumbnail()
	assert.Equal(t, image.Rect(0, 0, ThumbnailSize, ThumbnailSize), th.Bounds())
}
