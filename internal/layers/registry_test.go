package layers

import (
	"image"
	"testing"

	"aero-vision/pkg/colorutil"
	"aero-vision/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x, y, s float64) geometry.Polygon {
	return geometry.Polygon{{X: x, Y: y}, {X: x + s, Y: y}, {X: x + s, Y: y + s}, {X: x, Y: y + s}}
}

func TestAddVectorLayerAssignsUniqueIDs(t *testing.T) {
	r := NewRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := r.AddVectorLayer(square(0, 0, 10), colorutil.Red, "d")
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 50, r.Len())
}

func TestAddVectorLayerDefaults(t *testing.T) {
	r := NewRegistry()
	id := r.AddVectorLayer(square(0, 0, 10), colorutil.Green, "AI Detection 1")
	assert.Equal(t, "layer_0", id)

	l, ok := r.Layer(id)
	require.True(t, ok)
	assert.Equal(t, "AI Detection 1", l.Name)
	assert.True(t, l.Style.Visible)
	assert.True(t, l.Style.Filled)
	assert.Equal(t, DefaultOpacity, l.Style.Opacity)
	assert.Equal(t, colorutil.Green, l.Style.Color)
}

func TestIDsNotReusedAfterClear(t *testing.T) {
	r := NewRegistry()
	first := r.AddVectorLayer(square(0, 0, 10), colorutil.Red, "a")
	r.ClearVectors()
	second := r.AddVectorLayer(square(0, 0, 10), colorutil.Red, "b")
	assert.NotEqual(t, first, second)

	l, _ := r.Layer(second)
	assert.Equal(t, 1, l.ZOrder)
}

func TestVectorsInAscendingZOrder(t *testing.T) {
	r := NewRegistry()
	a := r.AddVectorLayer(square(0, 0, 10), colorutil.Red, "a")
	b := r.AddVectorLayer(square(5, 5, 10), colorutil.Blue, "b")
	c := r.AddVectorLayer(square(9, 9, 10), colorutil.Yellow, "c")

	vs := r.Vectors()
	require.Len(t, vs, 3)
	assert.Equal(t, []string{a, b, c}, []string{vs[0].ID, vs[1].ID, vs[2].ID})
	assert.Less(t, vs[0].ZOrder, vs[1].ZOrder)
	assert.Less(t, vs[1].ZOrder, vs[2].ZOrder)
	assert.Equal(t, []string{a, b, c}, r.IDs())
}

func TestUpdateStyleUnknownIDIsNoop(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Subscribe(ObserverFunc(func(Event) { calls++ }))

	assert.False(t, r.UpdateStyle("layer_404", SetVisible(false)))
	assert.Equal(t, 0, calls)
}

func TestUpdateStyleMergesAndClamps(t *testing.T) {
	r := NewRegistry()
	id := r.AddVectorLayer(square(0, 0, 10), colorutil.Red, "a")

	require.True(t, r.UpdateStyle(id, SetOpacity(1.7).Merge(SetFilled(false))))
	l, _ := r.Layer(id)
	assert.Equal(t, 1.0, l.Style.Opacity)
	assert.False(t, l.Style.Filled)
	assert.True(t, l.Style.Visible)
	assert.Equal(t, colorutil.Red, l.Style.Color)

	assert.False(t, r.UpdateStyle(id, StylePatch{}))
}

func TestClearVectorsKeepsRaster(t *testing.T) {
	r := NewRegistry()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	r.SetRaster("base", img, geometry.NewRect(0, 0, 8, 8))
	r.AddVectorLayer(square(0, 0, 4), colorutil.Red, "a")

	r.ClearVectors()
	assert.Equal(t, 0, r.Len())
	raster, ok := r.Raster()
	require.True(t, ok)
	assert.Equal(t, "base", raster.Name)
}

func TestRemoveVectorLayer(t *testing.T) {
	r := NewRegistry()
	a := r.AddVectorLayer(square(0, 0, 10), colorutil.Red, "a")
	b := r.AddVectorLayer(square(0, 0, 10), colorutil.Red, "b")

	assert.True(t, r.RemoveVectorLayer(a))
	assert.False(t, r.RemoveVectorLayer(a))
	assert.Equal(t, []string{b}, r.IDs())
}

func TestUpdateRasterStyle(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.UpdateRasterStyle(SetOpacity(0.5)), "no raster loaded")

	r.SetRaster("base", image.NewRGBA(image.Rect(0, 0, 2, 2)), geometry.NewRect(0, 0, 2, 2))
	assert.True(t, r.UpdateRasterStyle(SetOpacity(0.5).Merge(SetVisible(false))))
	raster, _ := r.Raster()
	assert.Equal(t, 0.5, raster.Opacity)
	assert.False(t, raster.Visible)

	assert.False(t, r.UpdateRasterStyle(SetColor(colorutil.Blue)))
}

func TestObserversReceiveEventsInOrder(t *testing.T) {
	r := NewRegistry()
	var kinds []EventKind
	unsubscribe := r.Subscribe(ObserverFunc(func(ev Event) { kinds = append(kinds, ev.Kind) }))

	r.SetRaster("base", image.NewRGBA(image.Rect(0, 0, 2, 2)), geometry.NewRect(0, 0, 2, 2))
	id := r.AddVectorLayer(square(0, 0, 1), colorutil.Red, "a")
	r.UpdateStyle(id, SetColor(colorutil.Blue))
	r.ClearVectors()

	assert.Equal(t, []EventKind{
		EventRasterReplaced, EventLayerAdded, EventLayerStyled, EventVectorsCleared,
	}, kinds)

	unsubscribe()
	r.AddVectorLayer(square(0, 0, 1), colorutil.Red, "b")
	assert.Len(t, kinds, 4)
}

func TestObserverMayReadRegistry(t *testing.T) {
	r := NewRegistry()
	var seen int
	r.Subscribe(ObserverFunc(func(ev Event) {
		seen = r.Len()
	}))
	r.AddVectorLayer(square(0, 0, 1), colorutil.Red, "a")
	assert.Equal(t, 1, seen)
}

func TestSnapshotsAreIndependent(t *testing.T) {
	r := NewRegistry()
	id := r.AddVectorLayerWithAttributes(square(0, 0, 1), colorutil.Red, "a", map[string]any{"area": 1.0})

	l, _ := r.Layer(id)
	l.Geometry[0].X = 99
	l.Attributes["area"] = 2.0

	again, _ := r.Layer(id)
	assert.Equal(t, 0.0, again.Geometry[0].X)
	assert.Equal(t, 1.0, again.Attributes["area"])
}

func TestWithDefaultOpacity(t *testing.T) {
	r := NewRegistry(WithDefaultOpacity(0.5))
	id := r.AddVectorLayer(square(0, 0, 1), colorutil.Red, "a")
	l, _ := r.Layer(id)
	assert.Equal(t, 0.5, l.Style.Opacity)
}
