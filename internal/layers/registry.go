// Package layers owns the scene's layer stack: at most one base raster and an
// ordered set of styleable vector layers produced by detection runs.
package layers

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"aero-vision/pkg/colorutil"
	"aero-vision/pkg/geometry"
)

// RasterLayer is the single base image. It always draws beneath every
// vector layer.
type RasterLayer struct {
	Name    string
	Image   image.Image
	Extent  geometry.Rect
	Visible bool
	Opacity float64
}

// VectorLayer is one detected polygon with its style.
type VectorLayer struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Geometry   geometry.Polygon `json:"geometry"`
	Style      Style            `json:"style"`
	ZOrder     int              `json:"z_order"`
	Attributes map[string]any   `json:"attributes,omitempty"`
}

// clone returns a deep copy safe to hand outside the registry lock.
func (v *VectorLayer) clone() VectorLayer {
	out := *v
	out.Geometry = v.Geometry.Clone()
	if v.Attributes != nil {
		out.Attributes = make(map[string]any, len(v.Attributes))
		for k, val := range v.Attributes {
			out.Attributes[k] = val
		}
	}
	return out
}

// Registry manages the raster and vector layers of one session.
type Registry struct {
	mu sync.RWMutex

	raster *RasterLayer

	// Vector layers indexed by ID, plus their IDs in ascending z-order
	layers map[string]*VectorLayer
	order  []string

	// Counters are never reset so IDs are not reused within a session
	nextID int
	nextZ  int

	defaultOpacity float64

	observers   map[int]Observer
	nextObserve int
}

// Option configures a Registry.
type Option func(*Registry)

// WithDefaultOpacity sets the fill opacity of newly added vector layers.
func WithDefaultOpacity(o float64) Option {
	return func(r *Registry) { r.defaultOpacity = colorutil.ClampUnit(o) }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		layers:         make(map[string]*VectorLayer),
		order:          make([]string, 0),
		defaultOpacity: DefaultOpacity,
		observers:      make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers an observer and returns a function that removes it.
func (r *Registry) Subscribe(o Observer) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextObserve
	r.nextObserve++
	r.observers[id] = o
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.observers, id)
		r.mu.Unlock()
	}
}

// notify delivers ev to every observer. Must be called without holding mu.
func (r *Registry) notify(ev Event) {
	r.mu.RLock()
	ids := make([]int, 0, len(r.observers))
	for id := range r.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	obs := make([]Observer, 0, len(ids))
	for _, id := range ids {
		obs = append(obs, r.observers[id])
	}
	r.mu.RUnlock()

	for _, o := range obs {
		o.LayerChanged(ev)
	}
}

// SetRaster replaces the base raster. Vector layers are untouched; callers
// that load a new scene clear them with ClearVectors.
func (r *Registry) SetRaster(name string, img image.Image, extent geometry.Rect) {
	r.mu.Lock()
	r.raster = &RasterLayer{
		Name:    name,
		Image:   img,
		Extent:  extent,
		Visible: true,
		Opacity: 1.0,
	}
	r.mu.Unlock()

	r.notify(Event{Kind: EventRasterReplaced, Style: Style{Visible: true, Opacity: 1.0}})
}

// Raster returns a copy of the base raster layer, if one is loaded.
func (r *Registry) Raster() (RasterLayer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.raster == nil {
		return RasterLayer{}, false
	}
	return *r.raster, true
}

// HasRaster reports whether a base image is loaded.
func (r *Registry) HasRaster() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.raster != nil
}

// UpdateRasterStyle applies the visibility and opacity parts of patch to the
// raster. Colour and fill do not apply to rasters and are ignored.
func (r *Registry) UpdateRasterStyle(patch StylePatch) bool {
	r.mu.Lock()
	if r.raster == nil || (patch.Visible == nil && patch.Opacity == nil) {
		r.mu.Unlock()
		return false
	}
	if patch.Visible != nil {
		r.raster.Visible = *patch.Visible
	}
	if patch.Opacity != nil {
		r.raster.Opacity = colorutil.ClampUnit(*patch.Opacity)
	}
	style := Style{Visible: r.raster.Visible, Opacity: r.raster.Opacity}
	r.mu.Unlock()

	r.notify(Event{Kind: EventRasterStyled, Style: style})
	return true
}

// AddVectorLayer appends a layer on top of the stack with default style and
// returns its ID.
func (r *Registry) AddVectorLayer(geom geometry.Polygon, color colorutil.RGB, name string) string {
	return r.AddVectorLayerWithAttributes(geom, color, name, nil)
}

// AddVectorLayerWithAttributes is AddVectorLayer carrying detection metadata.
func (r *Registry) AddVectorLayerWithAttributes(geom geometry.Polygon, color colorutil.RGB, name string, attrs map[string]any) string {
	r.mu.Lock()
	id := fmt.Sprintf("layer_%d", r.nextID)
	r.nextID++

	layer := &VectorLayer{
		ID:       id,
		Name:     name,
		Geometry: geom.Clone(),
		Style: Style{
			Visible: true,
			Color:   color,
			Opacity: r.defaultOpacity,
			Filled:  true,
		},
		ZOrder: r.nextZ,
	}
	r.nextZ++
	if len(attrs) > 0 {
		layer.Attributes = make(map[string]any, len(attrs))
		for k, v := range attrs {
			layer.Attributes[k] = v
		}
	}
	r.layers[id] = layer
	r.order = append(r.order, id)
	style := layer.Style
	r.mu.Unlock()

	r.notify(Event{Kind: EventLayerAdded, LayerID: id, Style: style})
	return id
}

// UpdateStyle merges patch into the layer's style. An unknown ID or an empty
// patch is a no-op and reports false; observers are not notified.
func (r *Registry) UpdateStyle(id string, patch StylePatch) bool {
	if patch.Empty() {
		return false
	}

	r.mu.Lock()
	layer, ok := r.layers[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	layer.Style = layer.Style.Apply(patch)
	style := layer.Style
	r.mu.Unlock()

	r.notify(Event{Kind: EventLayerStyled, LayerID: id, Style: style})
	return true
}

// RemoveVectorLayer deletes a single layer. Unknown IDs are ignored.
func (r *Registry) RemoveVectorLayer(id string) bool {
	r.mu.Lock()
	if _, ok := r.layers[id]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.layers, id)
	for i, lid := range r.order {
		if lid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.notify(Event{Kind: EventLayerRemoved, LayerID: id})
	return true
}

// ClearVectors removes every vector layer and keeps the raster.
func (r *Registry) ClearVectors() {
	r.mu.Lock()
	r.layers = make(map[string]*VectorLayer)
	r.order = r.order[:0]
	r.mu.Unlock()

	r.notify(Event{Kind: EventVectorsCleared})
}

// Layer returns a snapshot of the layer with the given ID.
func (r *Registry) Layer(id string) (VectorLayer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	layer, ok := r.layers[id]
	if !ok {
		return VectorLayer{}, false
	}
	return layer.clone(), true
}

// Vectors returns snapshots of all vector layers in ascending z-order, the
// order in which they are drawn.
func (r *Registry) Vectors() []VectorLayer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]VectorLayer, 0, len(r.order))
	for _, id := range r.order {
		if layer := r.layers[id]; layer != nil {
			result = append(result, layer.clone())
		}
	}
	return result
}

// IDs returns the vector layer IDs in ascending z-order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Len returns the number of vector layers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
