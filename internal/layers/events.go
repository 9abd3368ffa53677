package layers

// EventKind identifies a registry mutation.
type EventKind int

const (
	EventRasterReplaced EventKind = iota
	EventRasterStyled
	EventLayerAdded
	EventLayerStyled
	EventLayerRemoved
	EventVectorsCleared
)

func (k EventKind) String() string {
	switch k {
	case EventRasterReplaced:
		return "raster-replaced"
	case EventRasterStyled:
		return "raster-styled"
	case EventLayerAdded:
		return "layer-added"
	case EventLayerStyled:
		return "layer-styled"
	case EventLayerRemoved:
		return "layer-removed"
	case EventVectorsCleared:
		return "vectors-cleared"
	default:
		return "unknown"
	}
}

// Event describes one mutation. Style carries the full style after the change
// for add and style events.
type Event struct {
	Kind    EventKind
	LayerID string
	Style   Style
}

// AffectsRaster reports whether the event changes raster pixels on screen.
func (e Event) AffectsRaster() bool {
	return e.Kind == EventRasterReplaced || e.Kind == EventRasterStyled
}

// Observer is notified synchronously after every registry mutation.
type Observer interface {
	LayerChanged(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// LayerChanged implements Observer.
func (f ObserverFunc) LayerChanged(ev Event) { f(ev) }
