package panels

import (
	"image/color"
	"strings"

	"aero-vision/internal/app"
	"aero-vision/internal/export"
	"aero-vision/internal/layers"
	"aero-vision/pkg/colorutil"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// LayersPanel is the results view: the layer stack with per-layer style
// controls and export.
type LayersPanel struct {
	session   *app.Session
	window    fyne.Window
	container fyne.CanvasObject

	baseVisible *widget.Check
	baseOpacity *widget.Slider
	list        *fyne.Container
	selected    *widget.Label

	swatches    map[string]*fynecanvas.Rectangle
	unsubscribe func()
}

// NewLayersPanel creates the results view and follows the session's registry.
func NewLayersPanel(session *app.Session) *LayersPanel {
	lp := &LayersPanel{
		session:  session,
		swatches: make(map[string]*fynecanvas.Rectangle),
	}

	lp.baseVisible = widget.NewCheck("", nil)
	lp.baseOpacity = widget.NewSlider(0, sliderMax)
	baseRow := container.NewBorder(nil, nil,
		container.NewHBox(lp.baseVisible, widget.NewLabel(layersBaseName)),
		nil, lp.baseOpacity)

	lp.list = container.NewVBox()
	lp.selected = widget.NewLabel("")

	newBtn := widget.NewButtonWithIcon("New Process", theme.MediaReplayIcon(), func() {
		lp.session.NewProcess()
	})
	exportAllBtn := widget.NewButtonWithIcon("Export All...", theme.DocumentSaveIcon(), lp.onExportAll)

	lp.container = container.NewBorder(
		widget.NewCard("Layers", "", container.NewVBox(baseRow, widget.NewSeparator())),
		container.NewVBox(lp.selected, container.NewGridWithColumns(2, newBtn, exportAllBtn)),
		nil, nil,
		container.NewVScroll(lp.list),
	)

	lp.Rebuild()
	lp.baseVisible.OnChanged = func(v bool) { lp.session.SetBaseVisible(v) }
	lp.baseOpacity.OnChanged = func(v float64) { lp.session.SetBaseOpacity(sliderToOpacity(v)) }
	lp.unsubscribe = session.Registry().Subscribe(layers.ObserverFunc(lp.layerChanged))
	return lp
}

const layersBaseName = "Base Imagery"

// Container returns the panel container.
func (lp *LayersPanel) Container() fyne.CanvasObject {
	return lp.container
}

// SetWindow sets the parent window for dialogs.
func (lp *LayersPanel) SetWindow(w fyne.Window) {
	lp.window = w
}

// Close stops following the registry.
func (lp *LayersPanel) Close() {
	if lp.unsubscribe != nil {
		lp.unsubscribe()
		lp.unsubscribe = nil
	}
}

// Select shows which layer was clicked on the map.
func (lp *LayersPanel) Select(id string) {
	l, ok := lp.session.Registry().Layer(id)
	if !ok {
		lp.selected.SetText("")
		return
	}
	var b strings.Builder
	b.WriteString("Selected: " + l.Name)
	if label, ok := l.Attributes["label"].(string); ok && label != "" {
		b.WriteString(" (" + label + ")")
	}
	lp.selected.SetText(b.String())
}

// Rows returns the number of vector layer rows shown.
func (lp *LayersPanel) Rows() int {
	return len(lp.list.Objects)
}

func (lp *LayersPanel) layerChanged(ev layers.Event) {
	switch ev.Kind {
	case layers.EventLayerStyled:
		if sw, ok := lp.swatches[ev.LayerID]; ok {
			sw.FillColor = ev.Style.Color.Opaque()
			sw.Refresh()
		}
	case layers.EventRasterStyled:
	default:
		lp.Rebuild()
	}
}

// Rebuild recreates the layer rows from the registry, topmost first.
func (lp *LayersPanel) Rebuild() {
	reg := lp.session.Registry()
	if r, ok := reg.Raster(); ok {
		onVisible, onOpacity := lp.baseVisible.OnChanged, lp.baseOpacity.OnChanged
		lp.baseVisible.OnChanged, lp.baseOpacity.OnChanged = nil, nil
		lp.baseVisible.SetChecked(r.Visible)
		lp.baseOpacity.SetValue(opacityToSlider(r.Opacity))
		lp.baseVisible.OnChanged, lp.baseOpacity.OnChanged = onVisible, onOpacity
	}

	vectors := reg.Vectors()
	lp.swatches = make(map[string]*fynecanvas.Rectangle, len(vectors))
	rows := make([]fyne.CanvasObject, 0, len(vectors))
	for i := len(vectors) - 1; i >= 0; i-- {
		rows = append(rows, lp.layerRow(vectors[i]))
	}
	lp.list.Objects = rows
	lp.list.Refresh()
}

func (lp *LayersPanel) layerRow(l layers.VectorLayer) fyne.CanvasObject {
	id := l.ID

	visible := widget.NewCheck("", nil)
	visible.SetChecked(l.Style.Visible)
	visible.OnChanged = func(v bool) { lp.session.SetLayerVisible(id, v) }

	swatch := fynecanvas.NewRectangle(l.Style.Color.Opaque())
	swatch.SetMinSize(fyne.NewSize(16, 16))
	swatch.StrokeColor = color.White
	swatch.StrokeWidth = 1
	lp.swatches[id] = swatch
	colorBtn := widget.NewButtonWithIcon("", theme.ColorPaletteIcon(), func() { lp.pickColor(id, l.Name) })

	opacity := widget.NewSlider(0, sliderMax)
	opacity.SetValue(opacityToSlider(l.Style.Opacity))
	opacity.OnChanged = func(v float64) { lp.session.SetLayerOpacity(id, sliderToOpacity(v)) }

	filled := widget.NewCheck("Fill", nil)
	filled.SetChecked(l.Style.Filled)
	filled.OnChanged = func(v bool) { lp.session.SetLayerFilled(id, v) }

	exportBtn := widget.NewButtonWithIcon("", theme.DocumentSaveIcon(), func() { lp.onExport(l) })
	deleteBtn := widget.NewButtonWithIcon("", theme.DeleteIcon(), func() { lp.onDelete(id, l.Name) })

	header := container.NewBorder(nil, nil,
		container.NewHBox(visible, container.NewCenter(swatch), widget.NewLabel(l.Name)),
		container.NewHBox(colorBtn, exportBtn, deleteBtn))
	return container.NewVBox(
		header,
		container.NewBorder(nil, nil, filled, nil, opacity),
		widget.NewSeparator(),
	)
}

func (lp *LayersPanel) pickColor(id, name string) {
	if lp.window == nil {
		return
	}
	picker := dialog.NewColorPicker("Layer Colour", name, func(c color.Color) {
		rgb := colorutil.FromColor(c)
		lp.session.SetLayerColor(id, &rgb)
	}, lp.window)
	picker.Advanced = true
	picker.Show()
}

func (lp *LayersPanel) onDelete(id, name string) {
	if lp.window == nil {
		lp.session.RemoveLayer(id)
		return
	}
	dialog.ShowConfirm("Delete Layer", "Delete "+name+"?", func(ok bool) {
		if ok {
			lp.session.RemoveLayer(id)
		}
	}, lp.window)
}

func (lp *LayersPanel) onExport(l layers.VectorLayer) {
	lp.saveArchive(export.DefaultFileName(l), func(path string) error {
		return lp.session.ExportLayer(l.ID, path)
	})
}

func (lp *LayersPanel) onExportAll() {
	lp.saveArchive("detections.zip", lp.session.ExportAll)
}

// saveArchive asks for a target path and writes an archive there.
func (lp *LayersPanel) saveArchive(name string, write func(path string) error) {
	if lp.window == nil {
		return
	}
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := writer.URI().Path()
		if !strings.HasSuffix(strings.ToLower(path), ".zip") {
			path += ".zip"
		}
		if err := write(path); err != nil {
			dialog.ShowError(err, lp.window)
			return
		}
		dialog.ShowInformation("Export", "Saved "+path, lp.window)
	}, lp.window)
	fd.SetFileName(name)
	fd.Show()
}
