// Package mainwindow provides the main application window.
package mainwindow

import (
	"fmt"
	"path/filepath"

	"aero-vision/internal/app"
	avimage "aero-vision/internal/image"
	"aero-vision/internal/version"
	"aero-vision/ui/canvas"
	"aero-vision/ui/panels"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// MainWindow is the primary application window.
type MainWindow struct {
	fyne.Window
	session   *app.Session
	canvas    *canvas.MapCanvas
	sidePanel *panels.SidePanel
	statusBar *widget.Label
	zoomLabel *widget.Label

	// Menu items that need state tracking
	labelsItem *fyne.MenuItem
	showLabels bool
}

// New creates the main window around a session and its canvas widget.
func New(fyneApp fyne.App, session *app.Session, mc *canvas.MapCanvas) *MainWindow {
	win := fyneApp.NewWindow(version.Name)

	mw := &MainWindow{
		Window:     win,
		session:    session,
		canvas:     mc,
		showLabels: true,
	}

	mw.setupUI()
	mw.setupMenus()
	mw.setupEventHandlers()

	mw.Resize(fyne.NewSize(1280, 800))
	return mw
}

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	mw.sidePanel = panels.NewSidePanel(mw.session)
	mw.sidePanel.SetWindow(mw.Window)

	mw.statusBar = widget.NewLabel("Load an image to begin")
	mw.zoomLabel = widget.NewLabel("")

	// Zoom controls float over the top-right corner of the map
	mapArea := container.NewStack(
		mw.canvas,
		container.NewBorder(nil, nil, nil,
			container.NewVBox(mw.createZoomControls()),
		),
	)

	split := container.NewHSplit(mw.sidePanel.Container(), mapArea)
	split.SetOffset(0.28)

	content := container.NewBorder(
		nil,
		container.NewBorder(nil, nil, nil, mw.zoomLabel, container.NewPadded(mw.statusBar)),
		nil,
		nil,
		split,
	)
	mw.SetContent(content)
}

// createZoomControls creates the map's zoom in, zoom out and fit buttons.
func (mw *MainWindow) createZoomControls() fyne.CanvasObject {
	zoomInBtn := widget.NewButtonWithIcon("", theme.ZoomInIcon(), mw.onZoomIn)
	zoomOutBtn := widget.NewButtonWithIcon("", theme.ZoomOutIcon(), mw.onZoomOut)
	fitBtn := widget.NewButtonWithIcon("", theme.ZoomFitIcon(), mw.onFit)
	return container.NewPadded(container.NewVBox(zoomInBtn, zoomOutBtn, fitBtn))
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Image...", mw.sidePanel.OpenImage),
		fyne.NewMenuItem("Reload Image", mw.onReload),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Export All Layers...", mw.sidePanel.ExportAll),
	)

	mw.labelsItem = fyne.NewMenuItem("Show Labels", mw.onToggleLabels)
	mw.labelsItem.Checked = mw.showLabels

	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", mw.onZoomIn),
		fyne.NewMenuItem("Zoom Out", mw.onZoomOut),
		fyne.NewMenuItem("Fit to Window", mw.onFit),
		fyne.NewMenuItem("Zoom to Detections", mw.onFitLayers),
		fyne.NewMenuItemSeparator(),
		mw.labelsItem,
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, viewMenu, helpMenu))

	mw.Canvas().SetOnTypedRune(func(r rune) {
		switch r {
		case '+', '=':
			mw.onZoomIn()
		case '-':
			mw.onZoomOut()
		case '0':
			mw.onFit()
		}
	})
}

// setupEventHandlers registers for session and canvas events.
func (mw *MainWindow) setupEventHandlers() {
	mw.canvas.OnSelect(mw.sidePanel.Select)
	mw.canvas.OnZoomChange(func(scale float64) {
		mw.zoomLabel.SetText(fmt.Sprintf("%.0f%%", scale*100))
	})

	mw.session.On(app.EventImageLoaded, func(data any) {
		if r, ok := data.(*avimage.Raster); ok {
			mw.SetTitle(version.Name + " - " + r.Name())
			mw.updateStatus(fmt.Sprintf("Loaded %s (%d x %d)", r.Name(), r.Width(), r.Height()))
		}
	})

	mw.session.On(app.EventStateChanged, func(data any) {
		switch data {
		case app.StateProcessing:
			mw.updateStatus("Processing...")
		case app.StateResults:
			mw.updateStatus(fmt.Sprintf("%d layers", mw.session.Registry().Len()))
		}
	})

	mw.session.On(app.EventJobFailed, func(data any) {
		if err, ok := data.(error); ok {
			mw.updateStatus("Processing failed")
			dialog.ShowError(err, mw.Window)
		}
	})

	mw.session.On(app.EventJobCancelled, func(any) {
		mw.updateStatus("Processing cancelled")
	})

	mw.session.On(app.EventExported, func(data any) {
		if path, ok := data.(string); ok {
			mw.updateStatus("Exported " + filepath.Base(path))
		}
	})
}

// updateStatus updates the status bar text.
func (mw *MainWindow) updateStatus(text string) {
	mw.statusBar.SetText(text)
}

// OpenImage loads path at startup; failures are shown in the status bar.
func (mw *MainWindow) OpenImage(path string) {
	if err := mw.session.LoadImage(path); err != nil {
		mw.updateStatus("Failed to load " + filepath.Base(path) + ": " + err.Error())
	}
}

// Close releases the panels.
func (mw *MainWindow) Close() {
	mw.sidePanel.Close()
	mw.Window.Close()
}

// Menu action handlers

func (mw *MainWindow) onZoomIn() {
	mw.canvas.ZoomIn()
}

func (mw *MainWindow) onZoomOut() {
	mw.canvas.ZoomOut()
}

func (mw *MainWindow) onFit() {
	mw.canvas.Fit()
}

func (mw *MainWindow) onFitLayers() {
	if !mw.canvas.FitLayers() {
		mw.updateStatus("No visible detections")
	}
}

func (mw *MainWindow) onReload() {
	if err := mw.session.Reload(); err != nil {
		dialog.ShowError(err, mw.Window)
	}
}

func (mw *MainWindow) onToggleLabels() {
	mw.showLabels = !mw.showLabels
	mw.labelsItem.Checked = mw.showLabels
	mw.canvas.SetShowLabels(mw.showLabels)
	mw.MainMenu().Refresh()
}

func (mw *MainWindow) onAbout() {
	info := version.Get()
	dialog.ShowInformation("About "+version.Name,
		fmt.Sprintf("%s v%s\n\n"+
			"Aerial imagery detection and layer review.\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			version.Name, info.Version, info.BuildTime, info.GitCommit),
		mw.Window)
}
