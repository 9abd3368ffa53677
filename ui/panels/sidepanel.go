// Package panels provides the side panel views, one per session state.
package panels

import (
	"aero-vision/internal/app"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
)

// SidePanel shows the view for the session's current state.
type SidePanel struct {
	session   *app.Session
	container *fyne.Container

	upload     *UploadPanel
	processing *ProcessingPanel
	results    *LayersPanel

	shown app.SessionState
}

// NewSidePanel creates the side panel and registers for session events.
func NewSidePanel(session *app.Session) *SidePanel {
	sp := &SidePanel{session: session}

	sp.upload = NewUploadPanel(session)
	sp.processing = NewProcessingPanel(session)
	sp.results = NewLayersPanel(session)

	sp.container = container.NewStack(
		sp.upload.Container(),
		sp.processing.Container(),
		sp.results.Container(),
	)
	sp.show(session.State())

	session.On(app.EventStateChanged, func(data any) {
		if state, ok := data.(app.SessionState); ok {
			sp.show(state)
		}
	})
	session.On(app.EventProgress, func(data any) {
		if p, ok := data.(app.Progress); ok {
			sp.processing.Update(p)
		}
	})
	session.On(app.EventImageLoaded, func(any) {
		sp.upload.Refresh()
	})
	session.On(app.EventJobFailed, func(data any) {
		if err, ok := data.(error); ok {
			sp.upload.ShowError(err)
		}
	})
	return sp
}

// Container returns the panel container.
func (sp *SidePanel) Container() fyne.CanvasObject {
	return sp.container
}

// SetWindow sets the parent window for dialogs.
func (sp *SidePanel) SetWindow(w fyne.Window) {
	sp.upload.SetWindow(w)
	sp.results.SetWindow(w)
}

// Shown returns the state whose view is visible.
func (sp *SidePanel) Shown() app.SessionState {
	return sp.shown
}

// Select forwards a map selection to the results view.
func (sp *SidePanel) Select(id string) {
	sp.results.Select(id)
}

// OpenImage shows the image picker.
func (sp *SidePanel) OpenImage() {
	sp.upload.onBrowse()
}

// ExportAll asks for an archive path and exports every layer.
func (sp *SidePanel) ExportAll() {
	sp.results.onExportAll()
}

// Close detaches the panels from the session.
func (sp *SidePanel) Close() {
	sp.results.Close()
}

func (sp *SidePanel) show(state app.SessionState) {
	sp.upload.Container().Hide()
	sp.processing.Container().Hide()
	sp.results.Container().Hide()

	switch state {
	case app.StateProcessing:
		if sp.shown != app.StateProcessing {
			sp.processing.Reset()
		}
		sp.processing.Container().Show()
	case app.StateResults:
		sp.results.Container().Show()
	default:
		sp.upload.Refresh()
		sp.upload.Container().Show()
	}
	sp.shown = state
}
