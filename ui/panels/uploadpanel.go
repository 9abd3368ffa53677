package panels

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"aero-vision/internal/app"
	avimage "aero-vision/internal/image"
	"aero-vision/internal/pipeline"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
)

// UploadPanel selects an image and starts a processing run.
type UploadPanel struct {
	session   *app.Session
	window    fyne.Window
	container fyne.CanvasObject

	fileLabel  *widget.Label
	sizeLabel  *widget.Label
	errorLabel *widget.Label
	fullScene  *widget.Check
	startBtn   *widget.Button

	lastDir string
}

// NewUploadPanel creates the upload view.
func NewUploadPanel(session *app.Session) *UploadPanel {
	up := &UploadPanel{session: session}

	up.fileLabel = widget.NewLabel("No image loaded")
	up.fileLabel.Wrapping = fyne.TextWrapWord
	up.sizeLabel = widget.NewLabel("")
	up.errorLabel = widget.NewLabel("")
	up.errorLabel.Wrapping = fyne.TextWrapWord
	up.errorLabel.Importance = widget.DangerImportance

	up.fullScene = widget.NewCheck("Use full scene", nil)
	up.startBtn = widget.NewButton("Start Processing", up.onStart)
	up.startBtn.Importance = widget.HighImportance

	browse := widget.NewButton("Select Image...", up.onBrowse)

	up.container = container.NewVBox(
		widget.NewCard("Imagery", avimage.FileFilter(), container.NewVBox(
			browse,
			up.fileLabel,
			up.sizeLabel,
		)),
		widget.NewCard("Detection", "", container.NewVBox(
			up.fullScene,
			up.startBtn,
			up.errorLabel,
		)),
	)
	up.Refresh()
	return up
}

// Container returns the panel container.
func (up *UploadPanel) Container() fyne.CanvasObject {
	return up.container
}

// SetWindow sets the parent window for dialogs.
func (up *UploadPanel) SetWindow(w fyne.Window) {
	up.window = w
}

// Refresh syncs labels and the start button with the session.
func (up *UploadPanel) Refresh() {
	if r := up.session.Raster(); r != nil {
		up.fileLabel.SetText(r.Name())
		up.sizeLabel.SetText(fmt.Sprintf("%d x %d px", r.Width(), r.Height()))
	} else {
		up.fileLabel.SetText("No image loaded")
		up.sizeLabel.SetText("")
	}

	if err := up.session.LastError(); err != nil {
		up.errorLabel.SetText(describeError(err))
	} else {
		up.errorLabel.SetText("")
	}

	if up.session.Ready() && up.session.State() != app.StateProcessing {
		up.startBtn.Enable()
	} else {
		up.startBtn.Disable()
	}
}

// ShowError displays err under the start button.
func (up *UploadPanel) ShowError(err error) {
	up.errorLabel.SetText(describeError(err))
}

func describeError(err error) string {
	var jobErr *pipeline.JobError
	if errors.As(err, &jobErr) {
		return "Processing failed: " + jobErr.Reason
	}
	return err.Error()
}

func (up *UploadPanel) onStart() {
	params := pipeline.Params{UseFullScene: up.fullScene.Checked}
	if err := up.session.StartProcessing(context.Background(), params); err != nil {
		if errors.Is(err, app.ErrNoImageLoaded) {
			return
		}
		up.ShowError(err)
	}
}

func (up *UploadPanel) onBrowse() {
	if up.window == nil {
		return
	}
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		path := reader.URI().Path()
		up.lastDir = filepath.Dir(path)
		if err := up.session.LoadImage(path); err != nil {
			dialog.ShowError(err, up.window)
		}
		up.Refresh()
	}, up.window)
	fd.SetFilter(storage.NewExtensionFileFilter(avimage.SupportedFormats()))
	if up.lastDir != "" {
		if loc, err := storage.ListerForURI(storage.NewFileURI(up.lastDir)); err == nil {
			fd.SetLocation(loc)
		}
	}
	fd.Show()
}
