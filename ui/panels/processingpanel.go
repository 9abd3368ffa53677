package panels

import (
	"aero-vision/internal/app"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const maxLogLines = 200

// ProcessingPanel shows the progress of the running job.
type ProcessingPanel struct {
	session   *app.Session
	container fyne.CanvasObject

	progress   *widget.ProgressBar
	stageLabel *widget.Label
	etaLabel   *widget.Label
	logLabel   *widget.Label
	logScroll  *container.Scroll
	cancelBtn  *widget.Button

	log *logBuffer
}

// NewProcessingPanel creates the processing view.
func NewProcessingPanel(session *app.Session) *ProcessingPanel {
	pp := &ProcessingPanel{
		session: session,
		log:     newLogBuffer(maxLogLines),
	}

	pp.progress = widget.NewProgressBar()
	pp.progress.Max = 100
	pp.stageLabel = widget.NewLabel("Waiting...")
	pp.etaLabel = widget.NewLabel("")
	pp.logLabel = widget.NewLabel("")
	pp.logLabel.TextStyle = fyne.TextStyle{Monospace: true}
	pp.logScroll = container.NewVScroll(pp.logLabel)
	pp.logScroll.SetMinSize(fyne.NewSize(0, 180))
	pp.cancelBtn = widget.NewButton("Cancel", func() {
		pp.session.Cancel()
	})
	pp.cancelBtn.Importance = widget.DangerImportance

	pp.container = container.NewVBox(
		widget.NewCard("Processing", "", container.NewVBox(
			pp.progress,
			pp.stageLabel,
			pp.etaLabel,
		)),
		widget.NewCard("Log", "", pp.logScroll),
		pp.cancelBtn,
	)
	return pp
}

// Container returns the panel container.
func (pp *ProcessingPanel) Container() fyne.CanvasObject {
	return pp.container
}

// Reset clears the panel for a new run.
func (pp *ProcessingPanel) Reset() {
	pp.log.Reset()
	pp.logLabel.SetText("")
	pp.progress.SetValue(0)
	pp.stageLabel.SetText("Starting...")
	pp.etaLabel.SetText("")
}

// Update applies one progress event.
func (pp *ProcessingPanel) Update(p app.Progress) {
	pp.progress.SetValue(float64(p.Percent))
	pp.stageLabel.SetText(p.Stage)
	if p.Remaining > 0 {
		pp.etaLabel.SetText(app.FormatRemaining(p.Remaining))
	} else {
		pp.etaLabel.SetText("")
	}
	pp.log.Add(p.Line)
	pp.logLabel.SetText(pp.log.String())
	pp.logScroll.ScrollToBottom()
}

// Stage returns the stage label text.
func (pp *ProcessingPanel) Stage() string {
	return pp.stageLabel.Text
}

// Percent returns the progress bar value.
func (pp *ProcessingPanel) Percent() float64 {
	return pp.progress.Value
}

// LogText returns the visible log.
func (pp *ProcessingPanel) LogText() string {
	return pp.logLabel.Text
}
