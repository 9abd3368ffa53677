// Package app provides the session lifecycle: image loading, processing runs
// and the view state shown by the window.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aero-vision/internal/canvas"
	"aero-vision/internal/export"
	"aero-vision/internal/image"
	"aero-vision/internal/layers"
	"aero-vision/internal/pipeline"
	"aero-vision/pkg/colorutil"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoImageLoaded is returned when processing is requested before an
	// image is loaded. Callers may ignore it.
	ErrNoImageLoaded = errors.New("no image loaded")

	// ErrBusy is returned when the image is replaced during processing.
	ErrBusy = errors.New("processing in progress")

	// ErrUnknownLayer is returned by exports of a layer that does not exist.
	ErrUnknownLayer = errors.New("unknown layer")
)

// SessionState selects the view shown by the window.
type SessionState int

const (
	StateUpload SessionState = iota
	StateProcessing
	StateResults
)

func (s SessionState) String() string {
	switch s {
	case StateUpload:
		return "upload"
	case StateProcessing:
		return "processing"
	case StateResults:
		return "results"
	default:
		return "unknown"
	}
}

// EventType identifies session events.
type EventType int

const (
	EventImageLoaded  EventType = iota // data: *image.Raster
	EventStateChanged                  // data: SessionState
	EventProgress                      // data: Progress
	EventLayersAdded                   // data: []string layer ids in result order
	EventJobFailed                     // data: error
	EventJobCancelled                  // data: nil
	EventExported                      // data: string archive path
)

// EventListener receives the event payload.
type EventListener func(data any)

// Progress is the payload of EventProgress.
type Progress struct {
	Percent   int
	Stage     string
	Line      string        // formatted log line
	Remaining time.Duration // rough estimate, zero at 100%
}

// Dispatcher runs fn on the interaction context. Calls must run in the
// order they were dispatched.
type Dispatcher func(fn func())

// Inline runs fn on the calling goroutine.
func Inline(fn func()) { fn() }

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDispatcher sets how job events reach the interaction context.
func WithDispatcher(d Dispatcher) SessionOption {
	return func(s *Session) {
		if d != nil {
			s.dispatch = d
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(log logrus.FieldLogger) SessionOption {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock sets the time source used for log lines.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithWatch reloads the image when its file changes on disk.
func WithWatch(debounce time.Duration) SessionOption {
	return func(s *Session) {
		s.watchEnabled = true
		s.watchDebounce = debounce
	}
}

// Session owns the view state machine
//
//	Upload --image loaded--> Upload(ready) --start--> Processing
//	Processing --succeeded--> Results --new process--> Upload(ready)
//	Processing --failed or cancelled--> Upload(ready)
//
// and is the only writer of vector layers produced by processing runs.
type Session struct {
	mu      sync.Mutex
	state   SessionState
	ready   bool
	raster  *image.Raster
	lastErr error
	gen     int

	engine   *canvas.Engine
	registry *layers.Registry
	job      *pipeline.Job
	dispatch Dispatcher
	now      func() time.Time
	log      logrus.FieldLogger

	watchEnabled  bool
	watchDebounce time.Duration
	watcher       *RasterWatcher

	lmu       sync.RWMutex
	listeners map[EventType][]EventListener

	runs sync.WaitGroup
}

// NewSession creates a session around an engine and a job.
func NewSession(engine *canvas.Engine, job *pipeline.Job, opts ...SessionOption) *Session {
	s := &Session{
		engine:    engine,
		registry:  engine.Registry(),
		job:       job,
		dispatch:  Inline,
		now:       time.Now,
		log:       logrus.StandardLogger(),
		listeners: make(map[EventType][]EventListener),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.WithField("component", "session")
	return s
}

// On registers a listener for the specified event type.
func (s *Session) On(event EventType, listener EventListener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// emit triggers all listeners for the specified event type.
func (s *Session) emit(event EventType, data any) {
	s.lmu.RLock()
	listeners := s.listeners[event]
	s.lmu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// State returns the current view state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether an image is loaded and processing may start.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// LastError returns the error of the most recent failed run, cleared by the
// next start or image load.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Raster returns the loaded image, or nil.
func (s *Session) Raster() *image.Raster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raster
}

// Engine returns the canvas engine.
func (s *Session) Engine() *canvas.Engine { return s.engine }

// Registry returns the layer registry.
func (s *Session) Registry() *layers.Registry { return s.registry }

// Job returns the processing job.
func (s *Session) Job() *pipeline.Job { return s.job }

// LoadImage decodes the file at path and makes it the base image. On error
// the session is left unchanged.
func (s *Session) LoadImage(path string) error {
	r, err := image.Load(path)
	if err != nil {
		s.log.WithError(err).WithField("path", path).Warn("Failed to load image")
		return fmt.Errorf("failed to load image: %w", err)
	}
	return s.SetImage(r)
}

// SetImage makes r the base image. Every vector layer is cleared, the view is
// fitted to the image and detection naming restarts at 1.
func (s *Session) SetImage(r *image.Raster) error {
	if r == nil || r.Image == nil {
		return ErrNoImageLoaded
	}
	s.mu.Lock()
	if s.state == StateProcessing {
		s.mu.Unlock()
		return ErrBusy
	}
	s.mu.Unlock()

	if err := s.engine.SetBaseImage(r.Image, r.Extent()); err != nil {
		return err
	}
	s.job.ResetNaming()

	s.mu.Lock()
	s.raster = r
	s.state = StateUpload
	s.ready = true
	s.lastErr = nil
	s.mu.Unlock()

	s.watch(r.Path)
	s.log.WithFields(logrus.Fields{
		"path":   r.Path,
		"width":  r.Width(),
		"height": r.Height(),
	}).Info("Image loaded")
	s.emit(EventImageLoaded, r)
	s.emit(EventStateChanged, StateUpload)
	return nil
}

// Reload decodes the current image file again. Reloads during processing
// are refused with ErrBusy.
func (s *Session) Reload() error {
	s.mu.Lock()
	r, state := s.raster, s.state
	s.mu.Unlock()

	if r == nil || r.Path == "" {
		return ErrNoImageLoaded
	}
	if state == StateProcessing {
		s.log.WithField("path", r.Path).Info("Image changed during processing; not reloading")
		return ErrBusy
	}
	return s.LoadImage(r.Path)
}

// StartProcessing runs the job over the loaded image. It returns
// ErrNoImageLoaded before an image is loaded and pipeline.ErrAlreadyRunning
// during processing. Results are added to the existing layers.
func (s *Session) StartProcessing(ctx context.Context, params pipeline.Params) error {
	s.mu.Lock()
	if !s.ready || s.raster == nil {
		s.mu.Unlock()
		s.log.Debug("Start ignored: no image loaded")
		return ErrNoImageLoaded
	}
	if s.state == StateProcessing {
		s.mu.Unlock()
		return pipeline.ErrAlreadyRunning
	}
	img := s.raster.Image
	s.mu.Unlock()

	events, err := s.job.Start(ctx, img, params)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = StateProcessing
	s.lastErr = nil
	s.mu.Unlock()

	s.runs.Add(1)
	s.emit(EventStateChanged, StateProcessing)
	go s.consume(gen, events)
	return nil
}

// consume hands every job event to the interaction context in order.
func (s *Session) consume(gen int, events <-chan pipeline.Event) {
	for ev := range events {
		ev := ev
		s.dispatch(func() { s.handle(gen, ev) })
	}
}

func (s *Session) handle(gen int, ev pipeline.Event) {
	if ev.Kind.Terminal() {
		defer s.runs.Done()
	}

	s.mu.Lock()
	if gen != s.gen || s.state != StateProcessing {
		// Stale run, or cancelled by the user
		s.mu.Unlock()
		return
	}
	switch ev.Kind {
	case pipeline.EventSucceeded:
		s.state = StateResults
	case pipeline.EventFailed:
		s.state = StateUpload
		s.lastErr = ev.Err
	case pipeline.EventCancelled:
		s.state = StateUpload
	}
	s.mu.Unlock()

	log := s.log.WithField("job_id", ev.RunID)
	switch ev.Kind {
	case pipeline.EventProgress:
		s.emit(EventProgress, Progress{
			Percent:   ev.Percent,
			Stage:     ev.Stage,
			Line:      FormatLogLine(s.now(), ev.Stage),
			Remaining: EstimatedRemaining(ev.Percent),
		})

	case pipeline.EventSucceeded:
		ids := make([]string, 0, len(ev.Result))
		for _, it := range ev.Result {
			ids = append(ids, s.registry.AddVectorLayerWithAttributes(it.Geometry, it.Color, it.Name, it.Attributes))
		}
		log.WithField("layers", len(ids)).Info("Detection layers added")
		s.emit(EventLayersAdded, ids)
		s.emit(EventStateChanged, StateResults)

	case pipeline.EventFailed:
		log.WithError(ev.Err).Warn("Processing failed")
		s.emit(EventJobFailed, ev.Err)
		s.emit(EventStateChanged, StateUpload)

	case pipeline.EventCancelled:
		log.Info("Processing cancelled")
		s.emit(EventJobCancelled, nil)
		s.emit(EventStateChanged, StateUpload)
	}
}

// Cancel stops processing and returns to Upload(ready). It reports false
// outside Processing and when the run has already finished; that run's
// outcome is still delivered.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.state != StateProcessing || !s.job.Cancel() {
		s.mu.Unlock()
		return false
	}
	s.state = StateUpload
	s.mu.Unlock()

	s.emit(EventJobCancelled, nil)
	s.emit(EventStateChanged, StateUpload)
	return true
}

// NewProcess leaves Results for Upload(ready), keeping the image and every
// layer. It reports false outside Results.
func (s *Session) NewProcess() bool {
	s.mu.Lock()
	if s.state != StateResults {
		s.mu.Unlock()
		return false
	}
	s.state = StateUpload
	s.mu.Unlock()

	s.emit(EventStateChanged, StateUpload)
	return true
}

// Wait blocks until every started run has delivered its terminal event to
// the interaction context.
func (s *Session) Wait() {
	s.runs.Wait()
}

// SetLayerVisible shows or hides a layer. Unknown ids are ignored.
func (s *Session) SetLayerVisible(id string, visible bool) bool {
	return s.registry.UpdateStyle(id, layers.SetVisible(visible))
}

// SetLayerOpacity sets a layer's fill opacity. Unknown ids are ignored.
func (s *Session) SetLayerOpacity(id string, opacity float64) bool {
	return s.registry.UpdateStyle(id, layers.SetOpacity(opacity))
}

// SetLayerFilled switches between filled and outline-only drawing.
func (s *Session) SetLayerFilled(id string, filled bool) bool {
	return s.registry.UpdateStyle(id, layers.SetFilled(filled))
}

// SetLayerColor applies a colour picker result; nil means nothing was picked.
func (s *Session) SetLayerColor(id string, c *colorutil.RGB) bool {
	if c == nil {
		return false
	}
	return s.registry.UpdateStyle(id, layers.SetColor(*c))
}

// RemoveLayer deletes a vector layer.
func (s *Session) RemoveLayer(id string) bool {
	return s.registry.RemoveVectorLayer(id)
}

// SetBaseVisible shows or hides the base image.
func (s *Session) SetBaseVisible(visible bool) bool {
	return s.registry.UpdateRasterStyle(layers.SetVisible(visible))
}

// SetBaseOpacity sets the base image opacity.
func (s *Session) SetBaseOpacity(opacity float64) bool {
	return s.registry.UpdateRasterStyle(layers.SetOpacity(opacity))
}

// ExportLayer writes one layer to a zip archive at path.
func (s *Session) ExportLayer(id, path string) error {
	l, ok := s.registry.Layer(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, id)
	}
	if err := export.WriteLayer(path, s.imagePath(), l); err != nil {
		s.log.WithError(err).WithField("layer_id", id).Warn("Export failed")
		return err
	}
	s.log.WithFields(logrus.Fields{"layer_id": id, "path": path}).Info("Layer exported")
	s.emit(EventExported, path)
	return nil
}

// ExportAll writes every vector layer into one archive at path.
func (s *Session) ExportAll(path string) error {
	if err := export.WriteLayers(path, s.imagePath(), s.registry.Vectors()); err != nil {
		return err
	}
	s.log.WithField("path", path).Info("Layers exported")
	s.emit(EventExported, path)
	return nil
}

func (s *Session) imagePath() string {
	if r := s.Raster(); r != nil {
		return r.Path
	}
	return ""
}

// watch follows path when watching is enabled. A watcher already on path is
// kept so reloads triggered by it do not restart it.
func (s *Session) watch(path string) {
	if !s.watchEnabled {
		return
	}
	s.mu.Lock()
	old := s.watcher
	s.mu.Unlock()
	if old != nil && path != "" && old.Watches(path) {
		return
	}
	if old != nil {
		old.Stop()
	}
	if path == "" {
		s.mu.Lock()
		s.watcher = nil
		s.mu.Unlock()
		return
	}

	w, err := NewRasterWatcher(path, s.watchDebounce, s.log)
	if err != nil {
		s.log.WithError(err).WithField("path", path).Warn("Cannot watch image")
		return
	}
	w.OnChange(func(string) {
		s.dispatch(func() {
			if err := s.Reload(); err != nil && !errors.Is(err, ErrBusy) {
				s.log.WithError(err).Warn("Reload failed")
			}
		})
	})
	w.Start()

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
}

// Close cancels processing and stops the file watcher.
func (s *Session) Close() {
	s.Cancel()
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}
