// Package pipeline runs detection off the interaction thread. A Job runs at
// most one detector pass at a time and reports each run as an ordered
// stream of progress events ending in exactly one terminal event.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"aero-vision/pkg/colorutil"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Job.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// EventKind distinguishes progress from terminal events.
type EventKind int

const (
	EventProgress EventKind = iota
	EventSucceeded
	EventFailed
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the event ends the stream.
func (k EventKind) Terminal() bool { return k != EventProgress }

// Event is delivered on the channel returned by Start.
type Event struct {
	RunID   string
	Kind    EventKind
	Percent int
	Stage   string
	Result  []Item // EventSucceeded only
	Err     error  // EventFailed only, always a *JobError
}

// Status is a point-in-time view of the job.
type Status struct {
	RunID       string
	State       State
	Progress    int
	LastMessage string
	Result      []Item
	Err         error
}

// Run describes a started run for recorders.
type Run struct {
	ID        string
	Detector  string
	Params    Params
	StartedAt time.Time
}

// Outcome describes a finished run for recorders.
type Outcome struct {
	ID         string
	State      State
	Progress   int
	LastStage  string
	Layers     int
	Err        string
	FinishedAt time.Time
}

// Recorder persists run metadata. Failures are logged and never affect the
// run.
type Recorder interface {
	RunStarted(ctx context.Context, run Run) error
	RunFinished(ctx context.Context, out Outcome) error
}

// Option configures a Job.
type Option func(*Job)

// WithLogger sets the job logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(j *Job) {
		if log != nil {
			j.log = log
		}
	}
}

// WithTimeout bounds every run. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(j *Job) { j.timeout = d }
}

// WithPalette sets the colours cycled over result items.
func WithPalette(p []colorutil.RGB) Option {
	return func(j *Job) {
		if len(p) > 0 {
			j.palette = append([]colorutil.RGB(nil), p...)
		}
	}
}

// WithRecorder records every run.
func WithRecorder(r Recorder) Option {
	return func(j *Job) { j.recorder = r }
}

// Job owns the background side of a session.
type Job struct {
	mu sync.Mutex

	detector Detector
	timeout  time.Duration
	palette  []colorutil.RGB
	recorder Recorder
	log      logrus.FieldLogger

	state    State
	runID    string
	progress int
	message  string
	result   []Item
	err      error
	cancel   context.CancelFunc
	mailbox  *mailbox

	// Numbering of default names, continued across runs
	seq int

	// Detector goroutines, including their final recording
	workers sync.WaitGroup
}

// NewJob creates an idle job around detector.
func NewJob(detector Detector, opts ...Option) *Job {
	j := &Job{
		detector: detector,
		palette:  colorutil.DefaultPalette,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.log = j.log.WithField("component", "pipeline")
	return j
}

// SetDetector swaps the detector used by the next run.
func (j *Job) SetDetector(d Detector) {
	j.mu.Lock()
	j.detector = d
	j.mu.Unlock()
}

// ResetNaming restarts default names at "AI Detection 1".
func (j *Job) ResetNaming() {
	j.mu.Lock()
	j.seq = 0
	j.mu.Unlock()
}

// Status returns the current job state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Status{
		RunID:       j.runID,
		State:       j.state,
		Progress:    j.progress,
		LastMessage: j.message,
		Result:      j.result,
		Err:         j.err,
	}
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Start begins a run over img. It returns ErrAlreadyRunning while another
// run is in progress. The returned channel yields progress events in order
// followed by exactly one terminal event, then closes.
func (j *Job) Start(ctx context.Context, img image.Image, params Params) (<-chan Event, error) {
	j.mu.Lock()
	if j.state == StateRunning {
		j.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	if j.detector == nil {
		j.mu.Unlock()
		return nil, ErrNoDetector
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if j.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, j.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	runID := ulid.Make().String()
	mb := newMailbox()
	j.state = StateRunning
	j.runID = runID
	j.progress = 0
	j.message = ""
	j.result = nil
	j.err = nil
	j.cancel = cancel
	j.mailbox = mb
	detector := j.detector
	j.mu.Unlock()

	out := make(chan Event, 16)
	go mb.forward(out)

	run := Run{ID: runID, Detector: detector.Name(), Params: params, StartedAt: time.Now()}
	j.log.WithFields(logrus.Fields{
		"job_id":         runID,
		"detector":       run.Detector,
		"use_full_scene": params.UseFullScene,
	}).Info("Job started")
	j.record(func(r Recorder) error { return r.RunStarted(context.Background(), run) })

	j.workers.Add(1)
	go j.run(runCtx, runID, detector, img, params)
	return out, nil
}

// Wait blocks until every detector goroutine has returned and its outcome
// has been recorded. A cancelled run is only waited for once its detector
// honours the cancellation.
func (j *Job) Wait() {
	j.workers.Wait()
}

// Cancel stops the current run. It reports false when no run is in
// progress. Once Cancel returns no further progress or result events are
// emitted for the run; a single cancelled event terminates the stream.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	if j.state != StateRunning {
		j.mu.Unlock()
		return false
	}
	j.finishLocked(StateCancelled, Event{Kind: EventCancelled, Percent: j.progress, Stage: j.message})
	runID := j.runID
	j.mu.Unlock()

	j.log.WithField("job_id", runID).Info("Job cancelled")
	return true
}

// run executes the detector and publishes the outcome. It runs on its own
// goroutine.
func (j *Job) run(ctx context.Context, runID string, detector Detector, img image.Image, params Params) {
	defer j.workers.Done()
	log := j.log.WithField("job_id", runID)

	report := func(percent int, stage string) {
		j.progressEvent(runID, percent, stage)
	}

	detections, err := func() (dets []Detection, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("detector panic: %v", r)
			}
		}()
		return detector.Detect(ctx, img, params, report)
	}()
	ctxErr := ctx.Err()

	j.mu.Lock()
	if j.runID != runID {
		// Cancelled, and a newer run has already started
		j.mu.Unlock()
		j.record(func(r Recorder) error {
			return r.RunFinished(context.Background(), Outcome{ID: runID, State: StateCancelled, FinishedAt: time.Now()})
		})
		return
	}
	if j.state != StateRunning {
		// Cancelled while the detector was finishing
		out := j.outcomeLocked()
		j.mu.Unlock()
		j.record(func(r Recorder) error { return r.RunFinished(context.Background(), out) })
		return
	}

	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		jerr := &JobError{Reason: "timed out", Err: ErrTimeout}
		j.err = jerr
		j.finishLocked(StateFailed, Event{Kind: EventFailed, Percent: j.progress, Stage: j.message, Err: jerr})
		log.WithError(jerr).Warn("Job timed out")

	case errors.Is(ctxErr, context.Canceled):
		// Parent context cancelled
		j.finishLocked(StateCancelled, Event{Kind: EventCancelled, Percent: j.progress, Stage: j.message})
		log.Info("Job cancelled by caller")

	case err != nil:
		jerr := &JobError{Reason: err.Error(), Err: err}
		j.err = jerr
		j.finishLocked(StateFailed, Event{Kind: EventFailed, Percent: j.progress, Stage: j.message, Err: jerr})
		log.WithError(err).Warn("Job failed")

	default:
		if j.progress < 100 || j.message != CompleteStage {
			j.progress = 100
			j.message = CompleteStage
			j.mailbox.push(Event{RunID: runID, Kind: EventProgress, Percent: 100, Stage: CompleteStage})
		}
		items := j.itemsLocked(detections, log)
		j.result = items
		j.finishLocked(StateSucceeded, Event{Kind: EventSucceeded, Percent: 100, Stage: CompleteStage, Result: items})
		log.WithField("detections", len(items)).Info("Job succeeded")
	}
	out := j.outcomeLocked()
	j.mu.Unlock()

	j.record(func(r Recorder) error { return r.RunFinished(context.Background(), out) })
}

// progressEvent forwards a detector report. Percent is clamped so the
// stream never goes backwards; reports after the run ended are dropped.
func (j *Job) progressEvent(runID string, percent int, stage string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.runID != runID || j.state != StateRunning {
		return
	}
	if percent > 100 {
		percent = 100
	}
	if percent < j.progress {
		percent = j.progress
	}
	j.progress = percent
	j.message = stage
	j.mailbox.push(Event{RunID: runID, Kind: EventProgress, Percent: percent, Stage: stage})

	j.log.WithFields(logrus.Fields{
		"job_id":  runID,
		"percent": percent,
		"stage":   stage,
	}).Debug("Progress")
}

// finishLocked moves to a terminal state, queues the terminal event and
// seals the mailbox. Caller holds j.mu.
func (j *Job) finishLocked(state State, ev Event) {
	j.state = state
	ev.RunID = j.runID
	j.mailbox.push(ev)
	j.mailbox.close()
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
}

// itemsLocked assigns default names and colours in result order. Invalid
// polygons are dropped. Caller holds j.mu.
func (j *Job) itemsLocked(dets []Detection, log logrus.FieldLogger) []Item {
	items := make([]Item, 0, len(dets))
	for i, d := range dets {
		if !d.Geometry.Valid() {
			log.WithField("index", i).Warn("Dropping invalid detection geometry")
			continue
		}
		j.seq++
		name := fmt.Sprintf("AI Detection %d", j.seq)
		if d.Label != "" {
			name = fmt.Sprintf("%s (%s)", name, d.Label)
		}

		attrs := make(map[string]any, len(d.Attributes)+2)
		for k, v := range d.Attributes {
			attrs[k] = v
		}
		if d.Label != "" {
			attrs["label"] = d.Label
		}
		if d.Confidence > 0 {
			attrs["confidence"] = d.Confidence
		}

		items = append(items, Item{
			Geometry:   d.Geometry.Clone(),
			Color:      j.palette[(j.seq-1)%len(j.palette)],
			Name:       name,
			Attributes: attrs,
		})
	}
	return items
}

// outcomeLocked summarises the current run. Caller holds j.mu.
func (j *Job) outcomeLocked() Outcome {
	out := Outcome{
		ID:         j.runID,
		State:      j.state,
		Progress:   j.progress,
		LastStage:  j.message,
		Layers:     len(j.result),
		FinishedAt: time.Now(),
	}
	if j.err != nil {
		out.Err = j.err.Error()
	}
	return out
}

func (j *Job) record(fn func(Recorder) error) {
	if j.recorder == nil {
		return
	}
	if err := fn(j.recorder); err != nil {
		j.log.WithError(err).Warn("Failed to record run")
	}
}
