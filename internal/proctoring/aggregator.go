package proctoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// SampleInterval is the cadence of the monitoring loop.
	SampleInterval = time.Second
	// ConfidenceThreshold is the minimum top probability for a frame to
	// count as a detected face.
	ConfidenceThreshold = 0.4
	// MissingStreakThreshold is the number of consecutive missing-face
	// seconds after which a critical warning fires. The warning is
	// edge-triggered: the streak resets after firing so it does not repeat
	// on every subsequent tick.
	MissingStreakThreshold = 5

	// eventBuffer bounds the event channel; emits never block the loop.
	eventBuffer = 64
)

// EventKind classifies aggregator events.
type EventKind string

const (
	EventMonitoring      EventKind = "monitoring"
	EventFaceMissing     EventKind = "face_missing"
	EventCriticalWarning EventKind = "critical_warning"
	EventClassifierError EventKind = "classifier_error"
)

// Event is a typed status notification from the sampling loop.
type Event struct {
	Kind               EventKind `json:"kind"`
	Message            string    `json:"message"`
	Emotion            string    `json:"emotion,omitempty"`
	FaceMissingSeconds int       `json:"face_missing_seconds"`
	Streak             int       `json:"streak,omitempty"`
	Err                error     `json:"-"`
}

// IntervalReport is one tick's worth of telemetry for the server-side
// incremental proctoring log.
type IntervalReport struct {
	IntervalSeconds int    `json:"interval_seconds"`
	CameraOn        bool   `json:"camera_on"`
	FaceDetected    bool   `json:"face_detected"`
	Emotion         string `json:"emotion,omitempty"`
	TabSwitched     bool   `json:"tab_switched"`
}

// Reporter receives per-tick interval reports. Calls are fire-and-forget
// from the aggregator's perspective: they run on their own goroutine and
// must not assume ordering relative to the sampling loop.
type Reporter interface {
	Report(ctx context.Context, r IntervalReport)
}

// EvidenceSummary is a point-in-time snapshot of the aggregated evidence.
// Emotion percentages are computed over classified frames, not elapsed time,
// since detection frequency varies.
type EvidenceSummary struct {
	FaceMissingSeconds int            `json:"face_missing_seconds"`
	EmotionPercents    map[string]int `json:"emotion_percents"`
	TotalFrames        int            `json:"total_frames"`
	TabSwitchCount     int            `json:"tab_switch_count"`
	Timestamp          time.Time      `json:"timestamp"`
}

// Aggregator samples a frame source at a fixed cadence, classifies each frame
// and accumulates face-presence and emotion evidence for one attempt.
//
// Each Aggregator owns its own counters; nothing is shared process-wide, so
// concurrent attempts cannot cross-contaminate. The loop is single-threaded:
// at most one classification is in flight, and the next tick is scheduled
// only after the current one completes or fails.
type Aggregator struct {
	source     FrameSource
	classifier Classifier
	reporter   Reporter
	interval   time.Duration

	events chan Event

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu               sync.Mutex
	faceMissing      int
	missingStreak    int
	emotionCounts    map[string]int
	totalFrames      int
	tabSwitches      int
	pendingTabSwitch bool
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithReporter attaches a per-tick interval reporter.
func WithReporter(r Reporter) Option {
	return func(a *Aggregator) { a.reporter = r }
}

// WithInterval overrides the sampling cadence. Intended for tests.
func WithInterval(d time.Duration) Option {
	return func(a *Aggregator) { a.interval = d }
}

// NewAggregator creates an aggregator for one attempt. The source and
// classifier are required; the source is released when the loop exits.
func NewAggregator(source FrameSource, classifier Classifier, opts ...Option) (*Aggregator, error) {
	if source == nil {
		return nil, errors.New("frame source is required")
	}
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}

	a := &Aggregator{
		source:        source,
		classifier:    classifier,
		interval:      SampleInterval,
		events:        make(chan Event, eventBuffer),
		emotionCounts: make(map[string]int, len(Labels)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Events returns the typed event stream. Events are dropped, never blocked
// on, when the consumer falls behind.
func (a *Aggregator) Events() <-chan Event {
	return a.events
}

// Start launches the sampling loop. It is an error to start twice.
func (a *Aggregator) Start() error {
	if !a.running.CompareAndSwap(false, true) {
		return errors.New("aggregator already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.run(ctx)
	return nil
}

// Stop ends the loop and releases the frame source. It is immediate in the
// sense that no further tick will run once it returns: cancellation is
// cooperative, and the running flag is checked before each tick acts.
// Stop is idempotent.
func (a *Aggregator) Stop() {
	if !a.running.CompareAndSwap(true, false) {
		return
	}
	a.cancel()
	<-a.done
}

// RecordTabSwitch notes a visibility change (e.g. the exam tab losing focus).
// It feeds both the local tab-switch counter and the next interval report.
func (a *Aggregator) RecordTabSwitch() {
	a.mu.Lock()
	a.tabSwitches++
	a.pendingTabSwitch = true
	a.mu.Unlock()
}

// Snapshot returns the evidence collected so far. Percentages are over
// classified frames only.
func (a *Aggregator) Snapshot() EvidenceSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	percents := make(map[string]int, len(a.emotionCounts))
	for emotion, count := range a.emotionCounts {
		if a.totalFrames > 0 {
			percents[emotion] = int(math.Round(float64(count) / float64(a.totalFrames) * 100))
		} else {
			percents[emotion] = 0
		}
	}

	return EvidenceSummary{
		FaceMissingSeconds: a.faceMissing,
		EmotionPercents:    percents,
		TotalFrames:        a.totalFrames,
		TabSwitchCount:     a.tabSwitches,
		Timestamp:          time.Now(),
	}
}

func (a *Aggregator) run(ctx context.Context) {
	defer close(a.done)
	defer a.source.Close()

	timer := time.NewTimer(a.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !a.running.Load() {
			return
		}

		a.tick(ctx)

		// The next tick is scheduled only after this one finished, so a
		// slow classifier never queues stale frames behind itself.
		timer.Reset(a.interval)
	}
}

func (a *Aggregator) tick(ctx context.Context) {
	img, err := a.source.Capture(ctx)
	if err != nil {
		a.reportError(fmt.Errorf("capture frame: %w", err))
		return
	}

	probs, err := a.classifier.Classify(ctx, NormalizeFrame(img))
	if err != nil {
		// A single failed classification must not end monitoring.
		a.reportError(fmt.Errorf("classify frame: %w", err))
		return
	}

	best, confidence := argmax(probs)
	if best < 0 || best >= len(Labels) || confidence < ConfidenceThreshold {
		a.handleFaceMissing(ctx)
		return
	}
	a.handleFaceDetected(ctx, Labels[best])
}

func (a *Aggregator) handleFaceMissing(ctx context.Context) {
	a.mu.Lock()
	a.faceMissing++
	a.missingStreak++
	missing, streak := a.faceMissing, a.missingStreak
	critical := streak > MissingStreakThreshold
	if critical {
		a.missingStreak = 0
	}
	a.mu.Unlock()

	a.emit(Event{
		Kind:               EventFaceMissing,
		Message:            fmt.Sprintf("face not detected (%ds total)", missing),
		FaceMissingSeconds: missing,
		Streak:             streak,
	})
	if critical {
		a.emit(Event{
			Kind:               EventCriticalWarning,
			Message:            "please return to camera view",
			FaceMissingSeconds: missing,
		})
	}

	a.report(ctx, false, "")
}

func (a *Aggregator) handleFaceDetected(ctx context.Context, emotion string) {
	a.mu.Lock()
	a.missingStreak = 0
	a.totalFrames++
	a.emotionCounts[emotion]++
	missing := a.faceMissing
	a.mu.Unlock()

	a.emit(Event{
		Kind:               EventMonitoring,
		Message:            "monitoring: " + emotion,
		Emotion:            emotion,
		FaceMissingSeconds: missing,
	})

	a.report(ctx, true, emotion)
}

func (a *Aggregator) reportError(err error) {
	a.emit(Event{
		Kind:    EventClassifierError,
		Message: err.Error(),
		Err:     err,
	})
}

// report pushes one interval to the reporter without ever blocking the loop.
func (a *Aggregator) report(ctx context.Context, faceDetected bool, emotion string) {
	if a.reporter == nil {
		return
	}

	a.mu.Lock()
	tabSwitched := a.pendingTabSwitch
	a.pendingTabSwitch = false
	a.mu.Unlock()

	rep := IntervalReport{
		IntervalSeconds: int(a.interval / time.Second),
		CameraOn:        true,
		FaceDetected:    faceDetected,
		Emotion:         emotion,
		TabSwitched:     tabSwitched,
	}
	if rep.IntervalSeconds < 1 {
		rep.IntervalSeconds = 1
	}

	go a.reporter.Report(ctx, rep)
}

func (a *Aggregator) emit(ev Event) {
	select {
	case a.events <- ev:
	default:
		// Consumer is behind; drop rather than stall the sampling loop.
	}
}
