package proctoring

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"
)

// stubSource returns a fixed 4x4 frame and records Close calls.
type stubSource struct {
	mu     sync.Mutex
	closed int
}

func (s *stubSource) Capture(ctx context.Context) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}

func (s *stubSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *stubSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// scriptedClassifier replays a fixed sequence of results, then repeats the
// last one.
type scriptedClassifier struct {
	mu      sync.Mutex
	results []classifyResult
	calls   int
}

type classifyResult struct {
	probs []float64
	err   error
}

func (c *scriptedClassifier) Classify(ctx context.Context, frame Frame) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	if i >= len(c.results) {
		i = len(c.results) - 1
	}
	c.calls++
	r := c.results[i]
	return r.probs, r.err
}

// probsFor builds a probability vector with the given confidence on label
// and the remainder spread over the rest.
func probsFor(t *testing.T, label string, confidence float64) []float64 {
	t.Helper()
	idx := -1
	for i, l := range Labels {
		if l == label {
			idx = i
		}
	}
	if idx < 0 {
		t.Fatalf("unknown label %q", label)
	}
	probs := make([]float64, len(Labels))
	rest := (1 - confidence) / float64(len(Labels)-1)
	for i := range probs {
		probs[i] = rest
	}
	probs[idx] = confidence
	return probs
}

func newTestAggregator(t *testing.T, c Classifier, opts ...Option) (*Aggregator, *stubSource) {
	t.Helper()
	src := &stubSource{}
	agg, err := NewAggregator(src, c, opts...)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return agg, src
}

func drainEvents(a *Aggregator) []Event {
	var events []Event
	for {
		select {
		case ev := <-a.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestAggregatorPercentagesOverClassifiedFramesOnly(t *testing.T) {
	// 10 detected-face ticks, 5 missing-face ticks: percentages are over 10.
	var results []classifyResult
	for i := 0; i < 7; i++ {
		results = append(results, classifyResult{probs: probsFor(t, "neutral", 0.9)})
	}
	for i := 0; i < 3; i++ {
		results = append(results, classifyResult{probs: probsFor(t, "happy", 0.8)})
	}
	for i := 0; i < 5; i++ {
		results = append(results, classifyResult{probs: probsFor(t, "neutral", 0.2)}) // below threshold
	}

	agg, _ := newTestAggregator(t, &scriptedClassifier{results: results})
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		agg.tick(ctx)
	}

	snap := agg.Snapshot()
	if snap.TotalFrames != 10 {
		t.Fatalf("TotalFrames = %d, want 10", snap.TotalFrames)
	}
	if snap.FaceMissingSeconds != 5 {
		t.Errorf("FaceMissingSeconds = %d, want 5", snap.FaceMissingSeconds)
	}
	if got := snap.EmotionPercents["neutral"]; got != 70 {
		t.Errorf("neutral = %d%%, want 70", got)
	}
	if got := snap.EmotionPercents["happy"]; got != 30 {
		t.Errorf("happy = %d%%, want 30", got)
	}

	sum := 0
	for _, p := range snap.EmotionPercents {
		sum += p
	}
	if sum > 100 {
		t.Errorf("percentages sum to %d, want <= 100", sum)
	}
}

func TestAggregatorCriticalWarningEdgeTriggered(t *testing.T) {
	missing := classifyResult{probs: probsFor(t, "neutral", 0.1)}
	agg, _ := newTestAggregator(t, &scriptedClassifier{results: []classifyResult{missing}})

	// 12 consecutive missing ticks: the streak passes the threshold at tick
	// 6 (warning, streak resets) and again at tick 12, exactly twice, not
	// once per tick past the threshold.
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		agg.tick(ctx)
	}

	critical := 0
	for _, ev := range drainEvents(agg) {
		if ev.Kind == EventCriticalWarning {
			critical++
		}
	}
	if critical != 2 {
		t.Errorf("critical warnings = %d, want 2", critical)
	}
}

func TestAggregatorStreakResetOnDetection(t *testing.T) {
	var results []classifyResult
	// 4 missing (below threshold), 1 detected, 4 missing again: no critical.
	for i := 0; i < 4; i++ {
		results = append(results, classifyResult{probs: probsFor(t, "neutral", 0.1)})
	}
	results = append(results, classifyResult{probs: probsFor(t, "neutral", 0.9)})
	for i := 0; i < 4; i++ {
		results = append(results, classifyResult{probs: probsFor(t, "neutral", 0.1)})
	}

	agg, _ := newTestAggregator(t, &scriptedClassifier{results: results})
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		agg.tick(ctx)
	}

	for _, ev := range drainEvents(agg) {
		if ev.Kind == EventCriticalWarning {
			t.Fatal("critical warning fired although the streak never passed the threshold")
		}
	}

	snap := agg.Snapshot()
	if snap.FaceMissingSeconds != 8 {
		t.Errorf("FaceMissingSeconds = %d, want 8", snap.FaceMissingSeconds)
	}
}

func TestAggregatorSurvivesClassifierFailure(t *testing.T) {
	results := []classifyResult{
		{probs: probsFor(t, "happy", 0.9)},
		{err: errors.New("model not ready")},
		{probs: probsFor(t, "happy", 0.9)},
	}

	agg, _ := newTestAggregator(t, &scriptedClassifier{results: results})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		agg.tick(ctx)
	}

	snap := agg.Snapshot()
	if snap.TotalFrames != 2 {
		t.Errorf("TotalFrames = %d, want 2 (failed tick skipped, loop continued)", snap.TotalFrames)
	}

	sawError := false
	for _, ev := range drainEvents(agg) {
		if ev.Kind == EventClassifierError {
			sawError = true
			if ev.Err == nil {
				t.Error("classifier error event carries no error")
			}
		}
	}
	if !sawError {
		t.Error("no classifier error event emitted")
	}
}

func TestAggregatorStopReleasesSource(t *testing.T) {
	c := &scriptedClassifier{results: []classifyResult{{probs: probsFor(t, "neutral", 0.9)}}}
	agg, src := newTestAggregator(t, c, WithInterval(time.Millisecond))

	if err := agg.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := agg.Start(); err == nil {
		t.Error("second Start did not fail")
	}

	time.Sleep(20 * time.Millisecond)
	agg.Stop()

	if src.closeCount() != 1 {
		t.Fatalf("source closed %d times, want 1", src.closeCount())
	}

	// No tick runs after Stop returns.
	c.mu.Lock()
	callsAtStop := c.calls
	c.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	c.mu.Lock()
	callsAfter := c.calls
	c.mu.Unlock()
	if callsAfter != callsAtStop {
		t.Errorf("classifier called %d times after Stop", callsAfter-callsAtStop)
	}

	agg.Stop() // idempotent
	if src.closeCount() != 1 {
		t.Errorf("source closed again on repeated Stop")
	}
}

type collectingReporter struct {
	mu      sync.Mutex
	reports []IntervalReport
}

func (r *collectingReporter) Report(ctx context.Context, rep IntervalReport) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
}

func (r *collectingReporter) snapshot() []IntervalReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]IntervalReport(nil), r.reports...)
}

func TestAggregatorIntervalReports(t *testing.T) {
	results := []classifyResult{
		{probs: probsFor(t, "sad", 0.8)},
		{probs: probsFor(t, "sad", 0.1)},
	}
	rep := &collectingReporter{}
	agg, _ := newTestAggregator(t, &scriptedClassifier{results: results}, WithReporter(rep))

	ctx := context.Background()
	agg.RecordTabSwitch()
	agg.tick(ctx)
	agg.tick(ctx)

	// Reports are dispatched on their own goroutines.
	deadline := time.Now().Add(time.Second)
	for len(rep.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	reports := rep.snapshot()
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}

	tabFlags := 0
	for _, r := range reports {
		if r.TabSwitched {
			tabFlags++
		}
	}
	if tabFlags != 1 {
		t.Errorf("tab switch reported %d times, want exactly once", tabFlags)
	}

	detected, missing := 0, 0
	for _, r := range reports {
		if r.FaceDetected {
			detected++
			if r.Emotion != "sad" {
				t.Errorf("detected report emotion = %q, want sad", r.Emotion)
			}
		} else {
			missing++
			if r.Emotion != "" {
				t.Errorf("missing-face report carries emotion %q", r.Emotion)
			}
		}
	}
	if detected != 1 || missing != 1 {
		t.Errorf("detected/missing = %d/%d, want 1/1", detected, missing)
	}

	if snap := agg.Snapshot(); snap.TabSwitchCount != 1 {
		t.Errorf("TabSwitchCount = %d, want 1", snap.TabSwitchCount)
	}
}
