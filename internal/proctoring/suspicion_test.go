package proctoring

import (
	"strings"
	"testing"
)

func TestEvaluateSuspicionDisabled(t *testing.T) {
	// Heavy evidence, proctoring off: nothing is evaluated.
	ev := Evidence{
		FaceMissingSeconds: 600,
		EmotionShares:      map[string]float64{"fear": 40, "angry": 30},
		TabSwitchCount:     10,
	}

	warnings, count := EvaluateSuspicion(ev, false)
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
}

func TestEvaluateSuspicionAdditiveRules(t *testing.T) {
	// Reference scenario: face missing 310s (+2), fear present (+1),
	// 4 tab switches (+1) makes 4 total, three distinct warnings.
	ev := Evidence{
		FaceMissingSeconds: 310,
		EmotionShares:      map[string]float64{"fear": 12, "neutral": 88},
		TabSwitchCount:     4,
	}

	warnings, count := EvaluateSuspicion(ev, true)
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}
	if len(warnings) != 3 {
		t.Fatalf("warnings = %v, want 3 entries", warnings)
	}

	joined := strings.Join(warnings, "|")
	for _, want := range []string{"Face not detected", "fear", "Tab switched 4 times"} {
		if !strings.Contains(joined, want) {
			t.Errorf("warnings %v missing %q", warnings, want)
		}
	}
}

func TestEvaluateSuspicionThresholds(t *testing.T) {
	tests := []struct {
		name string
		ev   Evidence
		want int
	}{
		{"all zero", Evidence{}, 0},
		{"face missing at threshold is fine", Evidence{FaceMissingSeconds: 300}, 0},
		{"face missing over threshold", Evidence{FaceMissingSeconds: 301}, 2},
		{"tab switches at threshold is fine", Evidence{TabSwitchCount: 3}, 0},
		{"tab switches over threshold", Evidence{TabSwitchCount: 4}, 1},
		{"neutral emotion is not suspicious", Evidence{EmotionShares: map[string]float64{"neutral": 100}}, 0},
		{"zero-valued negative emotion does not trigger", Evidence{EmotionShares: map[string]float64{"fear": 0}}, 0},
		{"all three negatives present", Evidence{EmotionShares: map[string]float64{"fear": 1, "angry": 1, "disgust": 1}}, 3},
		{"presence counts once, not per occurrence", Evidence{EmotionShares: map[string]float64{"fear": 99}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, count := EvaluateSuspicion(tt.ev, true)
			if count != tt.want {
				t.Errorf("count = %d, want %d", count, tt.want)
			}
		})
	}
}

func TestEvaluateSuspicionEmotionSpelling(t *testing.T) {
	// Client summaries may report "Anger"/"Fear" with arbitrary casing or
	// the "anger" spelling; all must fold onto the label set.
	for _, label := range []string{"fear", "Fear", "FEAR", "angry", "Angry", "anger", "Disgust"} {
		_, count := EvaluateSuspicion(Evidence{EmotionShares: map[string]float64{label: 5}}, true)
		if count != 1 {
			t.Errorf("label %q: count = %d, want 1", label, count)
		}
	}
}

func TestEvaluateSuspicionMonotonic(t *testing.T) {
	base := Evidence{
		FaceMissingSeconds: 100,
		EmotionShares:      map[string]float64{"neutral": 90},
		TabSwitchCount:     1,
	}
	_, baseCount := EvaluateSuspicion(base, true)

	more := []Evidence{
		{FaceMissingSeconds: 400, EmotionShares: base.EmotionShares, TabSwitchCount: base.TabSwitchCount},
		{FaceMissingSeconds: base.FaceMissingSeconds, EmotionShares: map[string]float64{"neutral": 80, "fear": 10}, TabSwitchCount: base.TabSwitchCount},
		{FaceMissingSeconds: base.FaceMissingSeconds, EmotionShares: base.EmotionShares, TabSwitchCount: 8},
		{FaceMissingSeconds: 999, EmotionShares: map[string]float64{"fear": 5, "angry": 5, "disgust": 5}, TabSwitchCount: 99},
	}

	for i, ev := range more {
		if _, count := EvaluateSuspicion(ev, true); count < baseCount {
			t.Errorf("case %d: count %d decreased below base %d", i, count, baseCount)
		}
	}
}

func TestEvidenceFromAttemptPrecedence(t *testing.T) {
	client := &EvidenceSummaryInput{
		FaceMissingSeconds: 999,
		EmotionPercents:    map[string]float64{"fear": 50},
		TabSwitchCount:     9,
	}

	// Server log saw traffic: server counters win.
	ev := EvidenceFromAttempt(120, 30, map[string]int{"neutral": 100}, 1, client)
	if ev.FaceMissingSeconds != 30 || ev.TabSwitchCount != 1 {
		t.Errorf("server evidence not preferred: %+v", ev)
	}
	if _, ok := ev.EmotionShares["fear"]; ok {
		t.Error("client emotions leaked into server-backed evidence")
	}

	// No server traffic: fall back to the client summary.
	ev = EvidenceFromAttempt(0, 0, nil, 0, client)
	if ev.FaceMissingSeconds != 999 || ev.TabSwitchCount != 9 {
		t.Errorf("client fallback not used: %+v", ev)
	}

	// Neither path has data: zero evidence, still valid input.
	ev = EvidenceFromAttempt(0, 0, nil, 0, nil)
	if _, count := EvaluateSuspicion(ev, true); count != 0 {
		t.Errorf("empty evidence produced count %d", count)
	}
}
