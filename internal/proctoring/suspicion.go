package proctoring

import (
	"fmt"
	"math"
	"strings"
)

const (
	// FaceMissingSuspicionSeconds is the total face-missing time beyond
	// which an attempt is flagged.
	FaceMissingSuspicionSeconds = 300
	// TabSwitchSuspicionCount is the number of tab switches beyond which an
	// attempt is flagged.
	TabSwitchSuspicionCount = 3

	faceMissingWeight = 2
	emotionWeight     = 1
	tabSwitchWeight   = 1
)

// negativeEmotions are the emotions whose mere presence (any value above
// zero) flags an attempt, one weight per emotion regardless of magnitude.
var negativeEmotions = []string{"fear", "angry", "disgust"}

// Evidence is the aggregated proctoring evidence fed to the evaluator.
// Zero values are valid; a nil map means no emotion evidence.
type Evidence struct {
	FaceMissingSeconds int
	// EmotionShares maps emotion label to any positive magnitude: percent
	// of frames from a client summary, or accumulated seconds from the
	// server-side log. Only presence matters for suspicion.
	EmotionShares  map[string]float64
	TabSwitchCount int
}

// EvaluateSuspicion applies the independent suspicion rules to the evidence.
//
// It is total: it never fails, and absent evidence counts as zero. When
// proctoring is disabled for the exam it returns no warnings and zero count
// without evaluating anything. Rules are additive; none suppresses another,
// so the count is monotonic in the evidence.
func EvaluateSuspicion(ev Evidence, proctored bool) ([]string, int) {
	if !proctored {
		return nil, 0
	}

	var warnings []string
	count := 0

	if ev.FaceMissingSeconds > FaceMissingSuspicionSeconds {
		minutes := int(math.Round(float64(ev.FaceMissingSeconds) / 60))
		warnings = append(warnings, fmt.Sprintf("Face not detected for %d minutes", minutes))
		count += faceMissingWeight
	}

	present := make(map[string]bool, len(ev.EmotionShares))
	for label, share := range ev.EmotionShares {
		if share > 0 {
			present[canonicalEmotion(label)] = true
		}
	}
	for _, emotion := range negativeEmotions {
		if present[emotion] {
			warnings = append(warnings, fmt.Sprintf("Suspicious emotion detected: %s", emotion))
			count += emotionWeight
		}
	}

	if ev.TabSwitchCount > TabSwitchSuspicionCount {
		warnings = append(warnings, fmt.Sprintf("Tab switched %d times", ev.TabSwitchCount))
		count += tabSwitchWeight
	}

	return warnings, count
}

// canonicalEmotion lowercases a label and folds spelling variants onto the
// classifier's label set ("anger" becomes "angry"), so client-reported keys match
// regardless of casing convention.
func canonicalEmotion(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "anger" {
		return "angry"
	}
	return l
}

// EvidenceFromAttempt builds evaluator input from the server-side counters
// when the incremental log saw any traffic, falling back to the
// client-submitted summary otherwise. Server counters win because they are
// far harder for a client to falsify.
func EvidenceFromAttempt(serverFramesAnalyzed, serverFaceMissing int, serverEmotionSeconds map[string]int, serverTabSwitches int, client *EvidenceSummaryInput) Evidence {
	if serverFramesAnalyzed > 0 {
		shares := make(map[string]float64, len(serverEmotionSeconds))
		for label, secs := range serverEmotionSeconds {
			shares[label] = float64(secs)
		}
		return Evidence{
			FaceMissingSeconds: serverFaceMissing,
			EmotionShares:      shares,
			TabSwitchCount:     serverTabSwitches,
		}
	}

	if client == nil {
		return Evidence{}
	}
	return Evidence{
		FaceMissingSeconds: client.FaceMissingSeconds,
		EmotionShares:      client.EmotionPercents,
		TabSwitchCount:     client.TabSwitchCount,
	}
}

// EvidenceSummaryInput is the client-reported end-of-attempt summary as seen
// by the evaluator.
type EvidenceSummaryInput struct {
	FaceMissingSeconds int
	EmotionPercents    map[string]float64
	TabSwitchCount     int
}
