package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilearn/examguard-backend/internal/config"
	"github.com/vigilearn/examguard-backend/internal/repository"
	"github.com/vigilearn/examguard-backend/internal/service"
)

const (
	BatchSize    = 100
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ProctoringWorker drains the telemetry queue and folds interval reports into
// the per-attempt evidence counters.
type ProctoringWorker struct {
	attemptRepo *repository.AttemptRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewProctoringWorker creates a new ProctoringWorker.
func NewProctoringWorker(attemptRepo *repository.AttemptRepository, rdb *redis.Client, log zerolog.Logger) *ProctoringWorker {
	return &ProctoringWorker{
		attemptRepo: attemptRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "proctoring_worker").Logger(),
	}
}

// Start runs the drain loop until ctx is cancelled.
func (w *ProctoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProctoringWorker started")

	buffer := make([]*service.ProctoringLogItem, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistProctoringQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check the flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var item service.ProctoringLogItem
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			// Malformed JSON can never succeed on retry. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed report")
			continue
		}

		buffer = append(buffer, &item)
	}
}

// aggregate folds a batch down to one delta per attempt. A batch routinely
// holds many reports for the same attempt (one per second), and the bulk
// UPDATE requires unique target rows.
func aggregate(batch []*service.ProctoringLogItem) ([]repository.EvidenceDelta, []*service.ProctoringLogItem) {
	byAttempt := make(map[uuid.UUID]*repository.EvidenceDelta)
	var order []uuid.UUID
	var dropped []*service.ProctoringLogItem

	for _, item := range batch {
		attemptID, err := uuid.Parse(item.AttemptID)
		if err != nil {
			dropped = append(dropped, item)
			continue
		}

		d, ok := byAttempt[attemptID]
		if !ok {
			d = &repository.EvidenceDelta{
				AttemptID:      attemptID,
				EmotionSeconds: make(map[string]int),
			}
			byAttempt[attemptID] = d
			order = append(order, attemptID)
		}
		applyReport(d, item)
	}

	deltas := make([]repository.EvidenceDelta, 0, len(order))
	for _, id := range order {
		deltas = append(deltas, *byAttempt[id])
	}
	return deltas, dropped
}

// applyReport folds one interval report into a delta. Every report counts as
// one analyzed frame; the seconds counters split by what the frame showed.
func applyReport(d *repository.EvidenceDelta, item *service.ProctoringLogItem) {
	d.FramesAnalyzed++

	switch {
	case !item.CameraOn:
		d.CameraOffSeconds += item.IntervalSeconds
	case !item.FaceDetected:
		d.FaceMissingSeconds += item.IntervalSeconds
	case item.Emotion != "":
		d.EmotionSeconds[item.Emotion] += item.IntervalSeconds
	}

	if item.TabSwitched {
		d.TabSwitches++
	}
}

// flushSafe attempts a bulk apply, then falls back per attempt, then requeues.
func (w *ProctoringWorker) flushSafe(ctx context.Context, batch []*service.ProctoringLogItem) {
	deltas, dropped := aggregate(batch)
	for _, item := range dropped {
		w.log.Error().Str("attempt_id", item.AttemptID).Msg("Dropping report with invalid attempt id")
	}
	if len(deltas) == 0 {
		return
	}

	if err := w.attemptRepo.ApplyEvidenceDeltas(ctx, deltas); err != nil {
		w.log.Warn().Err(err).Int("attempts", len(deltas)).Msg("Bulk apply failed, attempting per-attempt recovery")
		w.fallbackApply(ctx, deltas)
	}
}

func (w *ProctoringWorker) fallbackApply(ctx context.Context, deltas []repository.EvidenceDelta) {
	var requeueList []repository.EvidenceDelta

	for _, d := range deltas {
		if err := w.attemptRepo.ApplyEvidenceDelta(ctx, d); err != nil {
			w.log.Error().Err(err).Str("attempt_id", d.AttemptID.String()).Msg("Apply failed, requeueing")
			requeueList = append(requeueList, d)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

// requeue pushes failed deltas back as synthetic reports so no seconds are
// lost while the database is down. One synthetic report per counter type
// carries the accumulated values.
func (w *ProctoringWorker) requeue(ctx context.Context, deltas []repository.EvidenceDelta) {
	pipe := w.rdb.Pipeline()
	for _, d := range deltas {
		for _, item := range syntheticReports(d) {
			data, _ := json.Marshal(item)
			pipe.RPush(ctx, config.WorkerKey.PersistProctoringQueue, data)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue evidence. Data loss occurred.")
		return
	}
	w.log.Info().Int("attempts", len(deltas)).Msg("Requeued failed evidence back to Redis")
	// Avoid thrashing while the database is down hard.
	time.Sleep(2 * time.Second)
}

// syntheticReports decomposes an aggregated delta back into wire items that a
// later drain will fold to the same counters. FramesAnalyzed rides on the
// report count, so the decomposition pads with neutral camera-on frames when
// the counter-bearing reports alone fall short.
func syntheticReports(d repository.EvidenceDelta) []service.ProctoringLogItem {
	now := time.Now().Unix()
	base := service.ProctoringLogItem{
		AttemptID: d.AttemptID.String(),
		Timestamp: now,
	}

	var items []service.ProctoringLogItem
	if d.CameraOffSeconds > 0 {
		item := base
		item.IntervalSeconds = d.CameraOffSeconds
		items = append(items, item)
	}
	if d.FaceMissingSeconds > 0 {
		item := base
		item.IntervalSeconds = d.FaceMissingSeconds
		item.CameraOn = true
		items = append(items, item)
	}
	for emotion, secs := range d.EmotionSeconds {
		item := base
		item.IntervalSeconds = secs
		item.CameraOn = true
		item.FaceDetected = true
		item.Emotion = emotion
		items = append(items, item)
	}
	for i := 0; i < d.TabSwitches; i++ {
		if i < len(items) {
			items[i].TabSwitched = true
			continue
		}
		item := base
		item.CameraOn = true
		item.FaceDetected = true
		item.TabSwitched = true
		items = append(items, item)
	}
	for len(items) < d.FramesAnalyzed {
		item := base
		item.CameraOn = true
		item.FaceDetected = true
		items = append(items, item)
	}
	return items
}

func (w *ProctoringWorker) shutdown(buffer []*service.ProctoringLogItem) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
