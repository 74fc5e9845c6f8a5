package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilearn/examguard-backend/internal/config"
	"github.com/vigilearn/examguard-backend/internal/model"
	"github.com/vigilearn/examguard-backend/internal/repository"
	"github.com/vigilearn/examguard-backend/internal/service"
)

// NotificationWorker drains the notification queue into the notifications
// table. Same batch shape as the proctoring worker but the writes are plain
// inserts, so no pre-aggregation is needed.
type NotificationWorker struct {
	repo *repository.NotificationRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewNotificationWorker creates a new NotificationWorker.
func NewNotificationWorker(repo *repository.NotificationRepository, rdb *redis.Client, log zerolog.Logger) *NotificationWorker {
	return &NotificationWorker{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "notification_worker").Logger(),
	}
}

// Start runs the drain loop until ctx is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("NotificationWorker started")

	buffer := make([]*service.NotificationQueueItem, 0, BatchSize)
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

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistNotificationsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
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

		var item service.NotificationQueueItem
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed notification")
			continue
		}

		buffer = append(buffer, &item)
	}
}

func (w *NotificationWorker) flushSafe(ctx context.Context, batch []*service.NotificationQueueItem) {
	notifications := make([]model.Notification, 0, len(batch))
	sources := make([]*service.NotificationQueueItem, 0, len(batch))
	for _, item := range batch {
		n, err := toNotification(item)
		if err != nil {
			w.log.Error().Err(err).Str("exam_id", item.ExamID).Msg("Dropping notification with invalid exam id")
			continue
		}
		notifications = append(notifications, n)
		sources = append(sources, item)
	}
	if len(notifications) == 0 {
		return
	}

	if err := w.repo.BulkInsert(ctx, notifications); err != nil {
		w.log.Warn().Err(err).Int("count", len(notifications)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, notifications, sources)
	}
}

func (w *NotificationWorker) fallbackInsert(ctx context.Context, notifications []model.Notification, sources []*service.NotificationQueueItem) {
	var requeueList []*service.NotificationQueueItem

	for i, n := range notifications {
		if err := w.repo.Insert(ctx, n); err != nil {
			w.log.Error().Err(err).Int("recipient_id", n.RecipientID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, sources[i])
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *NotificationWorker) requeue(ctx context.Context, items []*service.NotificationQueueItem) {
	pipe := w.rdb.Pipeline()
	for _, item := range items {
		data, _ := json.Marshal(item)
		pipe.RPush(ctx, config.WorkerKey.PersistNotificationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue notifications. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed notifications back to Redis")
	time.Sleep(2 * time.Second)
}

func toNotification(item *service.NotificationQueueItem) (model.Notification, error) {
	n := model.Notification{
		RecipientID: item.RecipientID,
		Type:        model.NotificationType(item.Type),
		Title:       item.Title,
		Message:     item.Message,
	}
	if item.ExamID != "" {
		examID, err := uuid.Parse(item.ExamID)
		if err != nil {
			return model.Notification{}, err
		}
		n.ExamID = &examID
	}
	return n, nil
}

func (w *NotificationWorker) shutdown(buffer []*service.NotificationQueueItem) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
