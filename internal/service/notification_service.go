package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilearn/examguard-backend/internal/config"
	"github.com/vigilearn/examguard-backend/internal/model"
	"github.com/vigilearn/examguard-backend/internal/repository"
)

// NotificationQueueItem is the queue wire format for one pending notification.
type NotificationQueueItem struct {
	RecipientID int    `json:"recipient_id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	ExamID      string `json:"exam_id,omitempty"`
}

// NotificationService lists and updates stored notifications and enqueues new
// ones for the background persistence worker.
type NotificationService struct {
	repo *repository.NotificationRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(repo *repository.NotificationRepository, rdb *redis.Client, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "notification_service").Logger(),
	}
}

// NotificationList is a page of notifications with the unread total.
type NotificationList struct {
	Notifications []model.Notification `json:"notifications"`
	Total         int                  `json:"total"`
	UnreadCount   int                  `json:"unread_count"`
}

// List returns a page of the user's notifications.
func (s *NotificationService) List(ctx context.Context, userID, limit, offset int) (*NotificationList, error) {
	notifications, total, err := s.repo.ListByRecipient(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	return &NotificationList{
		Notifications: notifications,
		Total:         total,
		UnreadCount:   unread,
	}, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id int64, userID int) (bool, error) {
	return s.repo.MarkRead(ctx, id, userID)
}

// EnqueueExamAssigned pushes one assignment notification per student onto the
// persistence queue. Failures are logged and swallowed: assignment already
// succeeded, and a lost notification must not fail it.
func (s *NotificationService) EnqueueExamAssigned(ctx context.Context, exam *model.Exam, studentIDs []int) {
	pipe := s.rdb.Pipeline()
	for _, studentID := range studentIDs {
		item := NotificationQueueItem{
			RecipientID: studentID,
			Type:        string(model.NotificationExamAssigned),
			Title:       "New exam assigned",
			Message:     fmt.Sprintf("You have been assigned the exam %q.", exam.Title),
			ExamID:      exam.ID.String(),
		}
		data, err := json.Marshal(item)
		if err != nil {
			s.log.Error().Err(err).Int("student_id", studentID).Msg("marshal notification")
			continue
		}
		pipe.RPush(ctx, config.WorkerKey.PersistNotificationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("exam_id", exam.ID.String()).
			Int("count", len(studentIDs)).Msg("enqueue assignment notifications failed")
	}
}
