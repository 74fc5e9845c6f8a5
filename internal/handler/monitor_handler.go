package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilearn/examguard-backend/internal/config"
	"github.com/vigilearn/examguard-backend/internal/middleware"
	"github.com/vigilearn/examguard-backend/internal/response"
	"github.com/vigilearn/examguard-backend/internal/service"
	ws "github.com/vigilearn/examguard-backend/internal/websocket"
)

const keepAliveInterval = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowlist permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler streams live proctoring telemetry to a teacher watching an
// exam in progress.
type MonitorHandler struct {
	rdb            *redis.Client
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	attemptService *service.AttemptService,
	log zerolog.Logger,
	allowedOrigins []string,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		attemptService: attemptService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// MonitorExam godoc
// WS /ws/v1/teacher/exams/:exam_id/monitor
// Sends a snapshot of every attempt, then forwards each interval report the
// moment a student's client pushes it.
func (h *MonitorHandler) MonitorExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	// Ownership is checked before the upgrade so a rejected teacher gets a
	// proper HTTP status instead of a dropped socket.
	results, err := h.attemptService.Results(c.Request.Context(), examID, claims.UserID, claims.Role)
	if err != nil {
		failFromError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	monLog := h.log.With().
		Int("teacher_id", claims.UserID).
		Str("exam_id", examID.String()).
		Logger()
	monLog.Info().Msg("monitor attached")

	if err := ws.WriteTyped(conn, buildSnapshot(examID.String(), results)); err != nil {
		monLog.Warn().Err(err).Msg("snapshot write failed")
		return
	}

	reqCtx := c.Request.Context()
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer pubsub.Close()
	reports := pubsub.Channel()

	// Reader goroutine: the client sends nothing meaningful, but reading is
	// the only way to notice a closed peer promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-reqCtx.Done():
			monLog.Info().Msg("monitor detached")
			return

		case <-done:
			monLog.Info().Msg("monitor closed connection")
			return

		case msg := <-reports:
			if err := ws.WriteTyped(conn, ws.ReportMessage{
				Event:   ws.EventReport,
				Payload: msg.Payload,
			}); err != nil {
				monLog.Warn().Err(err).Msg("report write failed")
				return
			}

		case <-keepAlive.C:
			if err := ws.WriteTyped(conn, ws.PingMessage{Event: ws.EventPing}); err != nil {
				return
			}
		}
	}
}

func buildSnapshot(examID string, results *service.ExamResults) ws.SnapshotMessage {
	attempts := make([]ws.AttemptSnapshot, len(results.Attempts))
	for i, a := range results.Attempts {
		status := "in_progress"
		if a.SubmittedAt != nil {
			status = "submitted"
		}
		attempts[i] = ws.AttemptSnapshot{
			AttemptID:          a.AttemptID.String(),
			StudentID:          a.StudentID,
			StudentName:        a.StudentName,
			Status:             status,
			Score:              a.Score,
			StartedAt:          a.StartedAt,
			SubmittedAt:        a.SubmittedAt,
			FaceMissingSeconds: a.Evidence.FaceMissingSeconds,
			TabSwitchCount:     a.Evidence.TabSwitchCount,
			FramesAnalyzed:     a.Evidence.FramesAnalyzed,
		}
	}
	return ws.SnapshotMessage{
		Event:    ws.EventSnapshot,
		ExamID:   examID,
		Attempts: attempts,
		SentAt:   time.Now().UTC(),
	}
}
