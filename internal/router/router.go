package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vigilearn/examguard-backend/internal/config"
	"github.com/vigilearn/examguard-backend/internal/handler"
	"github.com/vigilearn/examguard-backend/internal/middleware"
	"github.com/vigilearn/examguard-backend/internal/model"
	"github.com/vigilearn/examguard-backend/internal/response"
	"github.com/vigilearn/examguard-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam         *handler.ExamHandler
	Attempt      *handler.AttemptHandler
	Proctoring   *handler.ProctoringHandler
	Notification *handler.NotificationHandler
	Monitor      *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Telemetry arrives once per second per attempt; the limiter gives each
	// student headroom for retries without letting a runaway client flood
	// the queue.
	reportLimiter := middleware.NewRateLimiter(120, time.Minute)

	// ─── 1. Student Group ──────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireAuth(authService),
		middleware.RequireRole(model.RoleStudent),
	)
	{
		studentAPI.GET("/exams", handlers.Attempt.ListAssignedExams)
		studentAPI.POST("/exams/:exam_id/attempts", handlers.Attempt.StartAttempt)
		studentAPI.GET("/attempts/:attempt_id", handlers.Attempt.GetAttempt)
		studentAPI.POST("/attempts/:attempt_id/submit", handlers.Attempt.SubmitAttempt)
		studentAPI.POST("/attempts/:attempt_id/proctoring",
			reportLimiter.Middleware(),
			handlers.Proctoring.RecordReport,
		)
		studentAPI.GET("/notifications", handlers.Notification.ListNotifications)
		studentAPI.POST("/notifications/:notification_id/read", handlers.Notification.MarkNotificationRead)
	}

	// ─── 2. Teacher Group ──────────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(
		middleware.RequireAuth(authService),
		middleware.RequireRole(model.RoleTeacher, model.RoleAdmin),
	)
	{
		teacherAPI.GET("/exams", handlers.Exam.ListExams)
		teacherAPI.POST("/exams", handlers.Exam.CreateExam)
		teacherAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		teacherAPI.PATCH("/exams/:exam_id", handlers.Exam.UpdateExam)
		teacherAPI.DELETE("/exams/:exam_id", handlers.Exam.DeleteExam)
		teacherAPI.GET("/exams/:exam_id/questions", handlers.Exam.ListQuestions)
		teacherAPI.PUT("/exams/:exam_id/questions", handlers.Exam.ReplaceQuestions)
		teacherAPI.POST("/exams/:exam_id/students", handlers.Exam.AssignStudents)
		teacherAPI.GET("/exams/:exam_id/results", handlers.Exam.ExamResults)
		teacherAPI.GET("/attempts/:attempt_id", handlers.Attempt.GetAttempt)
	}

	// ─── 3. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireAuth(authService),
		middleware.RequireRole(model.RoleTeacher, model.RoleAdmin),
	)
	{
		ws.GET("/teacher/exams/:exam_id/monitor", handlers.Monitor.MonitorExam)
	}

	return router
}
