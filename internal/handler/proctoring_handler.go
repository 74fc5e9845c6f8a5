package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vigilearn/examguard-backend/internal/middleware"
	"github.com/vigilearn/examguard-backend/internal/model"
	"github.com/vigilearn/examguard-backend/internal/response"
	"github.com/vigilearn/examguard-backend/internal/service"
	"github.com/vigilearn/examguard-backend/internal/validator"
)

// ProctoringHandler accepts interval telemetry from clients taking a
// proctored exam.
type ProctoringHandler struct {
	proctoringService *service.ProctoringService
}

// NewProctoringHandler creates a new ProctoringHandler.
func NewProctoringHandler(proctoringService *service.ProctoringService) *ProctoringHandler {
	return &ProctoringHandler{proctoringService: proctoringService}
}

// RecordReport godoc
// POST /api/v1/student/attempts/:attempt_id/proctoring
// Accepts one interval report and acks as soon as it is queued. Persistence
// happens in the background worker.
func (h *ProctoringHandler) RecordReport(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	var req model.ProctoringReportRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.proctoringService.Record(c.Request.Context(), attemptID, claims.UserID, req); err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"queued": true})
}
