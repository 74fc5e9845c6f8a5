package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vigilearn/examguard-backend/internal/response"
	"github.com/vigilearn/examguard-backend/internal/service"
)

// failFromError maps service-layer errors onto the response envelope. Every
// sentinel has one canonical status and code so all handlers agree.
func failFromError(c *gin.Context, err error) {
	var active *service.ActiveAttemptError
	if errors.As(err, &active) {
		response.FailWithDetail(c, http.StatusConflict, response.ErrAttemptAlreadyActive,
			fmt.Sprintf("attempt %s is still in progress", active.AttemptID))
		return
	}

	var tle *service.TimeLimitError
	if errors.As(err, &tle) {
		response.FailWithDetail(c, http.StatusForbidden, response.ErrTimeLimitExceeded,
			fmt.Sprintf("%d minutes elapsed against a limit of %d", tle.ElapsedMinutes, tle.LimitMinutes))
		return
	}

	switch {
	case errors.Is(err, service.ErrExamNotFound), errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotAssigned):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrExamNotOpen):
		response.Fail(c, http.StatusForbidden, response.ErrExamNotOpen)
	case errors.Is(err, service.ErrExamClosed):
		response.Fail(c, http.StatusForbidden, response.ErrExamClosed)
	case errors.Is(err, service.ErrInvalidAttemptToken):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidAttemptToken)
	case errors.Is(err, service.ErrNotAttemptOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotAttemptOwner)
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, service.ErrNotExamOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotExamOwner)
	case errors.Is(err, service.ErrInvalidTimeRange):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidTimeRange)
	case errors.Is(err, service.ErrExamLocked):
		response.Fail(c, http.StatusConflict, response.ErrExamLocked)
	case errors.Is(err, service.ErrAttemptsExist):
		response.Fail(c, http.StatusConflict, response.ErrAttemptsExist)
	case errors.Is(err, service.ErrUnknownStudents):
		response.FailWithDetail(c, http.StatusBadRequest, response.ErrValidation,
			"one or more student ids do not belong to student accounts")
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
