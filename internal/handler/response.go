// Package handler provides the HTTP API handlers and the Telegram bot command handlers.
package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"telegram-clicker/internal/service"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeTaskNotFound         = "TASK_NOT_FOUND"
	CodeTaskInactive         = "TASK_INACTIVE"
	CodeUnsupportedTaskType  = "UNSUPPORTED_TASK_TYPE"
	CodeConfigurationError   = "CONFIGURATION_ERROR"
	CodeTaskNotStarted       = "TASK_NOT_STARTED"
	CodeTaskAlreadyCompleted = "TASK_ALREADY_COMPLETED"
	CodeClaimConflict        = "CLAIM_CONFLICT"
	CodeClaimFailed          = "CLAIM_FAILED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeNotFound             = "NOT_FOUND"
	CodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	CodeInternal             = "INTERNAL_ERROR"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// sendError writes an error response.
func sendError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// errorStatus maps a service error to its HTTP status, code and client message.
func errorStatus(err error) (int, string, string) {
	var claimErr *service.ClaimFailedError
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return fiber.StatusBadRequest, CodeInvalidRequest, err.Error()
	case errors.Is(err, service.ErrUnauthorized):
		return fiber.StatusForbidden, CodeUnauthorized, "Invalid Telegram data"
	case errors.Is(err, service.ErrUserNotFound):
		return fiber.StatusNotFound, CodeUserNotFound, "User not found"
	case errors.Is(err, service.ErrTaskNotFound):
		return fiber.StatusNotFound, CodeTaskNotFound, "Task not found"
	case errors.Is(err, service.ErrTaskInactive):
		return fiber.StatusConflict, CodeTaskInactive, "This task is no longer active"
	case errors.Is(err, service.ErrUnsupportedTaskType):
		return fiber.StatusUnprocessableEntity, CodeUnsupportedTaskType, "Invalid task type or missing task data for this operation"
	case errors.Is(err, service.ErrWaitNotConfigured):
		return fiber.StatusInternalServerError, CodeConfigurationError, "Task wait time is not configured"
	case errors.Is(err, service.ErrTaskNotStarted):
		return fiber.StatusConflict, CodeTaskNotStarted, "Task not started"
	case errors.Is(err, service.ErrTaskAlreadyCompleted):
		return fiber.StatusConflict, CodeTaskAlreadyCompleted, "Task already completed"
	case errors.As(err, &claimErr):
		if claimErr.Conflict() {
			return fiber.StatusConflict, CodeClaimConflict, "Task is being claimed by another request, please retry"
		}
		return fiber.StatusInternalServerError, CodeClaimFailed, "Failed to check visit task"
	}
	return fiber.StatusInternalServerError, CodeInternal, "Internal server error"
}

// respondError writes the response for a service error.
func respondError(c *fiber.Ctx, err error) error {
	status, code, message := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("path", c.Path()).
			Str("code", code).
			Msg("Request failed")
	}
	return sendError(c, status, code, message)
}

// ErrorHandler renders errors that escape the handlers, including fiber's own.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code := CodeInternal
		switch {
		case fiberErr.Code == fiber.StatusNotFound:
			code = CodeNotFound
		case fiberErr.Code == fiber.StatusMethodNotAllowed:
			code = CodeMethodNotAllowed
		case fiberErr.Code == fiber.StatusTooManyRequests:
			code = CodeRateLimited
		case fiberErr.Code < fiber.StatusInternalServerError:
			code = CodeInvalidRequest
		}
		return sendError(c, fiberErr.Code, code, fiberErr.Message)
	}
	return respondError(c, err)
}
