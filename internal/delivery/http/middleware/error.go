package middleware

import (
	"jobradar/internal/logger"
	"jobradar/internal/pkg/response"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

type AppError struct {
	StatusCode int
	Message    string
	Reason     string
	Detail     string
	Cause      error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewAppError(statusCode int, message, reason, detail string, cause error) *AppError {
	return &AppError{StatusCode: statusCode, Message: message, Reason: reason, Detail: detail, Cause: cause}
}

type ErrorMiddleware struct {
	log *zap.SugaredLogger
}

func NewErrorMiddleware(log *zap.SugaredLogger) *ErrorMiddleware {
	return &ErrorMiddleware{log: logger.OrNop(log)}
}

func (m *ErrorMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				m.log.Errorw("panic recovered", "path", c.Path(), "panic", r)
				err = response.Error(c, fiber.StatusInternalServerError, response.MessageInternalServerError,
					response.ErrorData{Reason: response.ReasonInternal})
			}
		}()

		err = c.Next()
		if err == nil {
			return nil
		}

		status, msg, data := normalizeError(err)
		if status >= 500 {
			m.log.Errorw("request failed", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
		}
		return response.Error(c, status, msg, data)
	}
}

// normalizeError maps err to a response. Gateway failures keep their detail;
// other server errors are masked.
func normalizeError(err error) (int, string, any) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.StatusCode
		if status <= 0 {
			status = fiber.StatusInternalServerError
		}
		msg := appErr.Message
		if msg == "" {
			msg = response.DefaultMessageForStatus(status)
		}
		data := response.ErrorData{Reason: appErr.Reason, Detail: appErr.Detail}

		switch {
		case status == fiber.StatusBadGateway || status == fiber.StatusServiceUnavailable:
			return status, msg, data
		case status >= 500:
			return fiber.StatusInternalServerError, response.MessageInternalServerError,
				response.ErrorData{Reason: response.ReasonInternal}
		}
		return status, msg, data
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status := fiberErr.Code
		if status <= 0 || status >= 500 {
			return fiber.StatusInternalServerError, response.MessageInternalServerError,
				response.ErrorData{Reason: response.ReasonInternal}
		}
		msg := fiberErr.Message
		if msg == "" {
			msg = response.DefaultMessageForStatus(status)
		}
		reason := response.ReasonInvalidRequest
		if status == fiber.StatusNotFound {
			reason = response.ReasonNotFound
		}
		return status, msg, response.ErrorData{Reason: reason}
	}

	return fiber.StatusInternalServerError, response.MessageInternalServerError,
		response.ErrorData{Reason: response.ReasonInternal}
}
