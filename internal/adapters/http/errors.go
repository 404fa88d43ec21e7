package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/usecases"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, conflict, internal_error
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusConflict, "conflict", msg)
}

// errFromUsecase maps use case sentinel errors onto status codes.
func errFromUsecase(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, usecases.ErrProjectNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, usecases.ErrProjectExists):
		return errConflict(c, err.Error())
	case errors.Is(err, usecases.ErrInvalidInput), errors.Is(err, domain.ErrInvalid):
		return errBadRequest(c, err.Error())
	default:
		return errInternal(c, err.Error())
	}
}
