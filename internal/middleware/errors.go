package middleware

import (
	"log"

	domainErrors "upilink/internal/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// ErrorHandler renders every error returned by a handler as
// {"error": message, "code": code}. Internal detail stays in the log.
func ErrorHandler(c *fiber.Ctx, err error) error {
	requestID, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)

	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error": fe.Message,
			"code":  fiberErrorCode(fe.Code),
		})
	}

	de, ok := domainErrors.As(err)
	if !ok {
		log.Printf("[%s] unhandled error on %s %s: %v", requestID, c.Method(), c.Path(), err)
		de = domainErrors.ErrInternal
	}

	status := de.Kind.HTTPStatus()
	message := de.Message
	switch de.Kind {
	case domainErrors.KindInternal:
		log.Printf("[%s] internal error on %s %s: %v", requestID, c.Method(), c.Path(), err)
		message = domainErrors.ErrInternal.Message
	case domainErrors.KindExternalService:
		log.Printf("[%s] dependency failure on %s %s: %v", requestID, c.Method(), c.Path(), err)
		message = domainErrors.ErrExternalService.Message
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  de.Code,
	})
}

func fiberErrorCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusBadRequest:
		return "INVALID_REQUEST"
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	}
	if status >= 500 {
		return "INTERNAL_ERROR"
	}
	return "REQUEST_FAILED"
}
