package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"inkwell/internal/apperr"
	"inkwell/internal/models"
)

// UserIDHeader carries the authenticated user id set by the upstream gateway
const UserIDHeader = "X-User-ID"

var validate = validator.New()

// bind parses the request into dst (query string for GET and DELETE, JSON
// body otherwise) and checks its validate tags
func bind(c *fiber.Ctx, dst any) error {
	var err error
	switch c.Method() {
	case fiber.MethodGet, fiber.MethodDelete:
		err = c.QueryParser(dst)
	default:
		err = c.BodyParser(dst)
	}
	if err != nil {
		return apperr.Validation("invalid request: %v", err)
	}

	if err := validate.Struct(dst); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apperr.Validation("invalid request: %v", err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatFieldError(e))
	}
	return apperr.Validation("%s", strings.Join(messages, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// respondError maps a classified error onto its status code
func respondError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()

	message := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	switch kind {
	case apperr.KindTransient:
		log.Printf("⚠️  [HTTP] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{
			"error":     "Service temporarily unavailable, please retry",
			"retryable": true,
		})
	case apperr.KindUnknown:
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// queryValues copies the query string, keeping repeated keys such as category
func queryValues(c *fiber.Ctx) url.Values {
	values := url.Values{}
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		values.Add(string(key), string(value))
	})
	return values
}

func userID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(UserIDHeader))
}

func visitor(c *fiber.Ctx) models.VisitorIdentity {
	return models.VisitorIdentity{
		IPAddress: c.IP(),
		UserID:    userID(c),
	}
}
