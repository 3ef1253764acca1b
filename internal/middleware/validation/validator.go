package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type Config struct {
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects write requests whose body is not JSON.
func Middleware(cfg Config) fiber.Handler {
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType == "" || len(c.Body()) == 0 {
			return c.Next()
		}
		for _, allowed := range cfg.AllowedContentTypes {
			if strings.Contains(contentType, allowed) {
				return c.Next()
			}
		}

		cfg.Logger.Warn("Unsupported content type",
			zap.String("content_type", contentType),
			zap.String("path", c.Path()),
		)
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": "Unsupported content type",
		})
	}
}

// FieldError is one failed constraint, keyed by the JSON field name.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s failed %s", f.Field, f.Rule)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Struct validates v by its `validate` tags.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Error{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field: fe.Field(),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return out
}

// ParseBody decodes the JSON body into dst, strips NUL bytes from string input and
// validates it. On failure the 400 response has already been written and the
// returned error is what the handler should return.
func ParseBody(c *fiber.Ctx, dst any) (bool, error) {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(dst); err != nil {
			return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	if err := Struct(dst); err != nil {
		var verr *Error
		if errors.As(err, &verr) {
			return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "Invalid request",
				"fields": verr.Fields,
			})
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return true, nil
}

func Sanitize(input string) string {
	input = strings.TrimSpace(input)
	return strings.ReplaceAll(input, "\x00", "")
}
