package security

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(HeadersMiddleware(HeadersConfig{AllowedOrigins: ParseOrigins("https://policies.example.edu, *")}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)

	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "https://policies.example.edu")
	assert.Equal(t, "cross-origin", resp.Header.Get("Cross-Origin-Resource-Policy"))
}

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, ParseOrigins("*"))
	assert.Equal(t, []string{"https://a.edu", "https://b.edu"}, ParseOrigins("https://a.edu, https://b.edu,"))
}
