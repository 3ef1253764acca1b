package ratelimit

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_PerKeyBurst(t *testing.T) {
	rl := New(Config{RequestsPerSecond: 0.001, Burst: 2})
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestMiddleware(t *testing.T) {
	rl := New(Config{RequestsPerSecond: 0.001, Burst: 1})
	defer rl.Stop()

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	send := func(session string) int {
		req := httptest.NewRequest("GET", "/", nil)
		if session != "" {
			req.Header.Set("X-Session-ID", session)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, send("s1"))
	assert.Equal(t, fiber.StatusTooManyRequests, send("s1"))
	assert.Equal(t, fiber.StatusOK, send("s2"))
}
