package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestLoadRateLimitConfig(t *testing.T) {
	prod := LoadRateLimitConfig(10, false)
	if prod.WriteMax != 10 || prod.GlobalAPIMax != 300 {
		t.Errorf("Unexpected production limits: %+v", prod)
	}

	dev := LoadRateLimitConfig(10, true)
	if dev.WriteMax != 50 || dev.GlobalAPIMax != 1000 {
		t.Errorf("Unexpected development limits: %+v", dev)
	}

	if def := LoadRateLimitConfig(0, false); def.WriteMax != 60 {
		t.Errorf("Expected the default write limit, got %d", def.WriteMax)
	}
}

func TestWriteRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Post("/like", WriteRateLimiter(&RateLimitConfig{WriteMax: 2, WriteExpiration: time.Minute}), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	want := []int{fiber.StatusCreated, fiber.StatusCreated, fiber.StatusTooManyRequests}
	for i, status := range want {
		resp, err := app.Test(httptest.NewRequest("POST", "/like", nil))
		if err != nil {
			t.Fatalf("Request %d failed: %v", i, err)
		}
		if resp.StatusCode != status {
			t.Errorf("Request %d: expected %d, got %d", i, status, resp.StatusCode)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	app := fiber.New()
	app.Use(RequestLogger("X-User-ID"))
	app.Get("/ok", func(c *fiber.Ctx) error {
		if c.Locals("request_id") == nil {
			t.Error("Expected the request id in locals")
		}
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("Expected a generated request id")
	}

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if got := resp.Header.Get(RequestIDHeader); got != "upstream-id" {
		t.Errorf("Expected the upstream request id to be kept, got %q", got)
	}
}
