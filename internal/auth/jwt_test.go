package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

const testJWTSecret = "test-jwt-secret"

func TestSignAndParse(t *testing.T) {
	token, err := SignJWT(testJWTSecret, "ops@sentry.io", "operator", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT failed: %v", err)
	}
	claims, err := ParseJWT(testJWTSecret, token)
	if err != nil {
		t.Fatalf("ParseJWT failed: %v", err)
	}
	if claims.Subject != "ops@sentry.io" || claims.Role != "operator" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParse_WrongSecret(t *testing.T) {
	token, err := SignJWT(testJWTSecret, "ops@sentry.io", "operator", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT failed: %v", err)
	}
	if _, err := ParseJWT("other-secret", token); err == nil {
		t.Fatal("expected verification failure")
	}
}

func TestParse_Expired(t *testing.T) {
	token, err := SignJWT(testJWTSecret, "ops@sentry.io", "operator", -time.Minute)
	if err != nil {
		t.Fatalf("SignJWT failed: %v", err)
	}
	if _, err := ParseJWT(testJWTSecret, token); err == nil {
		t.Fatal("expected expiry failure")
	}
}

func TestSign_EmptySecret(t *testing.T) {
	if _, err := SignJWT("", "sub", "", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func authApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/protected", RequireAuth(secret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"subject": c.Locals(LocalSubject)})
	})
	return app
}

func TestRequireAuth(t *testing.T) {
	app := authApp(testJWTSecret)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", resp.StatusCode)
	}

	token, err := SignJWT(testJWTSecret, "ops@sentry.io", "operator", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT failed: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("valid token: expected 200, got %d", resp.StatusCode)
	}
}

func TestRequireAuth_NotConfigured(t *testing.T) {
	app := authApp("")

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no secret is configured, got %d", resp.StatusCode)
	}
}
