package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/mdtro/gitbot/internal/gitx"
)

type stubReverter struct {
	res  gitx.RevertResult
	err  error
	shas []string
}

func (s *stubReverter) Revert(ctx context.Context, sha, requester string) (gitx.RevertResult, error) {
	s.shas = append(s.shas, sha)
	return s.res, s.err
}

func revertApp(secret string, r Reverter) *fiber.App {
	app := fiber.New()
	h := NewRevertHandler(secret, map[string]Reverter{"getsentry": r})
	app.Post("/api/revert", h.Revert())
	return app
}

func postRevert(t *testing.T, app *fiber.App, body []byte, signature string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/revert", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestRevert_Success(t *testing.T) {
	stub := &stubReverter{res: gitx.RevertResult{
		Reason:    `Reverted: fix(search): correct grammar parser (#26554)`,
		RevertSHA: "cafe1234",
	}}
	app := revertApp(testSecret, stub)

	body := []byte(`{"repo": "getsentry", "sha": "abc123", "name": "jane"}`)
	resp := postRevert(t, app, body, sign(testSecret, body))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	var out struct {
		Reason    string `json:"reason"`
		RevertSHA string `json:"revert_sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.RevertSHA != "cafe1234" {
		t.Fatalf("unexpected revert sha %q", out.RevertSHA)
	}
	if len(stub.shas) != 1 || stub.shas[0] != "abc123" {
		t.Fatalf("unexpected revert calls %v", stub.shas)
	}
}

func TestRevert_InvalidSignature(t *testing.T) {
	stub := &stubReverter{}
	app := revertApp(testSecret, stub)

	body := []byte(`{"repo": "getsentry", "sha": "abc123"}`)
	resp := postRevert(t, app, body, "sha256=deadbeef")
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if len(stub.shas) != 0 {
		t.Fatal("unverified requests must not revert anything")
	}
}

func TestRevert_NoSecretConfigured(t *testing.T) {
	app := revertApp("", &stubReverter{})
	body := []byte(`{"repo": "getsentry", "sha": "abc123"}`)
	resp := postRevert(t, app, body, sign(testSecret, body))
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestRevert_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"unknown repo", []byte(`{"repo": "unknown", "sha": "abc123"}`)},
		{"missing sha", []byte(`{"repo": "getsentry"}`)},
		{"invalid json", []byte(`{`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := revertApp(testSecret, &stubReverter{})
			resp := postRevert(t, app, tt.body, sign(testSecret, tt.body))
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestRevert_FailurePropagates(t *testing.T) {
	stub := &stubReverter{err: errors.New("revert --no-commit: exit status 1")}
	app := revertApp(testSecret, stub)

	body := []byte(`{"repo": "getsentry", "sha": "abc123"}`)
	resp := postRevert(t, app, body, sign(testSecret, body))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	var out struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Reason != "Failed to revert." {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
}
