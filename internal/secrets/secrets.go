// Package secrets resolves the credentials gitbot needs at boot. Deployments
// mount each secret as a file and point an *_FILE env var at it; local dev
// exports the value directly. Either way secrets are read exactly once.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Provider hands out process credentials. Failures here are startup
// failures, never per-request ones.
type Provider interface {
	// GitHubToken authenticates pushes to the deploy repo.
	GitHubToken() (string, error)
	// WebhookSecret validates X-Hub-Signature-256 on webhook deliveries.
	WebhookSecret() (string, error)
	// APISecret validates X-Signature on the revert API.
	APISecret() (string, error)
}

// Env reads each secret from FOO_FILE (a mounted secret file) when set,
// falling back to FOO in the environment.
type Env struct{}

func (Env) GitHubToken() (string, error)   { return lookup("GITHUB_TOKEN") }
func (Env) WebhookSecret() (string, error) { return lookup("GITHUB_WEBHOOK_SECRET") }
func (Env) APISecret() (string, error)     { return lookup("GITBOT_API_SECRET") }

func lookup(name string) (string, error) {
	if path := strings.TrimSpace(os.Getenv(name + "_FILE")); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s_FILE: %w", name, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return strings.TrimSpace(os.Getenv(name)), nil
}

// Secrets is the resolved set, loaded once at startup.
type Secrets struct {
	GitHubToken   string
	WebhookSecret string
	APISecret     string
}

// Load resolves every secret. requireAll is set outside development, where
// an empty webhook or API secret would silently disable authentication.
func Load(p Provider, requireAll bool) (Secrets, error) {
	var s Secrets
	var err error
	if s.GitHubToken, err = p.GitHubToken(); err != nil {
		return Secrets{}, err
	}
	if s.WebhookSecret, err = p.WebhookSecret(); err != nil {
		return Secrets{}, err
	}
	if s.APISecret, err = p.APISecret(); err != nil {
		return Secrets{}, err
	}
	if requireAll {
		if s.WebhookSecret == "" {
			return Secrets{}, fmt.Errorf("empty GITHUB_WEBHOOK_SECRET")
		}
		if s.APISecret == "" {
			return Secrets{}, fmt.Errorf("empty GITBOT_API_SECRET")
		}
	}
	return s, nil
}
