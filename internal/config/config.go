package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Env      string
	HTTPAddr string
	Log      string

	// When true every sync runs all the way through the bump but never
	// commits or pushes to the deploy repo.
	DryRun bool

	// Upstream repo whose push/pull_request events drive syncs.
	SourceRepo string
	// Ref that counts as the source repo's mainline (refs/heads/<branch>).
	SourceDefaultRef string

	// Downstream repo whose pinned source sha gets bumped.
	DeployRepo string
	// The deploy repo's default branch; mainline pushes land here.
	DeployBranch string
	// Long-lived local clone of the deploy repo.
	CheckoutPath string
	// Optional override for the bump script path inside the deploy repo.
	BumpPath string

	// Literal token in a PR description that opts the PR into branch syncs.
	Marker string

	CommitterName  string
	CommitterEmail string

	DBURL       string
	AutoMigrate bool

	NATSURL string

	// Protects the operator endpoints (GET /deliveries).
	JWTSecret string
}

const DefaultMarker = "#sync-getsentry"

func Load() Config {
	env := getEnv("APP_ENV", "development")
	logLevel := getEnv("LOG_LEVEL", "info")

	// Prefer HTTP_ADDR if provided, otherwise build it from PORT.
	httpAddr := os.Getenv("HTTP_ADDR")
	if strings.TrimSpace(httpAddr) == "" {
		port := getEnv("PORT", "8080")
		httpAddr = ":" + port
	}

	deployBranch := getEnv("DEPLOY_BRANCH", "master")

	return Config{
		Env:      env,
		HTTPAddr: httpAddr,
		Log:      logLevel,

		DryRun: getEnvBool("DRY_RUN", env != "production"),

		SourceRepo:       getEnv("SOURCE_REPO", "getsentry/sentry"),
		SourceDefaultRef: getEnv("SOURCE_DEFAULT_REF", "refs/heads/master"),

		DeployRepo:   getEnv("DEPLOY_REPO", "getsentry/getsentry"),
		DeployBranch: deployBranch,
		CheckoutPath: getEnv("DEPLOY_CHECKOUT_PATH", "/tmp/getsentry"),
		BumpPath:     getEnv("GITBOT_BUMP_PATH", ""),

		Marker: getEnv("GITBOT_MARKER", DefaultMarker),

		CommitterName:  getEnv("COMMITTER_NAME", "Sentry Bot"),
		CommitterEmail: getEnv("COMMITTER_EMAIL", "bot@sentry.io"),

		DBURL:       getEnv("DB_URL", ""),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", false),

		NATSURL: getEnv("NATS_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
	}
}

// Validate enforces the repo guard rails: only the production instance may
// point at the real repos, and production may point at nothing else. Two
// instances pushing to the real deploy repo would race each other.
func (c Config) Validate() error {
	const (
		prodSource = "getsentry/sentry"
		prodDeploy = "getsentry/getsentry"
	)
	if c.Env == "production" {
		if c.SourceRepo != prodSource || c.DeployRepo != prodDeploy {
			return fmt.Errorf("production must track %s -> %s, got %s -> %s",
				prodSource, prodDeploy, c.SourceRepo, c.DeployRepo)
		}
		return nil
	}
	if c.DeployRepo == prodDeploy {
		return fmt.Errorf("%s environment must not push to %s", c.Env, prodDeploy)
	}
	return nil
}

func (c Config) IsDev() bool {
	return c.Env == "development"
}

func (c Config) LogLevel() slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(c.Log)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		// Allow numeric levels for easy tweaking (-4 debug, 0 info, 4 warn, 8 error).
		if n, err := strconv.Atoi(c.Log); err == nil {
			return slog.Level(n)
		}
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
