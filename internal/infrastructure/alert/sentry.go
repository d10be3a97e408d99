package alert

import (
	"fmt"
	"time"

	"threadspost/internal/config"

	"github.com/getsentry/sentry-go"
)

// Init enables Sentry reporting. Without a DSN every Capture call is a no-op.
func Init(cfg *config.SentryConfig) error {
	if cfg.DSN == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
	}); err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	return nil
}

// Capture reports err with the given tags, e.g. {"job": "dispatch", "post_id": "..."}.
func Capture(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

func Flush() {
	sentry.Flush(2 * time.Second)
}
