package monitoring

import (
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/eta/config"
	coremon "github.com/kilianp07/eta/core/monitoring"
)

// NewSentryMonitor initializes Sentry using the provided configuration and
// returns a Monitor implementation. Errors matching one of ignore are
// dropped before they are sent.
func NewSentryMonitor(cfg config.SentryConfig, ignore ...error) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, err
	}
	return &sentryMonitor{ignore: ignore}, nil
}

type sentryMonitor struct {
	ignore []error
}

func (s *sentryMonitor) ignored(err error) bool {
	for _, target := range s.ignore {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil || s.ignored(err) {
		return
	}
	if len(tags) == 0 {
		sentry.CaptureException(err)
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

func (s *sentryMonitor) Recover() {
	if r := recover(); r != nil {
		sentry.CurrentHub().Recover(r)
		sentry.Flush(2 * time.Second)
		panic(r)
	}
}

func (s *sentryMonitor) Flush(timeout time.Duration) { sentry.Flush(timeout) }
