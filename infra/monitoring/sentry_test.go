package monitoring

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kilianp07/eta/config"
	coremon "github.com/kilianp07/eta/core/monitoring"
)

func TestNewSentryMonitor_NoDSN(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.(coremon.NopMonitor); !ok {
		t.Fatalf("expected NopMonitor, got %T", m)
	}
}

func TestNewSentryMonitor_InvalidDSN(t *testing.T) {
	if _, err := NewSentryMonitor(config.SentryConfig{DSN: "://bad"}); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}

func TestSentryMonitor_Ignored(t *testing.T) {
	errInput := errors.New("invalid input")
	m := &sentryMonitor{ignore: []error{errInput}}
	if !m.ignored(fmt.Errorf("wrap: %w", errInput)) {
		t.Fatal("wrapped ignored error should be dropped")
	}
	if m.ignored(errors.New("other")) {
		t.Fatal("unrelated error should be reported")
	}
}
