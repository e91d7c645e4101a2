package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/haulage/config"
	coremon "github.com/kilianp07/haulage/core/monitoring"
)

// ServiceTag is set on every event reported by the dispatch service.
const ServiceTag = "haulage"

// NewSentryMonitor initializes Sentry and tags the global scope with the
// service name and the configured static tags. An empty DSN yields a
// NopMonitor.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
	})
	if err != nil {
		return nil, err
	}
	tags := scopeTags(cfg)
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
	})
	return &sentryMonitor{hub: sentry.CurrentHub()}, nil
}

// scopeTags merges the configured tags with the service tag. The service
// tag cannot be overridden.
func scopeTags(cfg config.SentryConfig) map[string]string {
	tags := make(map[string]string, len(cfg.Tags)+1)
	for k, v := range cfg.Tags {
		tags[k] = v
	}
	tags["service"] = ServiceTag
	return tags
}

type sentryMonitor struct {
	hub *sentry.Hub
}

// CaptureException reports err with per-call tags such as the job id or the
// failing component.
func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		s.hub.CaptureException(err)
	})
}

func (s *sentryMonitor) CapturePanic(v any) {
	s.hub.Recover(v)
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
