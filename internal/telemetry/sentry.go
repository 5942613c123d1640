// Package telemetry reports unexpected errors to Sentry when a DSN is set.
package telemetry

import (
	"time"

	"anima/internal/config"
	"anima/internal/logger"

	"github.com/getsentry/sentry-go"
)

var enabled bool

// Init configures the Sentry client. Without a DSN reporting stays off and
// the returned flush is a no-op.
func Init(config *config.Config, logger *logger.Logger) (flush func(), err error) {
	if config.SentryDSN == "" {
		return func() {}, nil
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:         config.SentryDSN,
		Environment: config.Environment,
	})
	if err != nil {
		return func() {}, err
	}

	enabled = true
	logger.Info("Error reporting enabled for environment %s", config.Environment)
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureError reports err when reporting is enabled.
func CaptureError(err error) {
	if enabled && err != nil {
		sentry.CaptureException(err)
	}
}

// CapturePanic reports a recovered panic value when reporting is enabled.
func CapturePanic(v interface{}) {
	if enabled {
		sentry.CurrentHub().Recover(v)
	}
}
