// Package observability bundles logging and metrics initialization for the
// daemon entrypoint. It re-exports the logging helpers so main-level code
// has a single import.
package observability

import (
	"go.uber.org/zap"

	"github.com/gatewaylabs/ratelimit/pkg/observability/logging"
)

// InitLoggerFromEnv configures the global zap logger from the environment.
func InitLoggerFromEnv() (*zap.Logger, error) {
	return logging.InitFromEnv()
}

func Debugf(format string, args ...interface{}) { logging.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { logging.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { logging.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { logging.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { logging.Fatalf(format, args...) }
