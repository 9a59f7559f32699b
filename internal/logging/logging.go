package logging

import "go.uber.org/zap"

// Logger is the global logger instance for the application.
var Logger *zap.SugaredLogger

func init() {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	Logger = logger.Sugar()
}

// Named returns a sugared logger tagged with component, e.g. Named("supervisor").
// Prefer this over the package-level helpers inside a single component so log
// lines carry their origin without repeating it at every call site.
func Named(component string) *zap.SugaredLogger {
	return Logger.Named(component)
}

// Top-level helpers for package alias usage.
func Infof(format string, args ...interface{})  { Logger.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { Logger.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { Logger.Errorf(format, args...) }
func Debugf(format string, args ...interface{}) { Logger.Debugf(format, args...) }
func Fatalf(format string, args ...interface{}) { Logger.Fatalf(format, args...) }
