// Package klog is the engine-wide structured logger. It wraps
// charmbracelet/log the way the teacher module wraps its audio backend:
// a small adapter type, not a reimplementation.
package klog

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	once    sync.Once
	logger  *log.Logger
	current = log.InfoLevel
)

func get() *log.Logger {
	once.Do(func() {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix:          "kunquat",
			ReportTimestamp: false,
		})
		logger.SetLevel(current)
	})
	return logger
}

// SetLevel adjusts verbosity. Until it is called, the level is
// log.InfoLevel.
func SetLevel(level log.Level) {
	current = level
	get().SetLevel(level)
}

func Debugf(format string, args ...any) { get().Debugf(format, args...) }
func Infof(format string, args ...any)  { get().Infof(format, args...) }
func Warnf(format string, args ...any)  { get().Warnf(format, args...) }
func Errorf(format string, args ...any) { get().Errorf(format, args...) }
