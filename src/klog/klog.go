// Package klog is the kernel's structured logger. Every subsystem is handed
// its own *zap.SugaredLogger via New rather than reaching for a package
// global, so tests can install a no-op logger and boot can wire a real one.
package klog

import "go.uber.org/zap"

// Logger is the subset of *zap.SugaredLogger the kernel packages use. Kept
// as an interface so subsystems don't import zap directly.
type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

// New returns a development-mode zap logger named for the subsystem, e.g.
// klog.New("proc"), klog.New("vm").
func New(subsystem string) Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return l.Sugar().Named(subsystem)
}

// Nop returns a logger that discards everything, for tests that don't want
// kernel log noise.
func Nop() Logger {
	return zap.NewNop().Sugar()
}
