// Package vmlog gives every component of the virtual memory
// subsystem a structured logger carrying its component name, so that
// eviction decisions, swap exhaustion, and teardown I/O failures can
// be correlated across packages without each one reinventing a
// logging convention.
package vmlog

import "github.com/sirupsen/logrus"

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// For returns a logger entry tagged with the given component name,
// e.g. vmlog.For("frame").WithField("vpage", v).Debug("evicted").
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// SetLevel adjusts the package-wide log verbosity; cmd/vmsim exposes
// this via a flag.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}
