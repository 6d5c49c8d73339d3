// Package logging wires the process-wide logrus logger, per SPEC_FULL.md
// §10: one logrus.Logger per binary, structured fields by component,
// level chosen by verbosity.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the root logger for verbosity v (0=info, 1=debug, 2+=trace).
func New(v int) *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	switch {
	case v >= 2:
		log.SetLevel(logrus.TraceLevel)
	case v == 1:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// For returns a child entry scoped to one component, e.g.
// For(log, "objfs") or For(log, "replica").
func For(log *logrus.Logger, component string) *logrus.Entry {
	return log.WithField("component", component)
}

// WithInstance further scopes an entry to one replica/filesystem
// instance id, matching spec.md's "instance"/"fileid"/"uuid" fields.
func WithInstance(e *logrus.Entry, instance string) *logrus.Entry {
	return e.WithField("instance", instance)
}
