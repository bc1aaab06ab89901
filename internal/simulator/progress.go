package simulator

import (
	"github.com/sirupsen/logrus"
)

// ProgressObserver is notified once per completed trajectory. Calls are
// serialized; completed counts from 1 to total. Observers cannot affect
// results.
type ProgressObserver interface {
	OnRunComplete(runID, completed, total int)
}

// ProgressFunc adapts a function to ProgressObserver.
type ProgressFunc func(runID, completed, total int)

// OnRunComplete calls f.
func (f ProgressFunc) OnRunComplete(runID, completed, total int) {
	f(runID, completed, total)
}

// LogProgress reports progress through logrus at a fixed percentage stride.
type LogProgress struct {
	logger *logrus.Logger
	every  int
}

// NewLogProgress logs every n-th completion plus the final one.
func NewLogProgress(logger *logrus.Logger, every int) *LogProgress {
	if every < 1 {
		every = 1
	}
	return &LogProgress{logger: logger, every: every}
}

// OnRunComplete implements ProgressObserver.
func (p *LogProgress) OnRunComplete(runID, completed, total int) {
	if completed%p.every != 0 && completed != total {
		return
	}
	p.logger.WithFields(logrus.Fields{
		"run_id":    runID,
		"completed": completed,
		"total":     total,
	}).Info("Simulation progress")
}
