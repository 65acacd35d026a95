package services

import (
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
)

// runEvent is one update to the run report, with an optional progress event.
type runEvent struct {
	apply    func(*domain.RunReport)
	progress *driving.ProgressEvent
}

// aggregator is the only writer of the run report. Workers and the loading
// loop send updates; progress callbacks run on the aggregator goroutine.
type aggregator struct {
	report   *domain.RunReport
	progress driving.ProgressFunc
	events   chan runEvent
	done     chan struct{}
}

func newAggregator(report *domain.RunReport, progress driving.ProgressFunc) *aggregator {
	return &aggregator{
		report:   report,
		progress: progress,
		events:   make(chan runEvent, 64),
		done:     make(chan struct{}),
	}
}

func (a *aggregator) run() {
	defer close(a.done)
	for ev := range a.events {
		if ev.apply != nil {
			ev.apply(a.report)
		}
		if ev.progress != nil && a.progress != nil {
			a.progress(*ev.progress)
		}
	}
}

func (a *aggregator) send(apply func(*domain.RunReport), progress *driving.ProgressEvent) {
	a.events <- runEvent{apply: apply, progress: progress}
}

// close stops the aggregator once every sent update is applied.
func (a *aggregator) close() {
	close(a.events)
	<-a.done
}
