package workflow

import (
	"time"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
)

// EventKind classifies progress events.
type EventKind string

const (
	EventPhase         EventKind = "phase"
	EventRowSkipped    EventKind = "row_skipped"
	EventRowMalformed  EventKind = "row_malformed"
	EventRowSubmitted  EventKind = "row_submitted"
	EventRowResolved   EventKind = "row_resolved"
	EventRowUnresolved EventKind = "row_unresolved"
	EventWaiting       EventKind = "waiting"
	EventAborted       EventKind = "aborted"
	EventFinished      EventKind = "finished"
)

// Event is one progress notification. Row-level events carry the sheet row.
type Event struct {
	RunID      string
	Phase      constants.Phase
	Kind       EventKind
	Row        int
	Protocol   int64
	ShipmentID int64
	Count      int
	Delay      time.Duration
	Err        error
	At         time.Time
}

// Observer receives progress events synchronously, in order.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans out to several observers.
type Observers []Observer

func (os Observers) Observe(e Event) {
	for _, o := range os {
		if o != nil {
			o.Observe(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
