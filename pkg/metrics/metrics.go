// Package metrics is the bot's telemetry sink: fixed-name event counters
// exposed through the prometheus registry behind /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Event names, one per user-visible action branch.
const (
	EventAddedToChat           = "AddedToChat"
	EventUserRemoved           = "UserRemoved"
	EventStartCommand          = "StartCommand"
	EventGetListCommand        = "GetListCommand"
	EventIsBannedCommand       = "IsBannedCommand"
	EventAddUserCommand        = "AddUserCommand"
	EventRemoveUserCommand     = "RemoveUserCommand"
	EventUnknownCommand        = "UnknownCommand"
	EventNonAdminCommandIgnore = "NonAdminCommandIgnored"
	EventExportCompleted       = "ExportCompleted"
)

var Events = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "autoblock_events_total",
	Help: "Count of moderation events and handled commands by event name.",
}, []string{"event"})

// Register registers the event counters on the given registry (or the
// default if nil). Double registration is tolerated so tests can re-wire.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(Events); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}

// Count increments the named event counter. Fire-and-forget: there is no
// error surface and callers never block on it.
func Count(event string) {
	Events.WithLabelValues(event).Inc()
}
