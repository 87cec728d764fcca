package tracker

import (
	"time"

	"telemetry-tracker/internal/scheduler"
)

const WeeklyJob = "telemetry_weekly"

type JobScheduler interface {
	EnsureScheduled(name string, period time.Duration, job func()) bool
	Cancel(name string)
}

type PingSender interface {
	SendPing(event Event)
}

// Lifecycle stands in for the host's activation and deactivation hooks.
type Lifecycle struct {
	scheduler JobScheduler
	sender    PingSender
}

func NewLifecycle(sched JobScheduler, sender PingSender) *Lifecycle {
	return &Lifecycle{scheduler: sched, sender: sender}
}

func (l *Lifecycle) OnActivate() {
	l.scheduler.EnsureScheduled(WeeklyJob, scheduler.Weekly, func() {
		l.sender.SendPing(EventWeeklyPing)
	})
	l.sender.SendPing(EventActivated)
}

func (l *Lifecycle) OnDeactivate() {
	l.scheduler.Cancel(WeeklyJob)
	l.sender.SendPing(EventDeactivated)
}
