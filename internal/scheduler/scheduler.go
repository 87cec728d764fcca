package scheduler

import (
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const Weekly = 7 * 24 * time.Hour

// Scheduler keeps at most one recurring cron entry per job name.
type Scheduler struct {
	cron *cron.Cron
	jobs map[string]cron.EntryID
	mu   sync.Mutex
}

func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		jobs: make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("[scheduler] started")
}

// Stop halts future firings and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// EnsureScheduled registers job under name to fire now and then every period.
// It reports false and leaves the existing entry alone when name is taken.
func (s *Scheduler) EnsureScheduled(name string, period time.Duration, job func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return false
	}

	s.jobs[name] = s.cron.Schedule(&everyFromNow{period: period}, cron.FuncJob(job))
	log.Printf("[scheduler] registered %s every %s", name, period)
	return true
}

func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		log.Printf("[scheduler] cancelled %s", name)
	}
}

func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.jobs[name]
	return exists
}

// Next returns the next firing time of name once the cron runner has planned it.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	entryID, exists := s.jobs[name]
	s.mu.Unlock()
	if !exists {
		return time.Time{}, false
	}

	entry := s.cron.Entry(entryID)
	if !entry.Valid() {
		return time.Time{}, false
	}
	return entry.Next, true
}

// everyFromNow fires at the first time it is asked about, then every period.
// cron only calls Next from its runner goroutine.
type everyFromNow struct {
	period  time.Duration
	started bool
}

func (e *everyFromNow) Next(t time.Time) time.Time {
	if !e.started {
		e.started = true
		return t
	}
	return t.Add(e.period)
}
