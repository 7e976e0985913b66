// -----------------------------------------------------------------------
// Last Modified: Wednesday, 26th August 2026 08:15:47 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// jobEntry is one registered maintenance job
type jobEntry struct {
	name        string
	schedule    string
	description string
	cronID      cron.EntryID
	lastRun     time.Time
	lastError   string
}

// Service runs registered maintenance jobs on cron schedules
type Service struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	mu      sync.Mutex
	jobs    map[string]*jobEntry
	running bool
}

func NewService(logger arbor.ILogger) interfaces.SchedulerService {
	return &Service{
		cron:   cron.New(),
		logger: logger,
		jobs:   make(map[string]*jobEntry),
	}
}

// RegisterJob schedules a named handler. Handler panics are contained so a
// bad maintenance job cannot take the scheduler down.
func (s *Service) RegisterJob(name, schedule, description string, handler func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s is already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.run(entry, handler)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
	}
	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job", name).
		Str("schedule", schedule).
		Str("description", description).
		Msg("Scheduled job registered")
	return nil
}

func (s *Service) run(entry *jobEntry, handler func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job", entry.name).Msgf("Scheduled job panicked: %v", r)
			s.mu.Lock()
			entry.lastError = fmt.Sprintf("panic: %v", r)
			s.mu.Unlock()
		}
	}()

	start := time.Now()
	s.logger.Debug().Str("job", entry.name).Msg("Scheduled job starting")

	err := handler()

	s.mu.Lock()
	entry.lastRun = start
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).Str("job", entry.name).Msg("Scheduled job failed")
		return
	}
	s.logger.Info().
		Str("job", entry.name).
		Dur("duration", time.Since(start)).
		Msg("Scheduled job finished")
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs to finish
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
