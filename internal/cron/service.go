// Package cron schedules the engine's background jobs: sweeping idle open
// sessions and backfilling message embeddings. Both are optional; the
// engine is correct without them, they just tighten latencies.
package cron

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Job is one named scheduled task. Run receives a context that is
// cancelled when the service stops.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) (string, error)
}

type Service struct {
	mu      sync.Mutex
	jobs    []Job
	cron    *rcron.Cron
	cancel  context.CancelFunc
	started bool
}

func NewService() *Service {
	return &Service{}
}

// Register adds a job. Must be called before Start.
func (s *Service) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("cron: already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.cron = rcron.New()

	registered := 0
	for i := range s.jobs {
		job := s.jobs[i]
		if _, err := s.cron.AddFunc(job.Schedule, func() { s.execute(runCtx, job) }); err != nil {
			cancel()
			return fmt.Errorf("cron: register job %s (%s): %w", job.Name, job.Schedule, err)
		}
		registered++
	}

	s.cron.Start()
	s.started = true
	log.Printf("[cron] started with %d jobs", registered)
	return nil
}

func (s *Service) execute(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	result, err := job.Run(ctx)
	if err != nil {
		log.Printf("[cron] job %s error after %s: %v", job.Name, time.Since(started).Round(time.Millisecond), err)
		return
	}
	if result != "" {
		log.Printf("[cron] job %s: %s", job.Name, result)
	}
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.started = false
	log.Printf("[cron] stopped")
}
