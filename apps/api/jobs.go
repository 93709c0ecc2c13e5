package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/schooldriver/schooldriver/core"
)

// codePurger is implemented by parent.Service.
type codePurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// scheduler runs the periodic maintenance jobs of the API process.
type scheduler struct {
	cron    *cron.Cron
	logger  core.Logger
	timeout time.Duration
}

func newScheduler(logger core.Logger) *scheduler {
	return &scheduler{
		cron:    cron.New(),
		logger:  logger,
		timeout: time.Minute,
	}
}

// register adds the jobs of conf.Jobs; an empty spec disables its job.
func (s *scheduler) register(conf core.JobsConfig, purger codePurger) error {
	if conf.PurgeCodesSpec == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(conf.PurgeCodesSpec, s.purgeCodes(purger)); err != nil {
		return errors.Wrapf(err, "registering purge codes job %q", conf.PurgeCodesSpec)
	}
	return nil
}

func (s *scheduler) purgeCodes(purger codePurger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := purger.PurgeExpired(ctx); err != nil {
			s.logger.Error(fmt.Sprintf("purge codes job: %v", err), err)
		}
	}
}

func (s *scheduler) start() {
	s.cron.Start()
	s.logger.Info(fmt.Sprintf("scheduler started with %d jobs", len(s.cron.Entries())))
}

// stop waits for running jobs to complete, or for ctx to be done.
func (s *scheduler) stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stopped before jobs completed")
	}
}
