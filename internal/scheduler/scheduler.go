// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the periodic maintenance jobs on a robfig/cron
// instance, independent of HTTP requests.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/criminology-go/internal/store"
)

// jobTimeout bounds a single scheduled run.
const jobTimeout = 10 * time.Minute

// Job describes a periodic task.
type Job struct {
	Source      string
	Name        string
	Description string
	Schedule    string // default schedule; the admin UI may override it
	Manual      bool   // may be triggered from the admin UI
	Run         func(ctx context.Context) error
}

// Scheduler owns the cron instance and its job registry.
type Scheduler struct {
	cron     *cron.Cron
	registry *Registry
	logger   *slog.Logger
}

// New creates a scheduler. Overlapping runs of the same job are skipped and
// panics are recovered.
func New(db *store.DB, logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return &Scheduler{
		cron:     c,
		registry: NewRegistry(db, c, logger),
		logger:   logger,
	}
}

// Registry returns the job registry for the admin UI.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Add registers job using its stored override if one exists.
func (s *Scheduler) Add(job Job) error {
	return s.registry.add(&registeredJob{
		source:          job.Source,
		name:            job.Name,
		description:     job.Description,
		defaultSchedule: job.Schedule,
		jobFunc:         s.wrap(job),
		run:             job.Run,
		manual:          job.Manual,
	})
}

func (s *Scheduler) wrap(job Job) func() {
	key := jobKey(job.Source, job.Name)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			s.logger.Error("scheduled job failed", "category", "scheduler", "job", key, "error", err)
			return
		}
		s.logger.Debug("scheduled job finished", "job", key, "duration", time.Since(start))
	}
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs still running")
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "category", "scheduler", "error", err)...)
}
