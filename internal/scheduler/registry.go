// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/criminology-go/internal/store"
)

var (
	// ErrJobNotFound is returned for an unknown source:name pair.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidSchedule is returned for a cron expression that does not parse.
	ErrInvalidSchedule = errors.New("invalid cron expression")
	// ErrNoManualTrigger is returned when a job may only run on its schedule.
	ErrNoManualTrigger = errors.New("manual trigger not available")
)

// registeredJob holds metadata about a registered cron job.
type registeredJob struct {
	source          string
	name            string
	description     string
	defaultSchedule string
	schedule        string // effective schedule (override or default)
	entryID         cron.EntryID
	jobFunc         func()
	run             func(ctx context.Context) error
	manual          bool
}

// JobInfo is the public view of a registered job.
type JobInfo struct {
	Source          string
	Name            string
	Description     string
	DefaultSchedule string
	Schedule        string
	IsOverridden    bool
	LastRun         time.Time
	NextRun         time.Time
	CanTrigger      bool
}

// Key returns "source:name".
func (j JobInfo) Key() string {
	return jobKey(j.Source, j.Name)
}

// Registry tracks the jobs of one cron instance and persists schedule
// overrides made from the admin UI.
type Registry struct {
	queries *store.Queries
	cron    *cron.Cron
	logger  *slog.Logger
	mu      sync.RWMutex
	jobs    map[string]*registeredJob
}

// NewRegistry creates a registry for jobs of c.
func NewRegistry(db *store.DB, c *cron.Cron, logger *slog.Logger) *Registry {
	return &Registry{
		queries: store.New(db),
		cron:    c,
		logger:  logger,
		jobs:    make(map[string]*registeredJob),
	}
}

func jobKey(source, name string) string {
	return source + ":" + name
}

// ValidateSchedule checks a standard five-field cron expression or a
// descriptor such as "@daily".
func ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSchedule, expr, err)
	}
	return nil
}

// effectiveSchedule returns the stored override, or def.
func (r *Registry) effectiveSchedule(source, name, def string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	override, err := r.queries.GetSchedulerOverride(ctx, source, name)
	if err != nil || override == "" {
		return def
	}
	if err := ValidateSchedule(override); err != nil {
		r.logger.Warn("ignoring stored schedule override", "job", jobKey(source, name), "error", err)
		return def
	}
	return override
}

// add schedules job with its effective schedule and records it.
func (r *Registry) add(job *registeredJob) error {
	if err := ValidateSchedule(job.defaultSchedule); err != nil {
		return err
	}
	job.schedule = r.effectiveSchedule(job.source, job.name, job.defaultSchedule)

	entryID, err := r.cron.AddFunc(job.schedule, job.jobFunc)
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", jobKey(job.source, job.name), err)
	}
	job.entryID = entryID

	r.mu.Lock()
	r.jobs[jobKey(job.source, job.name)] = job
	r.mu.Unlock()

	r.logger.Debug("registered scheduled job", "job", jobKey(job.source, job.name), "schedule", job.schedule)
	return nil
}

// List returns all registered jobs sorted by source then name.
func (r *Registry) List() []JobInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]JobInfo, 0, len(r.jobs))
	for _, job := range r.jobs {
		entry := r.cron.Entry(job.entryID)
		result = append(result, JobInfo{
			Source:          job.source,
			Name:            job.name,
			Description:     job.description,
			DefaultSchedule: job.defaultSchedule,
			Schedule:        job.schedule,
			IsOverridden:    job.schedule != job.defaultSchedule,
			LastRun:         entry.Prev,
			NextRun:         entry.Next,
			CanTrigger:      job.manual,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Source != result[j].Source {
			return result[i].Source < result[j].Source
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// TriggerNow runs a job immediately and returns its error.
func (r *Registry) TriggerNow(ctx context.Context, source, name string) error {
	r.mu.RLock()
	job, ok := r.jobs[jobKey(source, name)]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobKey(source, name))
	}
	if !job.manual {
		return fmt.Errorf("%w: %s", ErrNoManualTrigger, jobKey(source, name))
	}

	r.logger.Info("manually triggering job", "job", jobKey(source, name))
	return job.run(ctx)
}

// UpdateSchedule reschedules a job and persists the override.
func (r *Registry) UpdateSchedule(ctx context.Context, source, name, schedule string) error {
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobKey(source, name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobKey(source, name))
	}
	if err := r.reschedule(job, schedule); err != nil {
		return err
	}

	if err := r.queries.UpsertSchedulerOverride(ctx, source, name, schedule, time.Now().UTC()); err != nil {
		return fmt.Errorf("saving schedule override: %w", err)
	}

	r.logger.Info("updated job schedule", "job", jobKey(source, name), "schedule", schedule)
	return nil
}

// ResetSchedule removes the override and restores the default schedule.
func (r *Registry) ResetSchedule(ctx context.Context, source, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobKey(source, name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobKey(source, name))
	}
	if job.schedule != job.defaultSchedule {
		if err := r.reschedule(job, job.defaultSchedule); err != nil {
			return err
		}
	}

	if err := r.queries.DeleteSchedulerOverride(ctx, source, name); err != nil {
		return fmt.Errorf("removing schedule override: %w", err)
	}

	r.logger.Info("reset job schedule to default", "job", jobKey(source, name), "schedule", job.defaultSchedule)
	return nil
}

// reschedule swaps the cron entry of job. The caller holds r.mu.
func (r *Registry) reschedule(job *registeredJob, schedule string) error {
	r.cron.Remove(job.entryID)
	entryID, err := r.cron.AddFunc(schedule, job.jobFunc)
	if err != nil {
		restored, restoreErr := r.cron.AddFunc(job.schedule, job.jobFunc)
		if restoreErr != nil {
			return fmt.Errorf("restoring schedule after update failure: %w (original: %w)", restoreErr, err)
		}
		job.entryID = restored
		return fmt.Errorf("applying schedule: %w", err)
	}
	job.entryID = entryID
	job.schedule = schedule
	return nil
}
