// Package sched runs the background reconciliation sweep. A crash of the
// orchestrator between provisioning and cleanup leaves billable machines and
// volumes behind with no job driving them; the reaper finds those through
// the provider's listing APIs and destroys them.
package sched

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"photovault-import/internal/domain"
	"photovault-import/internal/domain/model"
	"photovault-import/internal/domain/ports/adapter"
	"photovault-import/internal/domain/ports/repository"
	"photovault-import/internal/infra/metrics"
	"photovault-import/internal/usecase"
)

type Reaper struct {
	jobs   repository.ImportJobRepository
	prov   adapter.Provisioner
	spec   string
	minAge time.Duration
	cron   *cron.Cron
	log    *zerolog.Logger
}

func NewReaper(jobs repository.ImportJobRepository, prov adapter.Provisioner, spec string, minAge time.Duration, logger *zerolog.Logger) *Reaper {
	sub := logger.With().Str("component", "Reaper").Logger()
	return &Reaper{jobs: jobs, prov: prov, spec: spec, minAge: minAge, log: &sub}
}

func (r *Reaper) Start(ctx context.Context) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.spec, func() {
		if err := r.Sweep(ctx); err != nil {
			r.log.Error().Err(err).Msg("sweep failed")
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	r.log.Info().Str("schedule", r.spec).Msg("reaper started")
	return nil
}

func (r *Reaper) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Sweep destroys machines first, then volumes: a volume cannot be deleted
// while its machine still holds the attachment.
func (r *Reaper) Sweep(ctx context.Context) error {
	machines, err := r.prov.ListMachines(ctx)
	if err != nil {
		return err
	}
	for _, m := range machines {
		if !r.orphaned(ctx, m.Name, m.CreatedAt) {
			continue
		}
		if err := r.prov.DestroyMachine(ctx, m.ID); err != nil {
			r.log.Error().Err(err).Str("machine_id", m.ID).Msg("reap machine failed")
			continue
		}
		metrics.IncOrphanReaped("machine")
		r.log.Info().Str("machine_id", m.ID).Str("name", m.Name).Msg("orphaned machine destroyed")
	}

	volumes, err := r.prov.ListVolumes(ctx)
	if err != nil {
		return err
	}
	for _, v := range volumes {
		if !r.orphaned(ctx, v.Name, v.CreatedAt) {
			continue
		}
		if err := r.prov.DestroyVolume(ctx, v.ID); err != nil {
			r.log.Error().Err(err).Str("volume_id", v.ID).Msg("reap volume failed")
			continue
		}
		metrics.IncOrphanReaped("volume")
		r.log.Info().Str("volume_id", v.ID).Str("name", v.Name).Msg("orphaned volume destroyed")
	}
	return nil
}

// orphaned reports whether a provider resource belongs to no live job. A
// resource is live while its job exists in any status short of cleanup;
// resources of unknown age are only reaped once their job record says
// teardown already ran, so a job mid-provisioning is never raced.
func (r *Reaper) orphaned(ctx context.Context, resourceName string, createdAt time.Time) bool {
	jobID := usecase.JobIDFromResourceName(resourceName)
	if jobID == "" {
		// Not one of ours.
		return false
	}

	job, err := r.jobs.Find(ctx, jobID)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		// Job record expired or process crashed before the first save.
		// Require a known age so freshly-created resources are left alone.
		return !createdAt.IsZero() && time.Since(createdAt) > r.minAge
	case err != nil:
		r.log.Error().Err(err).Str("job_id", jobID).Msg("job lookup failed during sweep")
		return false
	}

	return job.Status == model.JobStatusCleanup
}
