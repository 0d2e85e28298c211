// File: internal/usecase/import_uc.go
package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"photovault-import/internal/domain"
	"photovault-import/internal/domain/model"
	"photovault-import/internal/domain/ports/adapter"
	"photovault-import/internal/domain/ports/repository"
	"photovault-import/internal/infra/metrics"
	"photovault-import/internal/infra/webhook"
	"photovault-import/internal/infra/worker"
)

// Compile-time check
var _ ImportUseCase = (*importUC)(nil)

// DriveFile is one source file the worker will fetch from the user's drive.
type DriveFile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
}

// Workload describes what a job imports.
type Workload struct {
	Files []DriveFile
}

// StartResult is returned to the caller once provisioning succeeded.
type StartResult struct {
	JobID     string
	MachineID string
	VolumeID  string
}

// WebhookPayload is the wire contract shared with the worker image. The
// signature travels in a transport header and is computed over the
// canonicalized JSON body, so field order here is irrelevant.
type WebhookPayload struct {
	JobID    string `json:"jobId"`
	Phase    string `json:"phase"`
	Progress struct {
		Current     int    `json:"current"`
		Total       int    `json:"total"`
		CurrentFile string `json:"currentFile,omitempty"`
	} `json:"progress"`
	BytesDownloaded *int64   `json:"bytesDownloaded,omitempty"`
	TotalBytes      *int64   `json:"totalBytes,omitempty"`
	PhotosImported  *int     `json:"photosImported,omitempty"`
	AlbumsFound     *int     `json:"albumsFound,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

type ImportUseCase interface {
	// Start provisions a worker machine and volume for the workload and
	// returns once provisioning succeeded or failed, not when the import
	// finishes.
	Start(ctx context.Context, ownerID string, workload Workload) (*StartResult, error)
	// HandleWebhook authenticates and merges one progress callback.
	HandleWebhook(ctx context.Context, signature string, payload []byte) error
	Progress(ctx context.Context, jobID string) (*model.ImportProgress, error)
	// Cancel is an idempotent no-op for unknown or already-terminal jobs.
	Cancel(ctx context.Context, jobID string) error
	// Cleanup releases the job's machine, volume and worker credential. Safe
	// to call repeatedly.
	Cleanup(ctx context.Context, jobID string) error
}

type importUC struct {
	jobs        repository.ImportJobRepository
	locks       repository.JobLocker
	tokens      repository.TokenStore
	prov        adapter.Provisioner
	creds       adapter.CredentialIssuer
	pool        *worker.Pool
	webhookURL  string
	resources   adapter.MachineResources
	settleDelay time.Duration
	log         *zerolog.Logger
}

func NewImportUseCase(
	jobs repository.ImportJobRepository,
	locks repository.JobLocker,
	tokens repository.TokenStore,
	prov adapter.Provisioner,
	creds adapter.CredentialIssuer,
	pool *worker.Pool,
	webhookURL string,
	resources adapter.MachineResources,
	settleDelay time.Duration,
	logger *zerolog.Logger,
) *importUC {
	sub := logger.With().Str("component", "ImportUC").Logger()
	return &importUC{
		jobs:        jobs,
		locks:       locks,
		tokens:      tokens,
		prov:        prov,
		creds:       creds,
		pool:        pool,
		webhookURL:  webhookURL,
		resources:   resources,
		settleDelay: settleDelay,
		log:         &sub,
	}
}

// Resource naming shared with the orphan reaper: both directions must agree
// so listed provider resources can be mapped back to job ids.

func MachineName(jobID string) string { return "importer-" + jobID }

func VolumeName(jobID string) string { return "importer_" + jobID }

// JobIDFromResourceName inverts MachineName/VolumeName. Returns "" for
// resources this service does not own.
func JobIDFromResourceName(name string) string {
	if id, ok := strings.CutPrefix(name, "importer-"); ok {
		return id
	}
	if id, ok := strings.CutPrefix(name, "importer_"); ok {
		return id
	}
	return ""
}

const lockTTL = 30 * time.Second

func (uc *importUC) withJobLock(ctx context.Context, jobID string, fn func() error) error {
	key := "import_job_lock:" + jobID
	token, err := uc.locks.TryLock(ctx, key, lockTTL)
	if err != nil {
		return err
	}
	defer func() { _ = uc.locks.Unlock(ctx, key, token) }()
	return fn()
}

func (uc *importUC) Start(ctx context.Context, ownerID string, workload Workload) (*StartResult, error) {
	if ownerID == "" || len(workload.Files) == 0 {
		return nil, domain.ErrInvalidArgument
	}

	// Prerequisites: the user must have linked an account before a worker
	// can be given drive access.
	tok, err := uc.tokens.Find(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	jobID := strings.ToLower(ulid.Make().String())
	secret, err := newWebhookSecret()
	if err != nil {
		return nil, err
	}

	cred, err := uc.creds.Issue(ctx, ownerID, []string{"photos:upload", "photos:read", "albums:write"})
	if err != nil {
		return nil, fmt.Errorf("issue worker credential: %w", err)
	}

	now := time.Now().UTC()
	job := &model.ImportJob{
		ID:            jobID,
		OwnerID:       ownerID,
		Status:        model.JobStatusCreating,
		WebhookSecret: secret,
		CredentialID:  cred.ID,
		Progress: model.ImportProgress{
			Phase: "pending",
			Total: len(workload.Files),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.AppendEvent(model.EventInfo, "Preparing import worker")
	if err := uc.jobs.Save(ctx, job); err != nil {
		uc.revokeCredential(ctx, job)
		return nil, err
	}

	var totalBytes int64
	for _, f := range workload.Files {
		totalBytes += f.SizeBytes
	}

	volumeID, err := uc.prov.CreateVolume(ctx, VolumeName(jobID), totalBytes)
	if err != nil {
		uc.failStart(ctx, job, fmt.Sprintf("Volume provisioning failed: %v", err))
		return nil, err
	}
	job.VolumeID = volumeID

	manifest, err := json.Marshal(workload.Files)
	if err != nil {
		return nil, err
	}
	env := map[string]string{
		"IMPORT_JOB_ID":       jobID,
		"WEBHOOK_URL":         strings.TrimRight(uc.webhookURL, "/") + "/api/v1/imports/webhook",
		"WEBHOOK_SECRET":      secret,
		"DRIVE_ACCESS_TOKEN":  tok.AccessToken,
		"DRIVE_REFRESH_TOKEN": tok.RefreshToken,
		"UPLOAD_TOKEN":        cred.Secret,
		"IMPORT_MANIFEST":     string(manifest),
	}

	machineID, err := uc.prov.CreateMachine(ctx, MachineName(jobID), volumeID, env, uc.resources)
	if err != nil {
		// Roll back the volume before reporting failure; the machine never
		// existed, so nothing holds the attachment.
		if derr := uc.prov.DestroyVolume(ctx, volumeID); derr != nil {
			uc.log.Error().Err(derr).Str("job_id", jobID).Str("volume_id", volumeID).Msg("rollback volume destroy failed")
		} else {
			job.VolumeID = ""
		}
		uc.failStart(ctx, job, fmt.Sprintf("Machine provisioning failed: %v", err))
		return nil, err
	}

	// The worker may fire its first webhook before this persist runs. Take
	// the per-job lock and merge onto the stored record so a concurrently
	// applied update is not overwritten by a stale snapshot.
	err = uc.withJobLock(ctx, jobID, func() error {
		if stored, ferr := uc.jobs.Find(ctx, jobID); ferr == nil {
			job = stored
		}
		job.MachineID = machineID
		job.VolumeID = volumeID
		if job.Status == model.JobStatusCreating {
			job.Status = model.JobStatusDownloading
			job.Progress.Phase = "downloading"
		}
		job.AppendEvent(model.EventInfo, "Worker machine started")
		job.Touch()
		if serr := uc.jobs.Save(ctx, job); serr != nil {
			uc.log.Error().Err(serr).Str("job_id", jobID).Msg("persist after provisioning failed; tearing down")
			uc.cleanupLocked(ctx, job)
			return serr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncJobStarted()
	uc.log.Info().Str("job_id", jobID).Str("machine_id", machineID).Str("volume_id", volumeID).Msg("import job started")
	return &StartResult{JobID: jobID, MachineID: machineID, VolumeID: volumeID}, nil
}

// failStart marks the job failed after a provisioning error, revokes the
// worker credential and persists. The provisioning error itself propagates
// to the caller.
func (uc *importUC) failStart(ctx context.Context, job *model.ImportJob, msg string) {
	job.Status = model.JobStatusFailed
	job.Progress.Phase = "failed"
	job.AppendError(msg)
	uc.revokeCredential(ctx, job)
	job.Touch()
	if err := uc.jobs.Save(ctx, job); err != nil {
		uc.log.Error().Err(err).Str("job_id", job.ID).Msg("persist failed job state")
	}
	metrics.IncJobFinished(string(model.JobStatusFailed))
}

func (uc *importUC) revokeCredential(ctx context.Context, job *model.ImportJob) {
	if job.CredentialID == "" {
		return
	}
	if err := uc.creds.Revoke(ctx, job.OwnerID, job.CredentialID); err != nil {
		uc.log.Error().Err(err).Str("job_id", job.ID).Msg("revoke worker credential failed")
		metrics.IncCleanupFailure("revoke_credential")
		return
	}
	job.CredentialID = ""
}

func (uc *importUC) HandleWebhook(ctx context.Context, signature string, payload []byte) error {
	var update WebhookPayload
	if err := json.Unmarshal(payload, &update); err != nil {
		return fmt.Errorf("%w: malformed webhook payload", domain.ErrInvalidArgument)
	}
	if update.JobID == "" {
		return fmt.Errorf("%w: webhook payload missing jobId", domain.ErrInvalidArgument)
	}

	// Verify against an unlocked read first so unauthenticated senders never
	// contend the per-job lock. The secret is immutable for the job's
	// lifetime, so a pre-lock verification stays valid.
	job, err := uc.jobs.Find(ctx, update.JobID)
	if err != nil {
		metrics.IncWebhook("unknown_job")
		return err
	}
	if err := webhook.Verify(job.WebhookSecret, payload, signature); err != nil {
		// Log both signatures for audit; the secret itself never leaves
		// the job record.
		expected, _ := webhook.Sign(job.WebhookSecret, payload)
		uc.log.Warn().
			Str("job_id", job.ID).
			Str("received_signature", signature).
			Str("expected_signature", expected).
			Msg("webhook rejected")
		metrics.IncWebhook("rejected")
		return err
	}

	return uc.withJobLock(ctx, update.JobID, func() error {
		job, err := uc.jobs.Find(ctx, update.JobID)
		if err != nil {
			return err
		}

		wasTerminal := job.Status.Terminal()
		uc.applyUpdate(job, &update)
		job.Touch()
		if err := uc.jobs.Save(ctx, job); err != nil {
			return err
		}
		metrics.IncWebhook("applied")

		if !wasTerminal && job.Status.Terminal() {
			metrics.IncJobFinished(string(job.Status))
			uc.dispatchCleanup(job.ID)
		}
		return nil
	})
}

// phaseEvents maps a newly-reported phase to its timeline entry.
var phaseEvents = map[string]struct {
	kind    model.EventKind
	message string
}{
	"downloading": {model.EventDownload, "Downloading photos from your library"},
	"processing":  {model.EventUpload, "Uploading photos into your vault"},
	"complete":    {model.EventSuccess, "Import complete"},
	"failed":      {model.EventError, "Import failed"},
}

// applyUpdate merges one webhook into the job. Counters are overwritten with
// the reported values (the worker is the source of truth for its own
// progress, and deliveries may arrive out of order); optional fields apply
// only when present; error and event lists only ever grow. Status and phase
// never move backward: once the job is terminal, late or duplicate
// deliveries merge counters only.
func (uc *importUC) applyUpdate(job *model.ImportJob, update *WebhookPayload) {
	prevPhase := job.Progress.Phase

	job.Progress.Current = update.Progress.Current
	job.Progress.Total = update.Progress.Total

	if f := update.Progress.CurrentFile; f != "" && f != job.Progress.CurrentFile {
		job.Progress.CurrentFile = f
		job.AppendEvent(model.EventDownload, "Downloading "+f)
	}
	if update.BytesDownloaded != nil {
		job.Progress.BytesDownloaded = *update.BytesDownloaded
	}
	if update.TotalBytes != nil {
		job.Progress.TotalBytes = *update.TotalBytes
	}
	if update.PhotosImported != nil {
		job.Progress.PhotosImported = *update.PhotosImported
	}
	if update.AlbumsFound != nil {
		if *update.AlbumsFound > job.Progress.AlbumsFound {
			job.AppendEvent(model.EventAlbum, fmt.Sprintf("Found %d albums", *update.AlbumsFound))
		}
		job.Progress.AlbumsFound = *update.AlbumsFound
	}
	for _, msg := range update.Errors {
		job.AppendError(msg)
	}

	if update.Phase != "" && !job.Status.Terminal() {
		job.Progress.Phase = update.Phase
		switch update.Phase {
		case "complete":
			job.Status = model.JobStatusComplete
		case "failed":
			job.Status = model.JobStatusFailed
		case "downloading", "processing":
			job.Status = model.JobStatus(update.Phase)
		}
		if update.Phase != prevPhase {
			if ev, ok := phaseEvents[update.Phase]; ok {
				job.AppendEvent(ev.kind, ev.message)
			}
		}
	}
}

func (uc *importUC) dispatchCleanup(jobID string) {
	task := func(ctx context.Context) error {
		if err := uc.Cleanup(ctx, jobID); err != nil {
			uc.log.Error().Err(err).Str("job_id", jobID).Msg("dispatched cleanup failed")
		}
		return nil
	}
	if uc.pool == nil {
		go func() { _ = task(context.Background()) }()
		return
	}
	if err := uc.pool.Submit(task); err != nil {
		uc.log.Error().Err(err).Str("job_id", jobID).Msg("submit cleanup task")
	}
}

func (uc *importUC) Progress(ctx context.Context, jobID string) (*model.ImportProgress, error) {
	job, err := uc.jobs.Find(ctx, jobID)
	if err != nil {
		return nil, err
	}
	p := job.Progress
	return &p, nil
}

func (uc *importUC) Cancel(ctx context.Context, jobID string) error {
	return uc.withJobLock(ctx, jobID, func() error {
		job, err := uc.jobs.Find(ctx, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				return nil
			}
			return err
		}
		if job.Status.Terminal() {
			return nil
		}

		job.AppendError("Import cancelled by user")
		job.Status = model.JobStatusFailed
		job.Progress.Phase = "failed"
		job.Touch()
		if err := uc.jobs.Save(ctx, job); err != nil {
			return err
		}
		metrics.IncJobFinished(string(model.JobStatusFailed))

		uc.cleanupLocked(ctx, job)
		return nil
	})
}

func (uc *importUC) Cleanup(ctx context.Context, jobID string) error {
	return uc.withJobLock(ctx, jobID, func() error {
		job, err := uc.jobs.Find(ctx, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				return nil
			}
			return err
		}
		if job.Status == model.JobStatusCleanup {
			return nil
		}
		uc.cleanupLocked(ctx, job)
		return nil
	})
}

// cleanupLocked tears down the job's resources. Every step is best-effort:
// a failed step is logged and counted but never blocks the remaining steps,
// and the final cleanup status is persisted regardless so the job is not
// retried against an already-partially-destroyed resource set. True orphans
// are reconciled out-of-band by the reaper sweep.
func (uc *importUC) cleanupLocked(ctx context.Context, job *model.ImportJob) {
	log := uc.log.With().Str("job_id", job.ID).Logger()

	uc.revokeCredential(ctx, job)

	if job.MachineID != "" {
		if err := uc.prov.DestroyMachine(ctx, job.MachineID); err != nil {
			log.Error().Err(err).Str("machine_id", job.MachineID).Msg("destroy machine failed")
			metrics.IncCleanupFailure("destroy_machine")
		} else {
			job.MachineID = ""
		}
	}

	if job.VolumeID != "" {
		// The volume cannot be deleted while still attached; give the
		// provider a moment to release it after the machine is gone.
		select {
		case <-ctx.Done():
		case <-time.After(uc.settleDelay):
		}
		if err := uc.prov.DestroyVolume(ctx, job.VolumeID); err != nil {
			log.Error().Err(err).Str("volume_id", job.VolumeID).Msg("destroy volume failed")
			metrics.IncCleanupFailure("destroy_volume")
		} else {
			job.VolumeID = ""
		}
	}

	job.Status = model.JobStatusCleanup
	job.Touch()
	if err := uc.jobs.Save(ctx, job); err != nil {
		log.Error().Err(err).Msg("persist cleanup status")
	}
	log.Info().Msg("cleanup finished")
}

func newWebhookSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
