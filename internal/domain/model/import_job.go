package model

import "time"

type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusCreating    JobStatus = "creating"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusProcessing  JobStatus = "processing"
	JobStatusComplete    JobStatus = "complete"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCleanup     JobStatus = "cleanup"
)

// Terminal reports whether no further lifecycle progress is possible.
// Cleanup still runs after a terminal status is reached.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed || s == JobStatusCleanup
}

type EventKind string

const (
	EventInfo     EventKind = "info"
	EventSuccess  EventKind = "success"
	EventError    EventKind = "error"
	EventDownload EventKind = "download"
	EventUpload   EventKind = "upload"
	EventAlbum    EventKind = "album"
)

// TimelineEvent is one user-visible entry in a job's activity timeline.
type TimelineEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	Message   string    `json:"message"`
}

// MaxTimelineEvents bounds the activity timeline. Once exceeded, the oldest
// entries are dropped (sliding window).
const MaxTimelineEvents = 100

// ImportProgress is the worker-reported progress embedded in an ImportJob.
// The remote worker is the source of truth for its own counters; the
// orchestrator overwrites them with whatever the latest webhook reported.
type ImportProgress struct {
	Phase           string          `json:"phase"`
	Current         int             `json:"current"`
	Total           int             `json:"total"`
	CurrentFile     string          `json:"current_file,omitempty"`
	BytesDownloaded int64           `json:"bytes_downloaded,omitempty"`
	TotalBytes      int64           `json:"total_bytes,omitempty"`
	PhotosImported  int             `json:"photos_imported"`
	AlbumsFound     int             `json:"albums_found"`
	Errors          []string        `json:"errors,omitempty"`
	Events          []TimelineEvent `json:"events,omitempty"`
}

// ImportJob is the aggregate root for one bulk-import run: the remote
// machine/volume pair, the webhook secret used to authenticate progress
// callbacks, and the reconciled progress state.
type ImportJob struct {
	ID      string    `json:"id"`
	OwnerID string    `json:"owner_id"`
	Status  JobStatus `json:"status"`

	MachineID string `json:"machine_id,omitempty"`
	VolumeID  string `json:"volume_id,omitempty"`

	// WebhookSecret is shared with the remote worker via machine env only.
	// It must never be returned to browser clients.
	WebhookSecret string `json:"webhook_secret"`

	// CredentialID identifies the scoped upload credential minted for the
	// worker. Only the id is persisted; the secret travels in machine env.
	CredentialID string `json:"credential_id,omitempty"`

	Progress ImportProgress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppendEvent adds a timeline entry, evicting the oldest entries beyond
// MaxTimelineEvents.
func (j *ImportJob) AppendEvent(kind EventKind, message string) {
	j.Progress.Events = append(j.Progress.Events, TimelineEvent{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Message:   message,
	})
	if n := len(j.Progress.Events); n > MaxTimelineEvents {
		j.Progress.Events = j.Progress.Events[n-MaxTimelineEvents:]
	}
}

// AppendError records a failure in both the error list and the timeline.
func (j *ImportJob) AppendError(message string) {
	j.Progress.Errors = append(j.Progress.Errors, message)
	j.AppendEvent(EventError, message)
}

func (j *ImportJob) Touch() {
	j.UpdatedAt = time.Now().UTC()
}
