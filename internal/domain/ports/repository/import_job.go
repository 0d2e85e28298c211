package repository

import (
	"context"

	"photovault-import/internal/domain/model"
)

// ImportJobRepository is the port for durable job-state persistence. The
// backing store only needs atomic get/set/delete per key; all merge logic
// lives in the orchestrator.
type ImportJobRepository interface {
	Save(ctx context.Context, job *model.ImportJob) error
	Find(ctx context.Context, id string) (*model.ImportJob, error)
	Delete(ctx context.Context, id string) error
}
