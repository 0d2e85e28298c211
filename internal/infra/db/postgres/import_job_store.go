package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"photovault-import/internal/domain"
	"photovault-import/internal/domain/model"
	"photovault-import/internal/domain/ports/repository"
)

var _ repository.ImportJobRepository = (*importJobStore)(nil)

// importJobStore is the Postgres-backed job store: one jsonb record per job
// id, upserted atomically. Schema:
//
//	CREATE TABLE import_jobs (
//	    id         TEXT PRIMARY KEY,
//	    record     JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type importJobStore struct {
	pool *pgxpool.Pool
}

func NewImportJobStore(pool *pgxpool.Pool) *importJobStore {
	return &importJobStore{pool: pool}
}

func (r *importJobStore) Save(ctx context.Context, job *model.ImportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO import_jobs (id, record, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
  record = EXCLUDED.record,
  updated_at = EXCLUDED.updated_at;`

	_, err = r.pool.Exec(ctx, q, job.ID, data, time.Now().UTC())
	return err
}

func (r *importJobStore) Find(ctx context.Context, id string) (*model.ImportJob, error) {
	const q = `SELECT record FROM import_jobs WHERE id = $1;`

	var data []byte
	if err := r.pool.QueryRow(ctx, q, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}

	var job model.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *importJobStore) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM import_jobs WHERE id = $1;`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
