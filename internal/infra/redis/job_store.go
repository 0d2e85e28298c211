package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"photovault-import/internal/domain"
	"photovault-import/internal/domain/model"
	"photovault-import/internal/domain/ports/repository"
)

var _ repository.ImportJobRepository = (*JobStore)(nil)

// JobStore persists import-job records as JSON under namespaced keys.
// Records carry a retention TTL so finished jobs stay pollable for an
// observation window and then expire on their own.
type JobStore struct {
	client    RedisClient
	retention time.Duration
}

func NewJobStore(client RedisClient, retention time.Duration) *JobStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &JobStore{client: client, retention: retention}
}

func (s *JobStore) key(id string) string {
	return fmt.Sprintf("import_job:%s", id)
}

func (s *JobStore) Save(ctx context.Context, job *model.ImportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(job.ID), data, s.retention)
}

func (s *JobStore) Find(ctx context.Context, id string) (*model.ImportJob, error) {
	data, err := s.client.Get(ctx, s.key(id))
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}

	var job model.ImportJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *JobStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id))
}
