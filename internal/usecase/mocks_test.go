// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"photovault-import/internal/domain"
	"photovault-import/internal/domain/model"
	"photovault-import/internal/domain/ports/adapter"
	"photovault-import/internal/domain/ports/repository"
)

// memJobRepo is a small in-memory job store used by unit tests.
type memJobRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.ImportJob
	saveErr error // used by tests to simulate persistence failures
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.ImportJob)}
}

func (m *memJobRepo) Save(ctx context.Context, job *model.ImportJob) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneJob(job)
	m.store[job.ID] = cp
	return nil
}

func (m *memJobRepo) Find(ctx context.Context, id string) (*model.ImportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(j), nil
}

func (m *memJobRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
	return nil
}

func cloneJob(j *model.ImportJob) *model.ImportJob {
	cp := *j
	cp.Progress.Errors = append([]string(nil), j.Progress.Errors...)
	cp.Progress.Events = append([]model.TimelineEvent(nil), j.Progress.Events...)
	return &cp
}

// memLocker serializes per-key access in-process the way the redis locker
// does across processes.
type memLocker struct {
	mu     sync.Mutex
	locked map[string]string
}

func newMemLocker() *memLocker {
	return &memLocker{locked: make(map[string]string)}
}

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	for i := 0; i < 100; i++ {
		l.mu.Lock()
		if _, held := l.locked[key]; !held {
			token := fmt.Sprintf("tok-%d", time.Now().UnixNano())
			l.locked[key] = token
			l.mu.Unlock()
			return token, nil
		}
		l.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	return "", domain.ErrLockHeld
}

func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked[key] == token {
		delete(l.locked, key)
	}
	return nil
}

// memTokenStore holds OAuth tokens keyed by owner.
type memTokenStore struct {
	mu    sync.RWMutex
	store map[string]*repository.OAuthToken
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{store: make(map[string]*repository.OAuthToken)}
}

func (m *memTokenStore) Save(ctx context.Context, ownerID string, tok *repository.OAuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.store[ownerID] = &cp
	return nil
}

func (m *memTokenStore) Find(ctx context.Context, ownerID string) (*repository.OAuthToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.store[ownerID]
	if !ok {
		return nil, domain.ErrNoLinkedAccount
	}
	cp := *tok
	return &cp, nil
}

func (m *memTokenStore) Delete(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, ownerID)
	return nil
}

// mockProvisioner records every call and lets tests inject failures per
// operation.
type mockProvisioner struct {
	mu sync.Mutex

	createVolumeErr  error
	createMachineErr error
	destroyMachErr   error
	destroyVolErr    error

	// onCreateMachine, when set, runs after a successful machine create and
	// before control returns to the caller. Lets tests interleave work with
	// a provisioning call in flight.
	onCreateMachine func()

	createdVolumes   []string
	createdMachines  []string
	destroyedMachs   []string
	destroyedVols    []string
	lastMachineEnv   map[string]string
	lastVolumeName   string
	lastMachineName  string
	lastVolumeSizeIn int64

	machines []adapter.Machine
	volumes  []adapter.Volume

	volumeSeq  int
	machineSeq int
}

func (m *mockProvisioner) CreateVolume(ctx context.Context, name string, totalBytes int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createVolumeErr != nil {
		return "", m.createVolumeErr
	}
	m.volumeSeq++
	id := fmt.Sprintf("vol_%d", m.volumeSeq)
	m.createdVolumes = append(m.createdVolumes, id)
	m.lastVolumeName = name
	m.lastVolumeSizeIn = totalBytes
	return id, nil
}

func (m *mockProvisioner) CreateMachine(ctx context.Context, name, volumeID string, env map[string]string, res adapter.MachineResources) (string, error) {
	m.mu.Lock()
	if m.createMachineErr != nil {
		m.mu.Unlock()
		return "", m.createMachineErr
	}
	m.machineSeq++
	id := fmt.Sprintf("mach_%d", m.machineSeq)
	m.createdMachines = append(m.createdMachines, id)
	m.lastMachineName = name
	m.lastMachineEnv = env
	hook := m.onCreateMachine
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return id, nil
}

func (m *mockProvisioner) DestroyMachine(ctx context.Context, machineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyMachErr != nil {
		return m.destroyMachErr
	}
	m.destroyedMachs = append(m.destroyedMachs, machineID)
	return nil
}

func (m *mockProvisioner) DestroyVolume(ctx context.Context, volumeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyVolErr != nil {
		return m.destroyVolErr
	}
	m.destroyedVols = append(m.destroyedVols, volumeID)
	return nil
}

func (m *mockProvisioner) MachineState(ctx context.Context, machineID string) (string, error) {
	return "started", nil
}

func (m *mockProvisioner) ListMachines(ctx context.Context) ([]adapter.Machine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]adapter.Machine(nil), m.machines...), nil
}

func (m *mockProvisioner) ListVolumes(ctx context.Context) ([]adapter.Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]adapter.Volume(nil), m.volumes...), nil
}

func (m *mockProvisioner) destroyedMachines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.destroyedMachs...)
}

func (m *mockProvisioner) destroyedVolumes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.destroyedVols...)
}

// mockIssuer counts issues and revocations.
type mockIssuer struct {
	mu        sync.Mutex
	issueErr  error
	revokeErr error
	issued    int
	revoked   []string
}

func (m *mockIssuer) Issue(ctx context.Context, ownerID string, scopes []string) (*adapter.IssuedCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issueErr != nil {
		return nil, m.issueErr
	}
	m.issued++
	return &adapter.IssuedCredential{
		ID:     fmt.Sprintf("cred_%d", m.issued),
		Secret: fmt.Sprintf("cred-secret-%d", m.issued),
	}, nil
}

func (m *mockIssuer) Revoke(ctx context.Context, ownerID, credentialID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return m.revokeErr
	}
	m.revoked = append(m.revoked, credentialID)
	return nil
}

func (m *mockIssuer) revokedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.revoked...)
}
