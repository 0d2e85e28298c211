//go:build !integration

package provision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photovault-import/internal/domain"
	"photovault-import/internal/domain/ports/adapter"
)

func newTestClient(t *testing.T, handler http.Handler) *FlyClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	nop := zerolog.Nop()
	client, err := NewFlyClient(Config{
		APIToken: "test-token",
		BaseURL:  ts.URL,
		App:      "photovault-workers",
		Region:   "iad",
		Image:    "registry.fly.io/photovault-worker:latest",
		Sizing:   VolumeSizing{MinGB: 10, MaxGB: 500, BufferGB: 5},
	}, &nop)
	require.NoError(t, err)
	return client
}

func TestNewFlyClientRequiresConfig(t *testing.T) {
	nop := zerolog.Nop()
	_, err := NewFlyClient(Config{}, &nop)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestCreateVolume(t *testing.T) {
	var captured map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/apps/photovault-workers/volumes", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "vol_123", "size_gb": 16})
	}))

	// 10 GiB + 1 byte → 11 GB + 5 buffer = 16
	id, err := client.CreateVolume(context.Background(), "importer_j1", 10*(1<<30)+1)
	require.NoError(t, err)
	assert.Equal(t, "vol_123", id)
	assert.Equal(t, "importer_j1", captured["name"])
	assert.Equal(t, float64(16), captured["size_gb"])
}

func TestCreateVolumeSurfacesProviderError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"volume quota exceeded"}`))
	}))

	_, err := client.CreateVolume(context.Background(), "importer_j1", 0)
	require.Error(t, err)

	var perr *domain.ProvisioningError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnprocessableEntity, perr.StatusCode)
	assert.Contains(t, perr.Body, "volume quota exceeded")
	assert.Contains(t, perr.Error(), "422")
}

func TestCreateMachineConfig(t *testing.T) {
	var captured map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/apps/photovault-workers/machines", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "mach_42", "state": "created"})
	}))

	env := map[string]string{"IMPORT_JOB_ID": "j1", "WEBHOOK_SECRET": "s"}
	id, err := client.CreateMachine(context.Background(), "importer-j1", "vol_123", env, adapter.MachineResources{CPUs: 4, MemoryMB: 4096})
	require.NoError(t, err)
	assert.Equal(t, "mach_42", id)

	cfg, ok := captured["config"].(map[string]interface{})
	require.True(t, ok, "machine payload must carry a config block")

	// A restarted worker would rerun with stale single-use credentials.
	restart, ok := cfg["restart"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "no", restart["policy"])
	assert.Equal(t, true, cfg["auto_destroy"])

	mounts, ok := cfg["mounts"].([]interface{})
	require.True(t, ok)
	require.Len(t, mounts, 1)
	assert.Equal(t, "vol_123", mounts[0].(map[string]interface{})["volume"])

	guest := cfg["guest"].(map[string]interface{})
	assert.Equal(t, float64(4), guest["cpus"])
	assert.Equal(t, float64(4096), guest["memory_mb"])
}

func TestDestroyMachineSwallowsStopFailure(t *testing.T) {
	var deleted bool
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost: // stop
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"machine already stopped"}`))
		case r.Method == http.MethodDelete:
			deleted = true
			assert.Equal(t, "true", r.URL.Query().Get("force"))
			w.WriteHeader(http.StatusOK)
		}
	}))

	err := client.DestroyMachine(context.Background(), "mach_42")
	require.NoError(t, err)
	assert.True(t, deleted, "delete must still run after a failed stop")
}

func TestDestroyMachinePropagatesDeleteFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	err := client.DestroyMachine(context.Background(), "mach_42")
	var perr *domain.ProvisioningError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusInternalServerError, perr.StatusCode)
}

func TestListMachines(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/apps/photovault-workers/machines", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"m1","name":"importer-j1","state":"started","region":"iad","created_at":"2026-08-30T10:00:00Z"},
			{"id":"m2","name":"other","state":"stopped","region":"iad","created_at":"bogus"}
		]`))
	}))

	machines, err := client.ListMachines(context.Background())
	require.NoError(t, err)
	require.Len(t, machines, 2)
	assert.Equal(t, "importer-j1", machines[0].Name)
	assert.False(t, machines[0].CreatedAt.IsZero())
	assert.True(t, machines[1].CreatedAt.IsZero(), "unparsable created_at maps to zero time")
}

func TestDestroyVolumeSurfacesAttachmentError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"volume is attached to a machine"}`))
	}))

	err := client.DestroyVolume(context.Background(), "vol_123")
	var perr *domain.ProvisioningError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Body, "attached")
}
