package adapter

import (
	"context"
	"time"
)

// Machine is a provisioned compute instance as reported by the provider.
type Machine struct {
	ID        string
	Name      string
	State     string
	Region    string
	CreatedAt time.Time // zero when the provider omitted it
}

// Volume is a provisioned storage volume as reported by the provider.
type Volume struct {
	ID        string
	Name      string
	SizeGB    int
	State     string
	CreatedAt time.Time
}

// MachineResources selects the guest size for a worker machine.
type MachineResources struct {
	CPUs     int
	MemoryMB int
}

// Provisioner is the port over the remote compute-provisioning API. It holds
// no local state; every call maps to one or two provider requests.
//
// The listing and state calls are not used on the happy path. They exist so
// resources orphaned by an orchestrator crash can be found and destroyed.
type Provisioner interface {
	// CreateVolume provisions a volume sized for totalBytes of source data
	// plus extraction overhead, clamped to the provider's [min, max] range.
	CreateVolume(ctx context.Context, name string, totalBytes int64) (volumeID string, err error)

	// CreateMachine boots a worker machine with the volume attached. The
	// machine must not restart on failure (a restarted worker would resume
	// with stale single-use credentials) and destroys itself on exit.
	CreateMachine(ctx context.Context, name, volumeID string, env map[string]string, res MachineResources) (machineID string, err error)

	// DestroyMachine stops then force-deletes the machine. Stop failures are
	// swallowed (the machine may already be gone); delete failures propagate.
	DestroyMachine(ctx context.Context, machineID string) error

	// DestroyVolume deletes the volume. Fails while the volume is still
	// attached; destroy the machine first and allow a settling delay.
	DestroyVolume(ctx context.Context, volumeID string) error

	MachineState(ctx context.Context, machineID string) (string, error)
	ListMachines(ctx context.Context) ([]Machine, error)
	ListVolumes(ctx context.Context) ([]Volume, error)
}
