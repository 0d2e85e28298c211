package provision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"photovault-import/internal/domain"
	"photovault-import/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.Provisioner = (*FlyClient)(nil)

// Config holds everything the Fly Machines client needs to provision worker
// machines for one app.
type Config struct {
	APIToken string
	BaseURL  string // defaults to the public Machines API
	App      string
	Region   string
	Image    string
	Sizing   VolumeSizing
}

// FlyClient implements the Provisioner port against the Fly.io Machines API.
// It keeps no local state; orphan recovery goes through ListMachines and
// ListVolumes.
type FlyClient struct {
	cfg  Config
	http *resty.Client
	log  *zerolog.Logger
}

func NewFlyClient(cfg Config, logger *zerolog.Logger) (*FlyClient, error) {
	if cfg.APIToken == "" || cfg.App == "" || cfg.Image == "" {
		return nil, domain.ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.machines.dev"
	}
	if cfg.Region == "" {
		cfg.Region = "iad"
	}

	sub := logger.With().Str("component", "FlyClient").Logger()
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(60 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry only reads and rate limits; mutations must not be replayed blindly.
			return r != nil && r.StatusCode() == 429
		})

	return &FlyClient{cfg: cfg, http: client, log: &sub}, nil
}

type flyVolume struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SizeGB    int    `json:"size_gb"`
	State     string `json:"state"`
	Region    string `json:"region"`
	CreatedAt string `json:"created_at"`
}

type flyMachine struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Region    string `json:"region"`
	CreatedAt string `json:"created_at"`
}

// parseCreatedAt tolerates a missing or oddly-formatted timestamp; the
// reaper treats the zero time as "age unknown".
func parseCreatedAt(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (c *FlyClient) CreateVolume(ctx context.Context, name string, totalBytes int64) (string, error) {
	sizeGB := CalculateVolumeSizeGB(totalBytes, c.cfg.Sizing)

	var vol flyVolume
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"name":    name,
			"region":  c.cfg.Region,
			"size_gb": sizeGB,
		}).
		SetResult(&vol).
		Post(fmt.Sprintf("/v1/apps/%s/volumes", c.cfg.App))
	if err := c.check("create volume", resp, err); err != nil {
		return "", err
	}

	c.log.Info().Str("volume_id", vol.ID).Int("size_gb", sizeGB).Msg("volume created")
	return vol.ID, nil
}

func (c *FlyClient) CreateMachine(ctx context.Context, name, volumeID string, env map[string]string, res adapter.MachineResources) (string, error) {
	if res.CPUs <= 0 {
		res.CPUs = 2
	}
	if res.MemoryMB <= 0 {
		res.MemoryMB = 2048
	}

	body := map[string]interface{}{
		"name":   name,
		"region": c.cfg.Region,
		"config": map[string]interface{}{
			"image": c.cfg.Image,
			"env":   env,
			"guest": map[string]interface{}{
				"cpu_kind":  "shared",
				"cpus":      res.CPUs,
				"memory_mb": res.MemoryMB,
			},
			"mounts": []map[string]interface{}{
				{"volume": volumeID, "path": "/data"},
			},
			// A restarted worker would resume with stale single-use
			// credentials, so never restart; let the machine reap itself
			// when the import process exits.
			"restart":      map[string]interface{}{"policy": "no"},
			"auto_destroy": true,
		},
	}

	var m flyMachine
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&m).
		Post(fmt.Sprintf("/v1/apps/%s/machines", c.cfg.App))
	if err := c.check("create machine", resp, err); err != nil {
		return "", err
	}

	c.log.Info().Str("machine_id", m.ID).Str("volume_id", volumeID).Msg("machine created")
	return m.ID, nil
}

func (c *FlyClient) DestroyMachine(ctx context.Context, machineID string) error {
	// Best-effort stop first; the machine may already have exited.
	resp, err := c.http.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/v1/apps/%s/machines/%s/stop", c.cfg.App, machineID))
	if err := c.check("stop machine", resp, err); err != nil {
		c.log.Warn().Err(err).Str("machine_id", machineID).Msg("stop before delete failed")
	}

	resp, err = c.http.R().
		SetContext(ctx).
		SetQueryParam("force", "true").
		Delete(fmt.Sprintf("/v1/apps/%s/machines/%s", c.cfg.App, machineID))
	if err := c.check("destroy machine", resp, err); err != nil {
		return err
	}

	c.log.Info().Str("machine_id", machineID).Msg("machine destroyed")
	return nil
}

func (c *FlyClient) DestroyVolume(ctx context.Context, volumeID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/v1/apps/%s/volumes/%s", c.cfg.App, volumeID))
	if err := c.check("destroy volume", resp, err); err != nil {
		return err
	}

	c.log.Info().Str("volume_id", volumeID).Msg("volume destroyed")
	return nil
}

func (c *FlyClient) MachineState(ctx context.Context, machineID string) (string, error) {
	var m flyMachine
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&m).
		Get(fmt.Sprintf("/v1/apps/%s/machines/%s", c.cfg.App, machineID))
	if err := c.check("get machine", resp, err); err != nil {
		return "", err
	}
	return m.State, nil
}

func (c *FlyClient) ListMachines(ctx context.Context) ([]adapter.Machine, error) {
	var machines []flyMachine
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&machines).
		Get(fmt.Sprintf("/v1/apps/%s/machines", c.cfg.App))
	if err := c.check("list machines", resp, err); err != nil {
		return nil, err
	}

	out := make([]adapter.Machine, 0, len(machines))
	for _, m := range machines {
		out = append(out, adapter.Machine{ID: m.ID, Name: m.Name, State: m.State, Region: m.Region, CreatedAt: parseCreatedAt(m.CreatedAt)})
	}
	return out, nil
}

func (c *FlyClient) ListVolumes(ctx context.Context) ([]adapter.Volume, error) {
	var volumes []flyVolume
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&volumes).
		Get(fmt.Sprintf("/v1/apps/%s/volumes", c.cfg.App))
	if err := c.check("list volumes", resp, err); err != nil {
		return nil, err
	}

	out := make([]adapter.Volume, 0, len(volumes))
	for _, v := range volumes {
		out = append(out, adapter.Volume{ID: v.ID, Name: v.Name, SizeGB: v.SizeGB, State: v.State, CreatedAt: parseCreatedAt(v.CreatedAt)})
	}
	return out, nil
}

// check converts a transport failure or non-2xx response into a
// ProvisioningError carrying the upstream status and body.
func (c *FlyClient) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &domain.ProvisioningError{Op: op, Err: err}
	}
	if resp.IsError() {
		return &domain.ProvisioningError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Body:       strings.TrimSpace(string(resp.Body())),
		}
	}
	return nil
}
