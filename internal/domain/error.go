package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrJobNotFound       = errors.New("import job not found")
	ErrSignatureMissing  = errors.New("webhook signature header missing")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	ErrNoLinkedAccount   = errors.New("no linked photo account for user")
	ErrNotConfigured     = errors.New("importer is not configured")
	ErrLockHeld          = errors.New("job is locked by another operation")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// ProvisioningError is returned when the remote machine API rejects or fails
// a provisioning call. It carries the upstream status code and response body
// so operators can see exactly what the provider said.
type ProvisioningError struct {
	Op         string // e.g. "create volume", "destroy machine"
	StatusCode int
	Body       string
	Err        error // transport-level cause, when there was no HTTP response
}

func (e *ProvisioningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provisioning: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("provisioning: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }
