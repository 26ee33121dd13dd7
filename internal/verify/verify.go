// Package verify waits for an appliance to become ready for configuration
// and for it to hold the active failover role.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/logging"
	"github.com/muurk/appliancectl/internal/restapi"
	"github.com/muurk/appliancectl/internal/retry"
	"github.com/muurk/appliancectl/internal/tracing"
)

const (
	// PhaseRunning is the management-plane phase that accepts configuration
	PhaseRunning = "running"

	// StatusActive is the failover status of the unit that owns traffic
	StatusActive = "ACTIVE"

	mcpStatePath       = "/tm/sys/mcp-state/"
	failoverStatusPath = "/tm/cm/failover-status"
)

var (
	// ErrNotRunning is returned when the management plane never reported the running phase.
	ErrNotRunning = errors.New("management plane is not running")

	// ErrNotActive is returned when the appliance never reported the active failover status.
	ErrNotActive = errors.New("appliance is not active")
)

// Probe is one availability endpoint checked before the phase probe.
type Probe struct {
	Subsystem string
	Path      string
}

// AvailabilityProbes are checked strictly in this order.
var AvailabilityProbes = []Probe{
	{Subsystem: "echo-js", Path: "/shared/echo-js/available"},
	{Subsystem: "device-info", Path: "/shared/identified-devices/config/device-info/available"},
	{Subsystem: "sys", Path: "/tm/sys/available"},
	{Subsystem: "cm", Path: "/tm/cm/available"},
}

// UnavailableError reports the first availability probe that never succeeded.
type UnavailableError struct {
	Subsystem string
	Path      string
	Err       error
}

// Error implements the error interface
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s is not available (%s): %v", e.Subsystem, e.Path, e.Err)
}

// Unwrap returns the probe error
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Verifier polls appliance health endpoints.
type Verifier struct {
	exec    restapi.Executor
	retrier *retry.Retrier
	logger  *zap.Logger
}

// New creates a Verifier. A nil retrier uses retry.New(); a nil logger uses
// the package logger.
func New(exec restapi.Executor, retrier *retry.Retrier, logger *zap.Logger) *Verifier {
	if retrier == nil {
		retrier = retry.New()
	}
	if logger == nil {
		logger = logging.Named("verify")
	}
	return &Verifier{exec: exec, retrier: retrier, logger: logger}
}

// WaitUntilReady blocks until every availability probe answers and the
// management plane reports the running phase. Each probe is retried with p.
func (v *Verifier) WaitUntilReady(ctx context.Context, p retry.Policy) (err error) {
	ctx, span := tracing.Tracer("verify").Start(ctx, "verify.WaitUntilReady")
	span.SetAttributes(attribute.String("retry.policy", p.String()))
	defer func() { tracing.Finish(span, err) }()

	for _, probe := range AvailabilityProbes {
		err := v.retrier.Do(ctx, "available."+probe.Subsystem, p, func(ctx context.Context) error {
			_, err := v.exec.List(ctx, probe.Path, restapi.WithoutRetry())
			return err
		})
		if err != nil {
			v.logger.Debug("Availability probe failed",
				zap.String("subsystem", probe.Subsystem),
				zap.Error(err),
			)
			return &UnavailableError{Subsystem: probe.Subsystem, Path: probe.Path, Err: err}
		}
		v.logger.Debug("Subsystem available", zap.String("subsystem", probe.Subsystem))
	}

	err = v.retrier.Do(ctx, "mcp-state", p, func(ctx context.Context) error {
		raw, err := v.exec.List(ctx, mcpStatePath, restapi.WithoutRetry())
		if err != nil {
			return err
		}
		phase, ok := decodePhase(raw)
		if !ok {
			return errors.New("phase not reported")
		}
		if phase != PhaseRunning {
			return fmt.Errorf("phase is %q", phase)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotRunning, err)
	}

	v.logger.Debug("Management plane running")
	return nil
}

// WaitUntilActive blocks until the appliance reports the ACTIVE failover
// status, retrying with p.
func (v *Verifier) WaitUntilActive(ctx context.Context, p retry.Policy) (err error) {
	ctx, span := tracing.Tracer("verify").Start(ctx, "verify.WaitUntilActive")
	span.SetAttributes(attribute.String("retry.policy", p.String()))
	defer func() { tracing.Finish(span, err) }()

	err = v.retrier.Do(ctx, "failover-status", p, func(ctx context.Context) error {
		raw, err := v.exec.List(ctx, failoverStatusPath, restapi.WithoutRetry())
		if err != nil {
			return err
		}
		status, ok := decodeFailoverStatus(raw)
		if !ok {
			return errors.New("failover status not reported")
		}
		if status != StatusActive {
			return fmt.Errorf("failover status is %q", status)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotActive, err)
	}

	v.logger.Debug("Appliance active")
	return nil
}

// statsEnvelope is the shape of stats resources: a single entry keyed by
// the self link, whose nested entries hold the values.
type statsEnvelope struct {
	Entries map[string]struct {
		NestedStats struct {
			Entries map[string]struct {
				Description string `json:"description"`
			} `json:"entries"`
		} `json:"nestedStats"`
	} `json:"entries"`
}

// nestedDescription returns the description of field in the first entry
// that carries it. ok is false for malformed or incomplete envelopes.
func nestedDescription(raw json.RawMessage, field string) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var env statsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", false
	}
	for _, entry := range env.Entries {
		if v, ok := entry.NestedStats.Entries[field]; ok && v.Description != "" {
			return v.Description, true
		}
	}
	return "", false
}

func decodePhase(raw json.RawMessage) (string, bool) {
	return nestedDescription(raw, "phase")
}

func decodeFailoverStatus(raw json.RawMessage) (string, bool) {
	return nestedDescription(raw, "status")
}
