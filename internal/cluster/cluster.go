// Package cluster manages device trust, device groups and config sync on an
// appliance.
//
// Membership operations read the current state first and only write when
// the appliance does not already reflect the requested state, so every
// operation can be re-run safely.
package cluster

import (
	"context"
	"encoding/json"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/logging"
	"github.com/muurk/appliancectl/internal/metrics"
	"github.com/muurk/appliancectl/internal/restapi"
	"github.com/muurk/appliancectl/internal/retry"
	"github.com/muurk/appliancectl/internal/tracing"
)

// DefaultPolicy is applied to each cluster operation as a whole.
var DefaultPolicy = retry.MediumPolicy

// Cluster runs cluster operations against one appliance.
type Cluster struct {
	exec    restapi.Executor
	retrier *retry.Retrier
	logger  *zap.Logger
	policy  retry.Policy
}

// Option configures a Cluster
type Option func(*Cluster)

// WithPolicy sets the retry policy applied to each operation.
func WithPolicy(p retry.Policy) Option {
	return func(c *Cluster) {
		c.policy = p
	}
}

// New creates a Cluster. A nil retrier uses retry.New(); a nil logger uses
// the package logger.
func New(exec restapi.Executor, retrier *retry.Retrier, logger *zap.Logger, opts ...Option) *Cluster {
	if retrier == nil {
		retrier = retry.New()
	}
	if logger == nil {
		logger = logging.Named("cluster")
	}
	c := &Cluster{exec: exec, retrier: retrier, logger: logger, policy: DefaultPolicy}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run executes op under the cluster policy inside a span named after it.
// Rejected requests and validation errors end the operation at once.
func (c *Cluster) run(ctx context.Context, name string, attrs []attribute.KeyValue, op func(ctx context.Context) error) (err error) {
	ctx, span := tracing.Tracer("cluster").Start(ctx, "cluster."+name, trace.WithAttributes(attrs...))
	defer func() { tracing.Finish(span, err) }()

	return c.retrier.Do(ctx, "cluster."+name, c.policy, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && (restapi.IsRejected(err) || IsValidationError(err)) {
			return retry.Permanent(err)
		}
		return err
	})
}

// wrote records whether an operation issued a write.
func (c *Cluster) wrote(name string, write bool, fields ...zap.Field) {
	metrics.ClusterWrites.WithLabelValues(name, strconv.FormatBool(write)).Inc()
	if write {
		c.logger.Info("Cluster change applied", append([]zap.Field{zap.String("operation", name)}, fields...)...)
		return
	}
	c.logger.Debug("Cluster state already current", append([]zap.Field{zap.String("operation", name)}, fields...)...)
}

func (c *Cluster) list(ctx context.Context, path string, v any) error {
	raw, err := c.exec.List(ctx, path, restapi.WithoutRetry())
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return restapi.NewParseError("failed to decode "+path, err)
	}
	return nil
}

// commonPath renders a name in the /Common partition as a REST path segment.
func commonPath(name string) string {
	return "~Common~" + name
}
