// Package appliance bundles the clients for one appliance behind a single
// handle sharing an executor, retrier and logger.
package appliance

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/cluster"
	"github.com/muurk/appliancectl/internal/logging"
	"github.com/muurk/appliancectl/internal/restapi"
	"github.com/muurk/appliancectl/internal/retry"
	"github.com/muurk/appliancectl/internal/transaction"
	"github.com/muurk/appliancectl/internal/verify"
)

// Appliance is a management-plane handle for one device.
type Appliance struct {
	exec        restapi.Executor
	retrier     *retry.Retrier
	logger      *zap.Logger
	readyPolicy retry.Policy
	readyWait   bool

	clusterOpts     []cluster.Option
	transactionOpts []transaction.Option

	verifier    *verify.Verifier
	cluster     *cluster.Cluster
	coordinator *transaction.Coordinator
}

// Option configures an Appliance
type Option func(*Appliance)

// WithRetrier shares r with every component.
func WithRetrier(r *retry.Retrier) Option {
	return func(a *Appliance) {
		if r != nil {
			a.retrier = r
		}
	}
}

// WithLogger sets the logger every component derives its own from.
func WithLogger(l *zap.Logger) Option {
	return func(a *Appliance) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithReadyPolicy sets the policy used when mutating operations wait for
// readiness.
func WithReadyPolicy(p retry.Policy) Option {
	return func(a *Appliance) {
		a.readyPolicy = p
	}
}

// WithoutReadyWait skips the readiness wait before mutating operations.
func WithoutReadyWait() Option {
	return func(a *Appliance) {
		a.readyWait = false
	}
}

// WithClusterOptions passes options through to the cluster client.
func WithClusterOptions(opts ...cluster.Option) Option {
	return func(a *Appliance) {
		a.clusterOpts = append(a.clusterOpts, opts...)
	}
}

// WithTransactionOptions passes options through to the transaction coordinator.
func WithTransactionOptions(opts ...transaction.Option) Option {
	return func(a *Appliance) {
		a.transactionOpts = append(a.transactionOpts, opts...)
	}
}

// New creates an Appliance on top of exec.
func New(exec restapi.Executor, opts ...Option) *Appliance {
	a := &Appliance{
		exec:        exec,
		logger:      logging.GetLogger(),
		readyPolicy: retry.DefaultPolicy,
		readyWait:   true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.retrier == nil {
		a.retrier = retry.New(retry.WithLogger(a.logger.Named("retry")))
	}

	a.verifier = verify.New(exec, a.retrier, a.logger.Named("verify"))
	a.cluster = cluster.New(exec, a.retrier, a.logger.Named("cluster"), a.clusterOpts...)
	a.coordinator = transaction.New(exec, a.retrier, a.logger.Named("transaction"), a.transactionOpts...)
	return a
}

// Executor returns the underlying executor.
func (a *Appliance) Executor() restapi.Executor {
	return a.exec
}

// Cluster returns the cluster client. Its operations do not wait for
// readiness; call AwaitReady first.
func (a *Appliance) Cluster() *cluster.Cluster {
	return a.cluster
}

// Ready waits until the appliance accepts configuration.
func (a *Appliance) Ready(ctx context.Context, p retry.Policy) error {
	return a.verifier.WaitUntilReady(ctx, p)
}

// Active waits until the appliance holds the active failover role.
func (a *Appliance) Active(ctx context.Context, p retry.Policy) error {
	return a.verifier.WaitUntilActive(ctx, p)
}

// AwaitReady performs the readiness wait that precedes mutating operations,
// unless it was disabled with WithoutReadyWait.
func (a *Appliance) AwaitReady(ctx context.Context) error {
	if !a.readyWait {
		return nil
	}
	return a.verifier.WaitUntilReady(ctx, a.readyPolicy)
}

// List reads the resource at path.
func (a *Appliance) List(ctx context.Context, path string) (json.RawMessage, error) {
	return a.exec.List(ctx, path)
}

// Transaction runs commands as a single appliance transaction.
func (a *Appliance) Transaction(ctx context.Context, commands []transaction.Command) error {
	if err := a.AwaitReady(ctx); err != nil {
		return err
	}
	return a.coordinator.Run(ctx, commands)
}
