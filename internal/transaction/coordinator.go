// Package transaction stages REST calls in an appliance transaction and
// commits them as one unit.
package transaction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/logging"
	"github.com/muurk/appliancectl/internal/metrics"
	"github.com/muurk/appliancectl/internal/restapi"
	"github.com/muurk/appliancectl/internal/retry"
	"github.com/muurk/appliancectl/internal/tracing"
)

const transactionRoot = "/tm/transaction/"

// DefaultPollPolicy bounds how long a committed transaction may stay in
// VALIDATING.
var DefaultPollPolicy = retry.MediumPolicy

// Coordinator runs command lists as appliance transactions.
type Coordinator struct {
	exec       restapi.Executor
	retrier    *retry.Retrier
	logger     *zap.Logger
	pollPolicy retry.Policy
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithPollPolicy sets the policy used while a commit is validating.
func WithPollPolicy(p retry.Policy) Option {
	return func(c *Coordinator) {
		c.pollPolicy = p
	}
}

// New creates a Coordinator. A nil retrier uses retry.New(); a nil logger
// uses the package logger.
func New(exec restapi.Executor, retrier *retry.Retrier, logger *zap.Logger, opts ...Option) *Coordinator {
	if retrier == nil {
		retrier = retry.New()
	}
	if logger == nil {
		logger = logging.Named("transaction")
	}
	c := &Coordinator{exec: exec, retrier: retrier, logger: logger, pollPolicy: DefaultPollPolicy}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// transactionResource is the body of /tm/transaction/<id>.
type transactionResource struct {
	TransID json.RawMessage `json:"transId"`
	State   State           `json:"state"`
}

type commitBody struct {
	State State `json:"state"`
}

// Run opens a transaction, stages commands in order and commits it.
//
// Staged calls are sent once each. The commit itself is never retried;
// only reads of a validating transaction are.
func (c *Coordinator) Run(ctx context.Context, commands []Command) (err error) {
	if len(commands) == 0 {
		return ErrNoCommands
	}
	for i, cmd := range commands {
		if verr := cmd.Validate(); verr != nil {
			return &ValidationError{Index: i, Message: verr.Error()}
		}
	}

	runID := uuid.NewString()
	log := c.logger.With(zap.String("run_id", runID))

	ctx, span := tracing.Tracer("transaction").Start(ctx, "transaction.Run")
	span.SetAttributes(
		attribute.String("transaction.run_id", runID),
		attribute.Int("transaction.commands", len(commands)),
	)
	defer func() {
		metrics.Transactions.WithLabelValues(result(err)).Inc()
		tracing.Finish(span, err)
	}()

	id, err := c.open(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("transaction.id", id))
	log = log.With(zap.String("transaction_id", id))
	log.Debug("Transaction opened", zap.Int("commands", len(commands)))

	for i, cmd := range commands {
		if _, err := restapi.Call(ctx, c.exec, cmd.Method, cmd.Path, cmd.Body,
			restapi.WithTransaction(id), restapi.WithoutRetry()); err != nil {
			log.Debug("Staging command failed", zap.Int("index", i), zap.Error(err))
			c.abandon(ctx, log, id)
			return &CommandError{Index: i, Command: cmd, Err: err}
		}
		metrics.TransactionCommands.Inc()
	}

	state, err := c.commit(ctx, id)
	if err != nil {
		c.abandon(ctx, log, id)
		return err
	}

	if state == StateValidating || state == "" {
		log.Debug("Transaction validating, polling")
		state, err = c.poll(ctx, id)
		if err != nil {
			return &IncompleteError{ID: id, State: StateValidating, Err: err}
		}
	}

	if state != StateCompleted {
		return &IncompleteError{ID: id, State: state}
	}

	log.Info("Transaction completed", zap.Int("commands", len(commands)))
	return nil
}

func (c *Coordinator) open(ctx context.Context) (string, error) {
	raw, err := c.exec.Create(ctx, transactionRoot, struct{}{}, restapi.WithoutRetry())
	if err != nil {
		return "", &StructuralError{Message: "failed to open transaction", Err: err}
	}
	var res transactionResource
	if err := decode(raw, &res); err != nil {
		return "", &StructuralError{Message: "invalid transaction response", Err: err}
	}
	id, err := decodeID(res.TransID)
	if err != nil {
		return "", &StructuralError{Message: "invalid transaction response", Err: err}
	}
	return id, nil
}

func (c *Coordinator) commit(ctx context.Context, id string) (State, error) {
	raw, err := c.exec.Modify(ctx, transactionRoot+id, commitBody{State: StateValidating}, restapi.WithoutRetry())
	if err != nil {
		return "", fmt.Errorf("commit transaction %s: %w", id, err)
	}
	var res transactionResource
	if err := decode(raw, &res); err != nil {
		return "", fmt.Errorf("commit transaction %s: %w", id, err)
	}
	return res.State, nil
}

// abandon deletes a transaction that will never be committed. Failures are
// logged only; the appliance expires stale transactions on its own.
func (c *Coordinator) abandon(ctx context.Context, log *zap.Logger, id string) {
	if _, err := c.exec.Delete(context.WithoutCancel(ctx), transactionRoot+id, restapi.WithoutRetry()); err != nil {
		log.Warn("Failed to delete abandoned transaction", zap.Error(err))
		return
	}
	log.Debug("Abandoned transaction deleted")
}

func (c *Coordinator) poll(ctx context.Context, id string) (State, error) {
	return retry.Value(ctx, c.retrier, "transaction.poll", c.pollPolicy, func(ctx context.Context) (State, error) {
		raw, err := c.exec.List(ctx, transactionRoot+id, restapi.WithoutRetry())
		if err != nil {
			return "", err
		}
		var res transactionResource
		if err := decode(raw, &res); err != nil {
			return "", err
		}
		if !res.State.Terminal() {
			return "", fmt.Errorf("transaction %s is %s", id, res.State)
		}
		return res.State, nil
	})
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return restapi.NewParseError("failed to decode transaction", err)
	}
	return nil
}

// decodeID accepts the transaction id as a JSON number or string.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("missing transId")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		if s == "" {
			return "", errors.New("missing transId")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("transId is not a number or string: %s", raw)
	}
	return n.String(), nil
}

func result(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrNotCompleted):
		return "incomplete"
	default:
		return "failed"
	}
}
