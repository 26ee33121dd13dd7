package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/restapi"
	"github.com/muurk/appliancectl/internal/restapi/restapitest"
	"github.com/muurk/appliancectl/internal/retry"
)

const transID = "1389812351"

func newCoordinator(exec restapi.Executor) *Coordinator {
	return New(exec, retry.New(), zap.NewNop(), WithPollPolicy(retry.Policy{MaxAttempts: 3, Delay: time.Millisecond}))
}

func twoCommands() []Command {
	return []Command{
		{Method: restapi.MethodCreate, Path: "/tm/ltm/pool", Body: map[string]any{"name": "web"}},
		{Method: restapi.MethodModify, Path: "/tm/sys/global-settings", Body: map[string]any{"guiSetup": "disabled"}},
	}
}

func TestRun_Completed(t *testing.T) {
	exec := restapitest.New().
		When(restapi.MethodCreate, transactionRoot, `{"transId":1389812351,"state":"STARTED"}`).
		When(restapi.MethodModify, transactionRoot+transID, `{"transId":1389812351,"state":"COMPLETED"}`)

	require.NoError(t, newCoordinator(exec).Run(context.Background(), twoCommands()))

	calls := exec.Calls()
	require.Len(t, calls, 4)

	assert.Equal(t, restapi.MethodCreate, calls[0].Method)
	assert.Equal(t, "/tm/transaction/", calls[0].Path)
	assert.Equal(t, map[string]any{}, calls[0].BodyMap())

	assert.Equal(t, "create /tm/ltm/pool", calls[1].String())
	assert.Equal(t, map[string]any{"name": "web"}, calls[1].BodyMap())
	assert.Equal(t, "modify /tm/sys/global-settings", calls[2].String())
	for _, c := range calls[1:3] {
		assert.Equal(t, transID, c.Options.TransactionID)
		assert.True(t, c.Options.NoRetry)
	}

	assert.Equal(t, restapi.MethodModify, calls[3].Method)
	assert.Equal(t, "/tm/transaction/"+transID, calls[3].Path)
	assert.Equal(t, map[string]any{"state": "VALIDATING"}, calls[3].BodyMap())
	assert.Empty(t, calls[3].Options.TransactionID)
}

func TestRun_StringTransID(t *testing.T) {
	exec := restapitest.New().
		When(restapi.MethodCreate, transactionRoot, `{"transId":"abc-1"}`).
		When(restapi.MethodModify, transactionRoot+"abc-1", `{"state":"COMPLETED"}`)

	require.NoError(t, newCoordinator(exec).Run(context.Background(), twoCommands()[:1]))
	assert.Equal(t, "abc-1", exec.Calls()[1].Options.TransactionID)
}

func TestRun_ValidatingThenCompleted(t *testing.T) {
	exec := restapitest.New().
		When(restapi.MethodCreate, transactionRoot, `{"transId":1389812351}`).
		When(restapi.MethodModify, transactionRoot+transID, `{"state":"VALIDATING"}`).
		When(restapi.MethodList, transactionRoot+transID, `{"state":"VALIDATING"}`, `{"state":"COMPLETED"}`)

	require.NoError(t, newCoordinator(exec).Run(context.Background(), twoCommands()))
	assert.Len(t, exec.CallsTo(restapi.MethodList, transactionRoot+transID), 2)
	assert.Len(t, exec.CallsTo(restapi.MethodModify, transactionRoot+transID), 1)
}

func TestRun_ValidatingThenUnknownState(t *testing.T) {
	exec := restapitest.New().
		When(restapi.MethodCreate, transactionRoot, `{"transId":1389812351}`).
		When(restapi.MethodModify, transactionRoot+transID, `{"state":"VALIDATING"}`).
		When(restapi.MethodList, transactionRoot+transID, `{"state":"FOOBAR"}`)

	err := newCoordinator(exec).Run(context.Background(), twoCommands())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotCompleted)
	assert.Contains(t, err.Error(), "transaction not completed")

	var incomplete *IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, State("FOOBAR"), incomplete.State)
}

func TestRun_CommitFailedState(t *testing.T) {
	exec := restapitest.New().
		When(restapi.MethodCreate, transactionRoot, `{"transId":1389812351}`).
		When(restapi.MethodModify, transactionRoot+transID, `{"state":"FAILED"}`)

	err := newCoordinator(exec).Run(context.Background(), twoCommands())
	assert.ErrorIs(t, err, ErrNotCompleted)
	assert.Empty(t, exec.CallsTo(restapi.MethodList, transactionRoot+transID))
	assert.Empty(t, exec.CallsTo(restapi.MethodDelete, transactionRoot+transID))
}

func TestRun_StillValidatingWhenPollingGivesUp(t *testing.T) {
	exec := restapitest.New().
		When(restapi.MethodCreate, transactionRoot, `{"transId":1389812351}`).
		When(restapi.MethodModify, transactionRoot+transID, `{"state":"VALIDATING"}`).
		When(restapi.MethodList, transactionRoot+transID, `{"state":"VALIDATING"}`)

	err := newCoordinator(exec).Run(context.Background(), twoCommands())

	var incomplete *IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, StateValidating, incomplete.State)
	assert.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Len(t, exec.CallsTo(restapi.MethodList, transactionRoot+transID), 3)
}

func TestRun_CreationFailure(t *testing.T) {
	exec := restapitest.New().Fail(restapi.MethodCreate, transactionRoot, errors.New("boom"))

	err := newCoordinator(exec).Run(context.Background(), twoCommands())

	var structural *StructuralError
	require.ErrorAs(t, err, &structural)
	assert.Equal(t, 1, exec.Count())
}

func TestRun_MissingTransID(t *testing.T) {
	for _, body := range []string{`{}`, `{"transId":null}`, `{"transId":""}`, `{"transId":true}`} {
		t.Run(body, func(t *testing.T) {
			exec := restapitest.New().When(restapi.MethodCreate, transactionRoot, body)

			err := newCoordinator(exec).Run(context.Background(), twoCommands())

			var structural *StructuralError
			require.ErrorAs(t, err, &structural)
			assert.Equal(t, 1, exec.Count())
		})
	}
}

func TestRun_CommandFailureAborts(t *testing.T) {
	boom := errors.New("01020066:3: The requested Pool (/Common/web) already exists")
	exec := restapitest.New().
		When(restapi.MethodCreate, transactionRoot, `{"transId":1389812351}`).
		Fail(restapi.MethodCreate, "/tm/ltm/pool", boom)

	err := newCoordinator(exec).Run(context.Background(), twoCommands())
	require.ErrorIs(t, err, boom)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 0, cmdErr.Index)

	assert.Empty(t, exec.CallsTo(restapi.MethodModify, "/tm/sys/global-settings"))
	assert.Empty(t, exec.CallsTo(restapi.MethodModify, transactionRoot+transID))

	last, ok := exec.LastCall()
	require.True(t, ok)
	assert.Equal(t, "delete /tm/transaction/"+transID, last.String())
	assert.True(t, last.Options.NoRetry)
}

func TestRun_DeleteFailureKeepsCommandError(t *testing.T) {
	boom := errors.New("01070734:3: Configuration error")
	exec := restapitest.New().
		When(restapi.MethodCreate, transactionRoot, `{"transId":1389812351}`).
		Fail(restapi.MethodModify, "/tm/sys/global-settings", boom).
		Fail(restapi.MethodDelete, transactionRoot+transID, errors.New("connection reset"))

	err := newCoordinator(exec).Run(context.Background(), twoCommands())

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.Index)
	assert.ErrorIs(t, err, boom)
	assert.NotContains(t, err.Error(), "connection reset")
	assert.Len(t, exec.CallsTo(restapi.MethodDelete, transactionRoot+transID), 1)
}

// cancelingExecutor cancels the run when path is staged.
type cancelingExecutor struct {
	*restapitest.Executor
	path   string
	cancel context.CancelFunc
}

func (e cancelingExecutor) Create(ctx context.Context, path string, body any, opts ...restapi.Option) (json.RawMessage, error) {
	if path == e.path {
		e.cancel()
		return nil, ctx.Err()
	}
	return e.Executor.Create(ctx, path, body, opts...)
}

func TestRun_DeletesAfterCanceledStaging(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := restapitest.New().When(restapi.MethodCreate, transactionRoot, `{"transId":1389812351}`)

	err := newCoordinator(cancelingExecutor{exec, "/tm/ltm/pool", cancel}).Run(ctx, twoCommands())
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, exec.CallsTo(restapi.MethodDelete, transactionRoot+transID), 1)
}

func TestRun_CommitNotRetried(t *testing.T) {
	exec := restapitest.New().
		When(restapi.MethodCreate, transactionRoot, `{"transId":1389812351}`).
		Fail(restapi.MethodModify, transactionRoot+transID, errors.New("reset"))

	err := newCoordinator(exec).Run(context.Background(), twoCommands())
	require.Error(t, err)
	assert.Len(t, exec.CallsTo(restapi.MethodModify, transactionRoot+transID), 1)
	assert.Len(t, exec.CallsTo(restapi.MethodDelete, transactionRoot+transID), 1)
}

func TestRun_ValidatesBeforeOpening(t *testing.T) {
	exec := restapitest.New()
	cmds := append(twoCommands(), Command{Method: "upsert", Path: "/tm/ltm/pool"})

	err := newCoordinator(exec).Run(context.Background(), cmds)
	assert.True(t, IsValidationError(err))
	assert.Zero(t, exec.Count())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, verr.Index)
}

func TestRun_NoCommands(t *testing.T) {
	exec := restapitest.New()

	assert.ErrorIs(t, newCoordinator(exec).Run(context.Background(), nil), ErrNoCommands)
	assert.Zero(t, exec.Count())
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, StateOpen.Terminal())
	assert.False(t, StateValidating.Terminal())
	assert.False(t, State("").Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, State("FOOBAR").Terminal())
	assert.Equal(t, "UNKNOWN", State("").String())
}

func TestLoadCommands(t *testing.T) {
	doc := `
commands:
  - method: create
    path: /tm/ltm/pool
    body:
      name: web
      members:
        - name: 10.0.0.10:80
  - method: delete
    path: /tm/ltm/pool/~Common~old
`
	cmds, err := LoadCommands(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, cmds, 2)

	assert.Equal(t, restapi.MethodCreate, cmds[0].Method)
	assert.Equal(t, "/tm/ltm/pool", cmds[0].Path)
	assert.Equal(t, map[string]any{
		"name":    "web",
		"members": []any{map[string]any{"name": "10.0.0.10:80"}},
	}, cmds[0].Body)
	assert.Nil(t, cmds[1].Body)
}

func TestLoadCommands_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "empty"},
		{"bad method", "commands:\n  - method: get\n    path: /tm/ltm/pool\n", "command 0"},
		{"relative path", "commands:\n  - method: list\n    path: tm/ltm/pool\n", "path must start with /"},
		{"unknown field", "commands:\n  - method: list\n    url: /x\n", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCommands(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
