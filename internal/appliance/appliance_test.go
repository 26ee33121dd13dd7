package appliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/restapi"
	"github.com/muurk/appliancectl/internal/restapi/restapitest"
	"github.com/muurk/appliancectl/internal/retry"
	"github.com/muurk/appliancectl/internal/transaction"
	"github.com/muurk/appliancectl/internal/verify"
)

const runningState = `{"entries":{"https://localhost/mgmt/tm/sys/mcp-state/0":{"nestedStats":{"entries":{"phase":{"description":"running"}}}}}}`

func newTestAppliance(exec restapi.Executor, opts ...Option) *Appliance {
	opts = append([]Option{
		WithLogger(zap.NewNop()),
		WithReadyPolicy(retry.Policy{MaxAttempts: 2, Delay: time.Millisecond}),
	}, opts...)
	return New(exec, opts...)
}

func TestLoad_Default(t *testing.T) {
	exec := restapitest.New()

	require.NoError(t, newTestAppliance(exec, WithoutReadyWait()).Load(context.Background(), "", nil))

	last, ok := exec.LastCall()
	require.True(t, ok)
	assert.Equal(t, restapi.MethodCreate, last.Method)
	assert.Equal(t, "/tm/sys/config", last.Path)
	assert.Equal(t, map[string]any{"command": "load", "name": "default"}, last.BodyMap())
}

func TestLoad_FileAndOptions(t *testing.T) {
	exec := restapitest.New()
	opts := []LoadOption{{Name: "foo", Value: "bar"}, {Name: "hello", Value: "world"}}

	require.NoError(t, newTestAppliance(exec, WithoutReadyWait()).Load(context.Background(), "foobar", opts))

	last, _ := exec.LastCall()
	assert.Equal(t, []any{
		map[string]any{"file": "foobar"},
		map[string]any{"foo": "bar"},
		map[string]any{"hello": "world"},
	}, last.BodyMap()["options"])
}

func TestLoad_OptionsOnly(t *testing.T) {
	exec := restapitest.New()

	require.NoError(t, newTestAppliance(exec, WithoutReadyWait()).Load(context.Background(), "", []LoadOption{{Name: "merge", Value: true}}))

	last, _ := exec.LastCall()
	assert.Equal(t, []any{map[string]any{"merge": true}}, last.BodyMap()["options"])
}

func TestSave(t *testing.T) {
	t.Run("running config", func(t *testing.T) {
		exec := restapitest.New()

		require.NoError(t, newTestAppliance(exec, WithoutReadyWait()).Save(context.Background(), ""))

		last, _ := exec.LastCall()
		assert.Equal(t, map[string]any{"command": "save"}, last.BodyMap())
	})

	t.Run("to file", func(t *testing.T) {
		exec := restapitest.New()

		require.NoError(t, newTestAppliance(exec, WithoutReadyWait()).Save(context.Background(), "backup.ucs"))

		last, _ := exec.LastCall()
		assert.Equal(t, map[string]any{
			"command": "save",
			"options": []any{map[string]any{"file": "backup.ucs"}},
		}, last.BodyMap())
	})
}

func TestMutatingOpsAwaitReady(t *testing.T) {
	exec := restapitest.New().When(restapi.MethodList, "/tm/sys/mcp-state/", runningState)

	require.NoError(t, newTestAppliance(exec).Save(context.Background(), ""))

	calls := exec.Calls()
	require.Len(t, calls, 6)
	assert.Equal(t, "/shared/echo-js/available", calls[0].Path)
	assert.Equal(t, "/tm/sys/mcp-state/", calls[4].Path)
	assert.Equal(t, "create /tm/sys/config", calls[5].String())
}

func TestMutatingOpsStopWhenNotReady(t *testing.T) {
	exec := restapitest.New().When(restapi.MethodList, "/tm/sys/mcp-state/", `{"entries":{}}`)

	err := newTestAppliance(exec).Load(context.Background(), "", nil)
	assert.ErrorIs(t, err, verify.ErrNotRunning)
	assert.Empty(t, exec.CallsTo(restapi.MethodCreate, "/tm/sys/config"))
}

func TestPing(t *testing.T) {
	tests := []struct {
		name    string
		result  string
		wantErr string
	}{
		{
			name:   "reachable",
			result: "PING 1.2.3.4 (1.2.3.4) 56(84) bytes of data.\n\n--- 1.2.3.4 ping statistics ---\n1 packets transmitted, 1 received, 0% packet loss, time 43ms\n",
		},
		{
			name:    "unreachable",
			result:  "--- 1.2.3.4 ping statistics ---\n2 packets transmitted, 0 received, 100% packet loss, time 2000ms\n",
			wantErr: "1.2.3.4 is not reachable",
		},
		{
			name:    "unknown host",
			result:  "ping: unknown host f5.com\n",
			wantErr: "invalid response from ping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := restapitest.New().When(restapi.MethodCreate, pingPath, map[string]string{"commandResult": tt.result})

			err := newTestAppliance(exec, WithoutReadyWait()).Ping(context.Background(), "1.2.3.4", retry.NoRetry)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				assert.EqualError(t, err, tt.wantErr)
			}

			assert.Equal(t, 1, exec.Count())
			last, _ := exec.LastCall()
			assert.Equal(t, map[string]any{"command": "run", "utilCmdArgs": "-c 2 1.2.3.4"}, last.BodyMap())
		})
	}
}

func TestPing_RetriedUntilReachable(t *testing.T) {
	exec := restapitest.New().When(restapi.MethodCreate, pingPath,
		map[string]string{"commandResult": "2 packets transmitted, 0 received"},
		errors.New("reset"),
		map[string]string{"commandResult": "2 packets transmitted, 2 received"},
	)

	err := newTestAppliance(exec, WithoutReadyWait()).Ping(context.Background(), "10.0.0.1", retry.Policy{MaxAttempts: 5, Delay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 3, exec.Count())
}

func TestPing_RequiresAddress(t *testing.T) {
	exec := restapitest.New()

	assert.Error(t, newTestAppliance(exec).Ping(context.Background(), "", retry.NoRetry))
	assert.Zero(t, exec.Count())
}

func TestTransaction(t *testing.T) {
	exec := restapitest.New().
		When(restapi.MethodCreate, "/tm/transaction/", `{"transId":7}`).
		When(restapi.MethodModify, "/tm/transaction/7", `{"state":"COMPLETED"}`)

	cmds := []transaction.Command{{Method: restapi.MethodDelete, Path: "/tm/ltm/pool/~Common~web"}}
	require.NoError(t, newTestAppliance(exec, WithoutReadyWait()).Transaction(context.Background(), cmds))

	calls := exec.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "7", calls[1].Options.TransactionID)
}

func TestActive(t *testing.T) {
	exec := restapitest.New().When(restapi.MethodList, "/tm/cm/failover-status",
		`{"entries":{"x":{"nestedStats":{"entries":{"status":{"description":"ACTIVE"}}}}}}`)

	require.NoError(t, newTestAppliance(exec).Active(context.Background(), retry.NoRetry))
	assert.Equal(t, 1, exec.Count())
}

func TestList(t *testing.T) {
	exec := restapitest.New().When(restapi.MethodList, "/tm/sys/version", `{"kind":"tm:sys:version:versionstats"}`)

	raw, err := newTestAppliance(exec).List(context.Background(), "/tm/sys/version")
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"tm:sys:version:versionstats"}`, string(raw))
}

func TestSharedRetrier(t *testing.T) {
	exec := restapitest.New().Fail(restapi.MethodList, "/tm/cm/failover-status", errors.New("down"))

	a := newTestAppliance(exec, WithRetrier(retry.New(retry.WithImmediateFail(true))))
	require.Error(t, a.Active(context.Background(), retry.DefaultPolicy))
	assert.Equal(t, 1, exec.Count())
	assert.NotNil(t, a.Cluster())
	assert.Same(t, exec, a.Executor())
}
