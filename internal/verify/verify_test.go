package verify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/restapi"
	"github.com/muurk/appliancectl/internal/restapi/restapitest"
	"github.com/muurk/appliancectl/internal/retry"
)

var quick = retry.Policy{MaxAttempts: 3, Delay: time.Millisecond}

func mcpState(phase string) string {
	return `{"kind":"tm:sys:mcp-state:mcp-statestats","entries":{"https://localhost/mgmt/tm/sys/mcp-state/0":{"nestedStats":{"entries":{"end-platform-id-received":{"description":"true"},"phase":{"description":"` + phase + `"}}}}}}`
}

func failoverStatus(status string) string {
	return `{"kind":"tm:cm:failover-status:failover-statusstats","entries":{"https://localhost/mgmt/tm/cm/failover-status/0":{"nestedStats":{"entries":{"color":{"description":"green"},"status":{"description":"` + status + `"}}}}}}`
}

func newVerifier(exec restapi.Executor) *Verifier {
	return New(exec, retry.New(), zap.NewNop())
}

func TestWaitUntilReady_ProbeOrder(t *testing.T) {
	exec := restapitest.New().When(restapi.MethodList, mcpStatePath, mcpState("running"))

	require.NoError(t, newVerifier(exec).WaitUntilReady(context.Background(), quick))

	var paths []string
	for _, c := range exec.Calls() {
		assert.Equal(t, restapi.MethodList, c.Method)
		assert.True(t, c.Options.NoRetry, "probe %s should bypass transport retry", c.Path)
		paths = append(paths, c.Path)
	}
	assert.Equal(t, []string{
		"/shared/echo-js/available",
		"/shared/identified-devices/config/device-info/available",
		"/tm/sys/available",
		"/tm/cm/available",
		"/tm/sys/mcp-state/",
	}, paths)
}

func TestWaitUntilReady_ProbeRetriedUntilAvailable(t *testing.T) {
	down := errors.New("connection refused")
	exec := restapitest.New().
		When(restapi.MethodList, "/tm/sys/available", down, down, `{}`).
		When(restapi.MethodList, mcpStatePath, mcpState("running"))

	require.NoError(t, newVerifier(exec).WaitUntilReady(context.Background(), quick))
	assert.Len(t, exec.CallsTo(restapi.MethodList, "/tm/sys/available"), 3)
}

func TestWaitUntilReady_UnavailableStopsEarly(t *testing.T) {
	down := errors.New("connection refused")
	exec := restapitest.New().Fail(restapi.MethodList, "/tm/sys/available", down)

	err := newVerifier(exec).WaitUntilReady(context.Background(), quick)
	require.Error(t, err)

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "sys", unavailable.Subsystem)
	assert.Equal(t, "/tm/sys/available", unavailable.Path)
	assert.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.ErrorIs(t, err, down)

	assert.Empty(t, exec.CallsTo(restapi.MethodList, "/tm/cm/available"))
	assert.Empty(t, exec.CallsTo(restapi.MethodList, mcpStatePath))
}

func TestWaitUntilReady_PhaseEventuallyRunning(t *testing.T) {
	exec := restapitest.New().When(restapi.MethodList, mcpStatePath,
		mcpState("start"), `{"entries":{}}`, mcpState("running"))

	require.NoError(t, newVerifier(exec).WaitUntilReady(context.Background(), quick))
	assert.Len(t, exec.CallsTo(restapi.MethodList, mcpStatePath), 3)
}

func TestWaitUntilReady_PhaseNeverRunning(t *testing.T) {
	exec := restapitest.New().When(restapi.MethodList, mcpStatePath, mcpState("license-check"))

	err := newVerifier(exec).WaitUntilReady(context.Background(), quick)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Len(t, exec.CallsTo(restapi.MethodList, mcpStatePath), 3)
}

func TestWaitUntilReady_MalformedPhaseIsNotReady(t *testing.T) {
	exec := restapitest.New().When(restapi.MethodList, mcpStatePath, `{"entries":"nope"}`)

	err := newVerifier(exec).WaitUntilReady(context.Background(), quick)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestWaitUntilReady_ImmediateFail(t *testing.T) {
	exec := restapitest.New().Fail(restapi.MethodList, "/shared/echo-js/available", errors.New("down"))
	v := New(exec, retry.New(retry.WithImmediateFail(true)), nil)

	err := v.WaitUntilReady(context.Background(), retry.DefaultPolicy)
	require.Error(t, err)
	assert.Equal(t, 1, exec.Count())
	assert.NotErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
}

func TestWaitUntilActive_FirstRead(t *testing.T) {
	exec := restapitest.New().When(restapi.MethodList, failoverStatusPath, failoverStatus("ACTIVE"))

	require.NoError(t, newVerifier(exec).WaitUntilActive(context.Background(), quick))
	assert.Equal(t, 1, exec.Count())
}

func TestWaitUntilActive_AfterStandby(t *testing.T) {
	exec := restapitest.New().When(restapi.MethodList, failoverStatusPath,
		failoverStatus("STANDBY"), errors.New("reset"), failoverStatus("ACTIVE"))

	require.NoError(t, newVerifier(exec).WaitUntilActive(context.Background(), quick))
	assert.Equal(t, 3, exec.Count())
}

func TestWaitUntilActive_NeverActive(t *testing.T) {
	exec := restapitest.New().When(restapi.MethodList, failoverStatusPath, failoverStatus("STANDBY"))

	err := newVerifier(exec).WaitUntilActive(context.Background(), quick)
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Contains(t, err.Error(), `"STANDBY"`)
}

func TestWaitUntilActive_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := restapitest.New()
	err := newVerifier(exec).WaitUntilActive(ctx, quick)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodePhase(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"running", mcpState("running"), "running", true},
		{"empty body", "", "", false},
		{"not json", "<html>", "", false},
		{"no entries", `{"kind":"x"}`, "", false},
		{"no phase", `{"entries":{"a":{"nestedStats":{"entries":{}}}}}`, "", false},
		{"wrong shape", `{"entries":[1,2]}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodePhase(json.RawMessage(tt.raw))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeFailoverStatus(t *testing.T) {
	got, ok := decodeFailoverStatus(json.RawMessage(failoverStatus("FORCED OFFLINE")))
	assert.True(t, ok)
	assert.Equal(t, "FORCED OFFLINE", got)

	_, ok = decodeFailoverStatus(json.RawMessage(mcpState("running")))
	assert.False(t, ok)
}
