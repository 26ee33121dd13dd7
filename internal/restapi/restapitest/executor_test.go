package restapitest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/appliancectl/internal/restapi"
)

func TestExecutor_RecordsCallsInOrder(t *testing.T) {
	exec := New()
	ctx := context.Background()

	_, _ = exec.List(ctx, "/tm/sys/available")
	_, _ = exec.Create(ctx, "/tm/cm", map[string]string{"command": "run"}, restapi.WithTransaction("42"), restapi.WithoutRetry())
	_, _ = exec.Delete(ctx, "/tm/cm/device-group/~Common~dg1")

	calls := exec.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "list /tm/sys/available", calls[0].String())
	assert.Equal(t, restapi.MethodCreate, calls[1].Method)
	assert.Equal(t, map[string]any{"command": "run"}, calls[1].BodyMap())
	assert.Equal(t, restapi.RequestOptions{TransactionID: "42", NoRetry: true}, calls[1].Options)
	assert.Equal(t, restapi.MethodDelete, calls[2].Method)

	last, ok := exec.LastCall()
	require.True(t, ok)
	assert.Equal(t, "/tm/cm/device-group/~Common~dg1", last.Path)
}

func TestExecutor_DefaultResponse(t *testing.T) {
	raw, err := New().List(context.Background(), "/anything")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestExecutor_QueueLastResponseSticks(t *testing.T) {
	exec := New().When(restapi.MethodList, "/tm/sys/available", errors.New("down"), `{"a":1}`)
	ctx := context.Background()

	_, err := exec.List(ctx, "/tm/sys/available")
	assert.EqualError(t, err, "down")

	for i := 0; i < 2; i++ {
		raw, err := exec.List(ctx, "/tm/sys/available")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(raw))
	}
	assert.Len(t, exec.CallsTo(restapi.MethodList, "/tm/sys/available"), 3)
}

func TestExecutor_MarshalsValues(t *testing.T) {
	exec := New().When(restapi.MethodCreate, "/tm/transaction/", map[string]any{"transId": 1389812351})

	raw, err := exec.Create(context.Background(), "/tm/transaction/", struct{}{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"transId":1389812351}`, string(raw))
}

func TestExecutor_Fail(t *testing.T) {
	boom := errors.New("boom")
	exec := New().When(restapi.MethodModify, "/x", `{}`).Fail(restapi.MethodModify, "/x", boom)

	_, err := exec.Modify(context.Background(), "/x", nil)
	assert.ErrorIs(t, err, boom)
}

func TestExecutor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := New()
	_, err := exec.List(ctx, "/x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, exec.Count())
}

func TestExecutor_Reset(t *testing.T) {
	exec := New().When(restapi.MethodList, "/x", errors.New("boom"))
	_, _ = exec.List(context.Background(), "/x")

	exec.Reset()
	assert.Zero(t, exec.Count())

	_, err := exec.List(context.Background(), "/x")
	assert.NoError(t, err)
}
