// Package restapitest provides a recording restapi.Executor for tests.
package restapitest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/muurk/appliancectl/internal/restapi"
)

// Call is one recorded request.
type Call struct {
	Method  restapi.Method
	Path    string
	Body    any
	Options restapi.RequestOptions
}

// DecodeBody round-trips the recorded body through JSON into v, so
// assertions see exactly what would have been sent on the wire.
func (c Call) DecodeBody(v any) error {
	data, err := json.Marshal(c.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// BodyMap returns the recorded body as a generic JSON object.
func (c Call) BodyMap() map[string]any {
	var m map[string]any
	if err := c.DecodeBody(&m); err != nil {
		return nil
	}
	return m
}

func (c Call) String() string {
	return fmt.Sprintf("%s %s", c.Method, c.Path)
}

type route struct {
	method restapi.Method
	path   string
}

// Executor records every call and replies from scripted responses.
//
// Responses registered with When are consumed in order; the last one keeps
// answering once the queue is down to it. A queued value may be an error,
// a json.RawMessage, a string or []byte holding raw JSON, or any value that
// is marshalled to JSON. Routes with no script answer "{}".
type Executor struct {
	mu        sync.Mutex
	calls     []Call
	responses map[route][]any
}

// New creates an empty Executor.
func New() *Executor {
	return &Executor{responses: make(map[route][]any)}
}

// When scripts the responses for method and path.
func (e *Executor) When(method restapi.Method, path string, responses ...any) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := route{method, path}
	e.responses[r] = append(e.responses[r], responses...)
	return e
}

// Fail makes every call to method and path return err.
func (e *Executor) Fail(method restapi.Method, path string, err error) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses[route{method, path}] = []any{err}
	return e
}

// Calls returns a copy of every recorded call, oldest first.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	copy(out, e.calls)
	return out
}

// CallsTo returns the recorded calls matching method and path.
func (e *Executor) CallsTo(method restapi.Method, path string) []Call {
	var out []Call
	for _, c := range e.Calls() {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many calls were recorded.
func (e *Executor) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// LastCall returns the most recent call. ok is false when nothing was recorded.
func (e *Executor) LastCall() (c Call, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.calls) == 0 {
		return Call{}, false
	}
	return e.calls[len(e.calls)-1], true
}

// Reset forgets recorded calls and scripted responses.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
	e.responses = make(map[route][]any)
}

func (e *Executor) List(ctx context.Context, path string, opts ...restapi.Option) (json.RawMessage, error) {
	return e.record(ctx, restapi.MethodList, path, nil, opts)
}

func (e *Executor) Create(ctx context.Context, path string, body any, opts ...restapi.Option) (json.RawMessage, error) {
	return e.record(ctx, restapi.MethodCreate, path, body, opts)
}

func (e *Executor) Modify(ctx context.Context, path string, body any, opts ...restapi.Option) (json.RawMessage, error) {
	return e.record(ctx, restapi.MethodModify, path, body, opts)
}

func (e *Executor) Delete(ctx context.Context, path string, opts ...restapi.Option) (json.RawMessage, error) {
	return e.record(ctx, restapi.MethodDelete, path, nil, opts)
}

func (e *Executor) record(ctx context.Context, method restapi.Method, path string, body any, opts []restapi.Option) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.calls = append(e.calls, Call{
		Method:  method,
		Path:    path,
		Body:    body,
		Options: restapi.ApplyOptions(opts...),
	})

	r := route{method, path}
	queue := e.responses[r]
	var next any = json.RawMessage(`{}`)
	if len(queue) > 0 {
		next = queue[0]
		if len(queue) > 1 {
			e.responses[r] = queue[1:]
		}
	}
	e.mu.Unlock()

	switch v := next.(type) {
	case error:
		return nil, v
	case json.RawMessage:
		return v, nil
	case string:
		return json.RawMessage(v), nil
	case []byte:
		return json.RawMessage(v), nil
	case nil:
		return nil, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("restapitest: encode response for %s %s: %w", method, path, err)
		}
		return data, nil
	}
}

var _ restapi.Executor = (*Executor)(nil)
