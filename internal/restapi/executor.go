package restapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Method is one of the four operations the appliance REST API supports.
type Method string

const (
	MethodList   Method = "list"
	MethodCreate Method = "create"
	MethodModify Method = "modify"
	MethodDelete Method = "delete"
)

// HTTPMethod returns the HTTP verb for m.
func (m Method) HTTPMethod() string {
	switch m {
	case MethodList:
		return http.MethodGet
	case MethodCreate:
		return http.MethodPost
	case MethodModify:
		return http.MethodPatch
	case MethodDelete:
		return http.MethodDelete
	default:
		return ""
	}
}

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	return m.HTTPMethod() != ""
}

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !m.Valid() {
		return "", fmt.Errorf("method must be list, create, modify or delete, got %q", s)
	}
	return m, nil
}

// Executor performs single calls against the appliance REST API.
//
// Paths are appliance resource paths relative to the management root
// (e.g., "/tm/cm/device-group/"). Responses are the raw JSON body; an empty
// body yields a nil message.
type Executor interface {
	List(ctx context.Context, path string, opts ...Option) (json.RawMessage, error)
	Create(ctx context.Context, path string, body any, opts ...Option) (json.RawMessage, error)
	Modify(ctx context.Context, path string, body any, opts ...Option) (json.RawMessage, error)
	Delete(ctx context.Context, path string, opts ...Option) (json.RawMessage, error)
}

// Call dispatches method to the matching Executor function. body is ignored
// for list and delete.
func Call(ctx context.Context, exec Executor, method Method, path string, body any, opts ...Option) (json.RawMessage, error) {
	switch method {
	case MethodList:
		return exec.List(ctx, path, opts...)
	case MethodCreate:
		return exec.Create(ctx, path, body, opts...)
	case MethodModify:
		return exec.Modify(ctx, path, body, opts...)
	case MethodDelete:
		return exec.Delete(ctx, path, opts...)
	default:
		return nil, fmt.Errorf("unsupported method %q", method)
	}
}

// TransactionHeader carries the transaction identifier on calls staged inside
// an open transaction.
const TransactionHeader = "X-F5-REST-Coordination-Id"

// RequestOptions are per-call settings.
type RequestOptions struct {
	// TransactionID routes the call through an open transaction.
	TransactionID string

	// NoRetry disables the transport retry for this call.
	NoRetry bool
}

// Option modifies RequestOptions
type Option func(*RequestOptions)

// WithTransaction stages the call inside transaction id.
func WithTransaction(id string) Option {
	return func(o *RequestOptions) {
		o.TransactionID = id
	}
}

// WithoutRetry sends the call exactly once regardless of the client's
// transport policy.
func WithoutRetry() Option {
	return func(o *RequestOptions) {
		o.NoRetry = true
	}
}

// ApplyOptions folds opts into a RequestOptions value.
func ApplyOptions(opts ...Option) RequestOptions {
	var o RequestOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
