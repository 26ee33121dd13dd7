package restapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/logging"
	"github.com/muurk/appliancectl/internal/metrics"
	"github.com/muurk/appliancectl/internal/retry"
	"github.com/muurk/appliancectl/internal/tracing"
)

const (
	// DefaultPort is the appliance management HTTPS port
	DefaultPort = 443

	// DefaultUsername is the built-in administrative account
	DefaultUsername = "admin"

	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 60 * time.Second

	// managementRoot is prefixed to every resource path
	managementRoot = "/mgmt"
)

// DefaultTransportPolicy retries transient transport failures of a single
// request. Device-level waits (reboots, failover) belong to the verifiers.
var DefaultTransportPolicy = retry.Policy{MaxAttempts: 3, Delay: time.Second}

// Client is an HTTP Executor for the appliance management API
type Client struct {
	// BaseURL is the management root (e.g., "https://10.0.0.5:443/mgmt")
	BaseURL string

	// Username for HTTP Basic Auth
	Username string

	// Password for HTTP Basic Auth
	Password string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// RetryPolicy is applied to retryable transport failures
	RetryPolicy retry.Policy

	retrier *retry.Retrier
	logger  *zap.Logger
}

// NewClient creates a new client for the appliance at host:port
func NewClient(host string, port int) *Client {
	return NewClientWithURL(fmt.Sprintf("https://%s:%d%s", host, port, managementRoot))
}

// NewClientWithURL creates a new client with a full management root URL
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Username:    DefaultUsername,
		HTTPClient:  &http.Client{Timeout: DefaultTimeout},
		RetryPolicy: DefaultTransportPolicy,
		retrier:     retry.New(),
		logger:      logging.Named("restapi"),
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetAuth sets HTTP Basic Auth credentials
func (c *Client) SetAuth(username, password string) {
	c.Username = username
	c.Password = password
}

// SetRetry configures the transport retry policy and the retrier that runs it
func (c *Client) SetRetry(policy retry.Policy, r *retry.Retrier) {
	c.RetryPolicy = policy
	if r != nil {
		c.retrier = r
	}
}

// SetLogger replaces the request logger
func (c *Client) SetLogger(l *zap.Logger) {
	if l != nil {
		c.logger = l
	}
}

// SetInsecureSkipVerify disables certificate verification. Appliances ship
// with self-signed management certificates.
func (c *Client) SetInsecureSkipVerify(skip bool) {
	transport, ok := c.HTTPClient.Transport.(*http.Transport)
	if !ok || transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	}
	transport.TLSClientConfig.InsecureSkipVerify = skip //nolint:gosec // opt-in for self-signed appliances
	c.HTTPClient.Transport = transport
}

// List reads a resource
func (c *Client) List(ctx context.Context, path string, opts ...Option) (json.RawMessage, error) {
	return c.do(ctx, MethodList, path, nil, opts)
}

// Create creates a resource or runs a command resource
func (c *Client) Create(ctx context.Context, path string, body any, opts ...Option) (json.RawMessage, error) {
	return c.do(ctx, MethodCreate, path, body, opts)
}

// Modify patches a resource
func (c *Client) Modify(ctx context.Context, path string, body any, opts ...Option) (json.RawMessage, error) {
	return c.do(ctx, MethodModify, path, body, opts)
}

// Delete removes a resource
func (c *Client) Delete(ctx context.Context, path string, opts ...Option) (json.RawMessage, error) {
	return c.do(ctx, MethodDelete, path, nil, opts)
}

func (c *Client) do(ctx context.Context, method Method, path string, body any, opts []Option) (json.RawMessage, error) {
	o := ApplyOptions(opts...)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			apiErr := NewParseError("failed to encode request body", err)
			apiErr.Method, apiErr.Path = method, path
			return nil, apiErr
		}
	}

	policy := c.RetryPolicy
	if o.NoRetry {
		policy = retry.NoRetry
	}

	return retry.Value(ctx, c.retrier, "rest."+string(method), policy, func(ctx context.Context) (json.RawMessage, error) {
		raw, err := c.attempt(ctx, method, path, payload, o)
		if err != nil && !IsRetryable(err) {
			return nil, retry.Permanent(err)
		}
		return raw, err
	})
}

// attempt performs a single HTTP round trip
func (c *Client) attempt(ctx context.Context, method Method, path string, payload []byte, o RequestOptions) (raw json.RawMessage, err error) {
	ctx, span := tracing.Tracer("restapi").Start(ctx, "restapi."+string(method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method.HTTPMethod()),
			attribute.String("appliance.path", path),
		),
	)
	if o.TransactionID != "" {
		span.SetAttributes(attribute.String("appliance.transaction_id", o.TransactionID))
	}

	start := time.Now()
	statusCode := 0
	defer func() {
		if apiErr, ok := asAPIError(err); ok && apiErr.Method == "" {
			apiErr.Method, apiErr.Path = method, path
		}
		metrics.Requests.WithLabelValues(string(method), metrics.StatusLabel(statusCode)).Inc()
		logging.LogRequest(c.logger, string(method), path, statusCode, time.Since(start), err)
		span.SetAttributes(attribute.Int("http.response.status_code", statusCode))
		tracing.Finish(span, err)
	}()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method.HTTPMethod(), c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, NewNetworkError("failed to create request", err)
	}

	req.SetBasicAuth(c.Username, c.Password)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.TransactionID != "" {
		req.Header.Set(TransactionHeader, o.TransactionID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, NewNetworkError("request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	statusCode = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError("failed to read response body", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, NewAuthError("authentication failed (check credentials)")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpErrorFromBody(resp.StatusCode, respBody)
	}

	respBody = bytes.TrimSpace(respBody)
	if len(respBody) == 0 {
		return nil, nil
	}

	if !json.Valid(respBody) {
		return nil, NewParseError("response is not valid JSON", nil)
	}

	return json.RawMessage(respBody), nil
}
