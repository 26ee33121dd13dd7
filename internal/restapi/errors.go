package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error (connection reset, unreachable, etc.)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeAuth indicates an authentication failure (invalid credentials)
	ErrTypeAuth
	// ErrTypeHTTP indicates an HTTP-level error (non-2xx status code)
	ErrTypeHTTP
	// ErrTypeParse indicates a parsing error (malformed JSON request or response)
	ErrTypeParse
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the appliance refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// APIError is returned by every Client method when a request fails.
type APIError struct {
	Type           ErrorType           // Category of error
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (if applicable)
	Method         Method              // Request method, when known
	Path           string              // Request path, when known
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific network error type
	Retryable      bool                // Whether the transport may retry the request
}

// Error implements the error interface
func (e *APIError) Error() string {
	var b strings.Builder
	if e.Method != "" {
		fmt.Fprintf(&b, "%s %s: ", e.Method, e.Path)
	}
	fmt.Fprintf(&b, "%s: %s", e.Type, e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a more specific error
func ClassifyNetworkError(err error) *APIError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &APIError{
			Type:           ErrTypeTimeout,
			Message:        "request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			Retryable:      true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &APIError{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			Retryable:      false,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			// Management plane restarting refuses connections for a while
			return &APIError{
				Type:           ErrTypeConnectionRefused,
				Message:        "appliance refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &APIError{
				Type:           ErrTypeNetwork,
				Message:        "host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &APIError{
				Type:           ErrTypeNetwork,
				Message:        "network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				Retryable:      true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassifyNetworkError(urlErr.Err)
	}

	return &APIError{
		Type:           ErrTypeNetwork,
		Message:        "network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Retryable:      true,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, err error) *APIError {
	classified := ClassifyNetworkError(err)
	if classified != nil {
		classified.Message = message + ": " + classified.Message
		return classified
	}
	return &APIError{
		Type:      ErrTypeNetwork,
		Message:   message,
		Retryable: true,
	}
}

// NewAuthError creates an authentication error
func NewAuthError(message string) *APIError {
	return &APIError{
		Type:       ErrTypeAuth,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Retryable:  false,
	}
}

// NewHTTPError creates an HTTP-level error. Server errors are retryable.
func NewHTTPError(statusCode int, message string) *APIError {
	return &APIError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500,
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *APIError {
	return &APIError{
		Type:      ErrTypeParse,
		Message:   message,
		Err:       err,
		Retryable: false,
	}
}

// errorEnvelope is the body the appliance sends with 4xx/5xx responses.
type errorEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// httpErrorFromBody builds an HTTP error, preferring the appliance's own
// message over the raw body.
func httpErrorFromBody(statusCode int, body []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return NewHTTPError(statusCode, fmt.Sprintf("status %d: %s", statusCode, env.Message))
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	if text == "" {
		return NewHTTPError(statusCode, fmt.Sprintf("unexpected status code: %d", statusCode))
	}
	return NewHTTPError(statusCode, fmt.Sprintf("status %d: %s", statusCode, text))
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS, etc.)
func IsNetworkError(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Type == ErrTypeNetwork ||
			apiErr.Type == ErrTypeTimeout ||
			apiErr.Type == ErrTypeConnectionRefused ||
			apiErr.Type == ErrTypeDNS
	}
	return false
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Type == ErrTypeAuth
	}
	return false
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Type == ErrTypeHTTP
	}
	return false
}

// IsNotFound checks if the appliance answered 404
func IsNotFound(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Type == ErrTypeHTTP && apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Type == ErrTypeParse
	}
	return false
}

// IsRetryable checks if an error should be retried by the transport
func IsRetryable(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Retryable
	}
	// Unknown errors are not retryable by default
	return false
}

// IsRejected reports whether err is a non-retryable API error, one that
// repeating the same request cannot fix.
func IsRejected(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return !apiErr.Retryable
	}
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) []string {
	apiErr, ok := asAPIError(err)
	if !ok {
		return nil
	}

	switch apiErr.Type {
	case ErrTypeTimeout:
		return []string{
			"The appliance did not respond in time",
			"It may be rebooting or failing over; retry with a longer policy",
			"Increase --timeout for slow management networks",
		}

	case ErrTypeConnectionRefused:
		return []string{
			"The management port refused the connection",
			"The REST service restarts with the management plane; wait for 'ready'",
			"Verify the management port (default is 443)",
		}

	case ErrTypeDNS:
		return []string{
			"Could not resolve the appliance hostname",
			"Use the management IP address instead",
		}

	case ErrTypeAuth:
		return []string{
			"The appliance rejected the credentials",
			"Check --user and the password source (flag, APPLIANCECTL_PASSWORD or prompt)",
			"The account needs the Administrator role for cluster operations",
		}

	case ErrTypeNetwork:
		switch apiErr.NetworkSubtype {
		case NetworkErrorHostUnreachable, NetworkErrorNetworkUnreachable:
			return []string{
				"The management address is not reachable from this host",
				"Check routing to the management network",
			}
		default:
			return []string{
				"Network communication with the appliance failed",
				"Check the management address and port",
			}
		}

	case ErrTypeHTTP:
		if apiErr.StatusCode >= 500 {
			return []string{
				fmt.Sprintf("The appliance returned HTTP %d", apiErr.StatusCode),
				"The management plane may still be starting; run 'appliancectl ready'",
			}
		}
		if apiErr.StatusCode == http.StatusNotFound {
			return []string{"The requested resource does not exist on the appliance"}
		}
		return []string{"The appliance rejected the request; check the error message for details"}

	case ErrTypeParse:
		return []string{
			"The appliance response could not be decoded",
			"Confirm the address points at the management REST API",
		}
	}
	return nil
}
