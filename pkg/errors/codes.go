// Package errors provides coded error types for smshub.
package errors

// ErrorCode identifies a class of smshub error.
type ErrorCode string

// Message and routing error codes.
const (
	// ErrInvalidMessage indicates an invalid message.
	ErrInvalidMessage ErrorCode = "INVALID_MESSAGE"

	// ErrNoRecipients indicates a message entered the pipeline with an
	// empty recipient list.
	ErrNoRecipients ErrorCode = "NO_RECIPIENTS"

	// ErrNoGatewayForRecipient indicates no gateway could be resolved for
	// a recipient and no default gateway is configured.
	ErrNoGatewayForRecipient ErrorCode = "NO_GATEWAY_FOR_RECIPIENT"
)

// Gateway error codes.
const (
	// ErrGatewayNotFound indicates the referenced gateway is not configured.
	ErrGatewayNotFound ErrorCode = "GATEWAY_NOT_FOUND"

	// ErrPluginNotFound indicates the gateway plugin is not registered.
	ErrPluginNotFound ErrorCode = "PLUGIN_NOT_FOUND"

	// ErrAlreadyRegistered indicates a duplicate plugin or gateway registration.
	ErrAlreadyRegistered ErrorCode = "ALREADY_REGISTERED"

	// ErrUnsupportedOperation indicates the gateway does not support the
	// requested operation, e.g. incoming messages or pull reports.
	ErrUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"

	// ErrGatewayTransport indicates a gateway driver send or parse call failed.
	ErrGatewayTransport ErrorCode = "GATEWAY_TRANSPORT"

	// ErrGatewayUnavailable indicates a gateway is temporarily unavailable.
	ErrGatewayUnavailable ErrorCode = "GATEWAY_UNAVAILABLE"
)

// Configuration and system error codes.
const (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"

	// ErrQueueFull indicates the queue is at capacity.
	ErrQueueFull ErrorCode = "QUEUE_FULL"

	// ErrQueueClosed indicates an operation on a closed queue.
	ErrQueueClosed ErrorCode = "QUEUE_CLOSED"

	// ErrNotFound indicates a record was not found.
	ErrNotFound ErrorCode = "NOT_FOUND"

	// ErrTimeout indicates an operation timed out.
	ErrTimeout ErrorCode = "TIMEOUT"

	// ErrInternal indicates an internal error.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// retryableCodes lists codes worth retrying from a queue worker. Validation
// and resolution failures are deterministic and never retried.
var retryableCodes = map[ErrorCode]bool{
	ErrGatewayTransport:   true,
	ErrGatewayUnavailable: true,
	ErrTimeout:            true,
	ErrQueueFull:          true,
}

// IsRetryable reports whether an error code is retryable.
func IsRetryable(code ErrorCode) bool {
	return retryableCodes[code]
}
