package wsrouter

// Reserved message types.
const (
	// TypeError is used for error envelopes that cannot be tied to an operation,
	// such as a frame that is not a valid envelope.
	TypeError = "error"
)

// Error codes carried in the payload of error envelopes.
const (
	CodeMalformedEnvelope = "malformed_envelope"
	CodeUnknownOperation  = "unknown_operation"
	CodeValidationError   = "validation_error"
	CodeInternalError     = "internal_error"
)

// WebSocket close codes used by the lifecycle controller.
const (
	CloseNormal           = 1000
	CloseGoingAway        = 1001
	ClosePolicyViolation  = 1008
	CloseMessageTooBig    = 1009
	CloseInternalError    = 1011
	CloseNoActivity       = 4000
	CloseLifespanExceeded = 4001
)

// CloseReason identifies why a connection left the serving state.
type CloseReason string

const (
	ReasonNormal           CloseReason = "normal closure"
	ReasonClientDisconnect CloseReason = "client disconnect"
	ReasonNoActivity       CloseReason = "no activity"
	ReasonLifespanExceeded CloseReason = "lifespan exceeded"
	ReasonInternalError    CloseReason = "internal error"
	ReasonAuthFailed       CloseReason = "authentication failed"
	ReasonRateLimited      CloseReason = "rate limit exceeded"
	ReasonMessageTooLarge  CloseReason = "message too large"
	ReasonShutdown         CloseReason = "server shutting down"
)

// Code returns the WebSocket close code sent with the reason.
func (r CloseReason) Code() int {
	switch r {
	case ReasonNoActivity:
		return CloseNoActivity
	case ReasonLifespanExceeded:
		return CloseLifespanExceeded
	case ReasonInternalError:
		return CloseInternalError
	case ReasonAuthFailed, ReasonRateLimited:
		return ClosePolicyViolation
	case ReasonMessageTooLarge:
		return CloseMessageTooBig
	case ReasonShutdown:
		return CloseGoingAway
	default:
		return CloseNormal
	}
}

func (r CloseReason) String() string {
	return string(r)
}
