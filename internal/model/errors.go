package model

import "errors"

var (
	// ErrAbortedComputation is returned when the cluster reports failure.
	ErrAbortedComputation = errors.New("sentinel: computation was aborted")

	// ErrClusterNotSet is returned by submission when no cluster is configured.
	ErrClusterNotSet = errors.New("sentinel: cluster not configured")

	ErrInvalidPositionState  = errors.New("sentinel: invalid position state")
	ErrOrderExpired          = errors.New("sentinel: order expired")
	ErrInsufficientLiquidity = errors.New("sentinel: insufficient liquidity")
	ErrSlippageExceeded      = errors.New("sentinel: slippage exceeded")

	// ErrInvalidOraclePrice is returned when a fairness check is asked to
	// divide by a zero oracle price.
	ErrInvalidOraclePrice = errors.New("sentinel: oracle price must be positive")

	// ErrDuplicateComputation is returned when a correlation id is already
	// in use for the circuit.
	ErrDuplicateComputation = errors.New("sentinel: duplicate computation")

	// ErrDuplicateCallback is returned for a callback on a terminal job.
	ErrDuplicateCallback = errors.New("sentinel: duplicate callback")

	// ErrUnauthorizedCallback is returned when a callback's capability token
	// does not match the job it claims to complete.
	ErrUnauthorizedCallback = errors.New("sentinel: unauthorized callback")

	// ErrMalformedOutput is returned when a callback's output does not have
	// the shape the circuit declares.
	ErrMalformedOutput = errors.New("sentinel: malformed circuit output")

	ErrJobNotFound      = errors.New("sentinel: job not found")
	ErrRecordNotFound   = errors.New("sentinel: record not found")
	ErrUnknownCircuit   = errors.New("sentinel: unknown circuit")
	ErrInvalidArguments = errors.New("sentinel: invalid arguments")
)

var kinds = []struct {
	err  error
	kind string
}{
	// Domain kinds come first so an aborted job that wraps one reports the
	// more specific kind.
	{ErrInvalidPositionState, "InvalidPositionState"},
	{ErrOrderExpired, "OrderExpired"},
	{ErrInsufficientLiquidity, "InsufficientLiquidity"},
	{ErrSlippageExceeded, "SlippageExceeded"},
	{ErrInvalidOraclePrice, "InvalidOraclePrice"},
	{ErrAbortedComputation, "AbortedComputation"},
	{ErrClusterNotSet, "ClusterNotSet"},
	{ErrDuplicateComputation, "DuplicateComputation"},
	{ErrDuplicateCallback, "DuplicateCallback"},
	{ErrUnauthorizedCallback, "UnauthorizedCallback"},
	{ErrMalformedOutput, "MalformedOutput"},
	{ErrJobNotFound, "JobNotFound"},
	{ErrRecordNotFound, "RecordNotFound"},
	{ErrUnknownCircuit, "UnknownCircuit"},
	{ErrInvalidArguments, "InvalidArguments"},
}

// ErrorKind maps err to the name of the first sentinel it wraps, or
// "Internal".
func ErrorKind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}

// PublicReason is the text of the sentinel err wraps, without the detail
// formatted around it. Abort reasons are persisted and published, so they
// must not carry values read from inside a computation.
func PublicReason(err error) string {
	if cause := ErrorForKind(ErrorKind(err)); cause != nil {
		return cause.Error()
	}
	return "sentinel: computation failed"
}

// ErrorForKind is the inverse of ErrorKind. It returns nil for unknown kinds.
func ErrorForKind(kind string) error {
	for _, k := range kinds {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}
