package chat

import (
	"fmt"

	"github.com/pkg/errors"
)

// Transport and payload faults abort the enclosing exchange.
var (
	ErrParseResponse    = errors.New("failed to parse response")
	ErrMissingUsageData = errors.New("missing usage data")
	ErrUnknown          = errors.New("unknown transport error")
)

// Schema and assembly faults for the structured-output path.
var (
	ErrAssembleOutputDescription = errors.New("failed to assemble output description")
	ErrGetJSON                   = errors.New("failed to get json")
	ErrGetFunction               = errors.New("failed to get function call")
)

// Tool-pipeline faults. Function-not-found and execution failures never
// surface as errors at all; they are folded into the result strings. These
// cover the structural failures before dispatch.
var (
	ErrParseFunctionCall    = errors.New("failed to parse function call")
	ErrSerializeResult      = errors.New("failed to serialize function result")
	ErrDeserializeArguments = errors.New("failed to deserialize arguments")
	ErrMissingField         = errors.New("missing field")
)

// HTTPError is a non-2xx status from the completion endpoint. Transport
// failures that never produced a status map to ErrUnknown instead.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error with status code: %d", e.Status)
}
