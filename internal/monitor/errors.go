package monitor

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SubscribeError reports a failure to open the stream or to send the
// subscription request. The monitor terminates without retrying.
type SubscribeError struct {
	Err error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("subscribe: %v", e.Err)
}

func (e *SubscribeError) Unwrap() error { return e.Err }

// StreamError reports a non-EOF failure while receiving updates.
type StreamError struct {
	Code    codes.Code
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream: code = %s desc = %s", e.Code, e.Message)
}

// GRPCStatus lets status.FromError and status.Code recover Code.
func (e *StreamError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

// newStreamError classifies a receive error. Errors that carry no gRPC
// status are reported as codes.Unknown.
func newStreamError(err error) *StreamError {
	var se *StreamError
	if errors.As(err, &se) {
		return se
	}
	st, _ := status.FromError(err)
	return &StreamError{Code: st.Code(), Message: st.Message()}
}
