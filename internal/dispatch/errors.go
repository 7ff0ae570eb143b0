package dispatch

import "fmt"

type Op string

const (
	OpBroadcast Op = "broadcast"
	OpReply     Op = "reply"
)

// DeliveryError reports a failed send or reply. It is never retried.
type DeliveryError struct {
	Op     Op
	Target string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s to %s failed: %v", e.Op, e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
