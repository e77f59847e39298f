package relay

import (
	"fmt"
	"time"
)

// Kind tags the outcome of one outbound attempt.
type Kind int

const (
	KindSuccess Kind = iota
	KindTransportError
	KindTimedOut
	// KindInvalidResponse is assigned by the relay, never by a Caller: the transport
	// succeeded but the body was not a JSON-RPC answer.
	KindInvalidResponse
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindTransportError:
		return "transport_error"
	case KindTimedOut:
		return "timeout"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is what a Caller reports for one POST. Body is only meaningful for KindSuccess.
type Outcome struct {
	Kind   Kind
	Status int
	Body   []byte
	Reason string
}

type Attempt struct {
	Endpoint string
	Method   string
	Kind     Kind
	Status   int
	Reason   string
	Duration time.Duration
}

func (a Attempt) Failed() bool { return a.Kind != KindSuccess }

// Detail is the diagnostic line reported in exhaustion responses.
func (a Attempt) Detail() string {
	return fmt.Sprintf("%s (%s): %s", a.Endpoint, a.Method, a.Reason)
}

type Status int

const (
	// StatusDelivered: a backend gave a structurally valid answer, possibly a JSON-RPC error.
	StatusDelivered Status = iota
	// StatusExhausted: every method variant failed against every candidate.
	StatusExhausted
	// StatusRejected: the inbound request was malformed; nothing was sent.
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusExhausted:
		return "exhausted"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the complete answer of one relay invocation. Body is always a well-formed
// JSON-RPC document carrying the caller's id.
type Result struct {
	Status   Status
	Body     []byte
	Endpoint string // delivering candidate, empty unless delivered
	Method   string // delivering method variant
	Methods  []string
	Attempts []Attempt
	Err      error
}
