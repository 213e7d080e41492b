package communication

import "context"

// Code classifies the outcome of a remote call independently of the transport
// carrying it.
type Code string

const (
	CodeOK          Code = "OK"
	CodeBadRequest  Code = "BAD_REQUEST"
	CodeNotFound    Code = "NOT_FOUND"
	CodeConflict    Code = "CONFLICT"
	CodeOutOfRange  Code = "OUT_OF_RANGE"
	CodeUnavailable Code = "UNAVAILABLE"
	CodeInternal    Code = "INTERNAL"
)

// Message is one request on the wire. Type selects the operation and the
// payload type; Payload is the decoded request struct on the receiving side
// and the request struct to encode on the sending side.
type Message struct {
	From    string `json:"from"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Response is the reply to a Message. Body holds the JSON-encoded response
// struct for the operation, or a plain-text error description for non-OK
// codes.
type Response struct {
	Code Code   `json:"code"`
	Body []byte `json:"body,omitempty"`
}

// Communicator provides request/reply delivery between nodes. A node starts a
// communicator with its message handler to serve requests, and uses Send to
// issue requests to other nodes. Send may be used without Start.
type Communicator interface {
	Start(handler MessageHandler) error
	Send(ctx context.Context, to string, msg Message) (*Response, error)
	Stop() error
	Address() string
}
