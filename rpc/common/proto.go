package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is the envelope of a single RPC call, used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	Procedure string `json:"procedure,omitempty"` // Name of the remote procedure (requests and responses)
	Input     []byte `json:"input,omitempty"`     // Used for: Query, Mutation requests
	Output    []byte `json:"output,omitempty"`    // Used for: Result responses

	// Response only fields
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Opaque, carried through by the server unchanged
}

// IsRequest returns true if the message is a query or mutation request
func (m *Message) IsRequest() bool {
	return m.MsgType == MsgTQuery || m.MsgType == MsgTMutation
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewQueryRequest creates a new Query request (a call without side effects)
func NewQueryRequest(procedure string, input []byte) *Message {
	return &Message{
		MsgType:   MsgTQuery,
		Procedure: procedure,
		Input:     input,
	}
}

// NewMutationRequest creates a new Mutation request (a call with side effects)
func NewMutationRequest(procedure string, input []byte) *Message {
	return &Message{
		MsgType:   MsgTMutation,
		Procedure: procedure,
		Input:     input,
	}
}

// NewResultResponse creates a new Result response
func NewResultResponse(procedure string, output []byte, meta []byte) *Message {
	return &Message{
		MsgType:   MsgTResult,
		Procedure: procedure,
		Output:    output,
		Meta:      meta,
	}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(procedure string, err string) *Message {
	return &Message{
		MsgType:   MsgTError,
		Procedure: procedure,
		Err:       err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTQuery:
		return "query"
	case MsgTMutation:
		return "mutation"
	case MsgTResult:
		return "result"
	case MsgTError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "query":
		*t = MsgTQuery
	case "mutation":
		*t = MsgTMutation
	case "result":
		*t = MsgTResult
	case "error":
		*t = MsgTError
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	MsgTUnknown MessageType = iota

	// Requests

	MsgTQuery    // Read-only procedure call
	MsgTMutation // Procedure call with side effects

	// Responses

	MsgTResult // Successful procedure result
	MsgTError  // Indicates an error occurred
)
