package ws

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame types. Every websocket text message carries exactly one frame.
const (
	FrameHandshake  = "handshake"
	FrameInvocation = "invocation"
	FrameCompletion = "completion"
)

// Hub methods a client can invoke, and the one the server invokes on clients.
const (
	MethodSendMessage       = "SendMessage"
	MethodJoinConversation  = "JoinConversation"
	MethodLeaveConversation = "LeaveConversation"
	MethodReceiveMessage    = "ReceiveMessage"
)

// Invocation is a client request. InvocationID is echoed back in the
// completion so the client can match replies.
type Invocation struct {
	Type         string            `json:"type"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target"`
	Arguments    []json.RawMessage `json:"arguments"`
}

type Completion struct {
	Type         string `json:"type"`
	InvocationID string `json:"invocationId,omitempty"`
	Result       any    `json:"result,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Push is a server-initiated invocation such as ReceiveMessage.
type Push struct {
	Type      string `json:"type"`
	Target    string `json:"target"`
	Arguments []any  `json:"arguments"`
}

type Handshake struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	UserID       int    `json:"userId"`
}

var errArgumentCount = errors.New("wrong number of arguments")

// decodeArguments unmarshals positional arguments into dst, one per slot.
func decodeArguments(args []json.RawMessage, dst ...any) error {
	if len(args) != len(dst) {
		return fmt.Errorf("%w: got %d, want %d", errArgumentCount, len(args), len(dst))
	}
	for i, raw := range args {
		if err := json.Unmarshal(raw, dst[i]); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}
