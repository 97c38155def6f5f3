package protocol

import (
	"encoding/json"
	"fmt"
)

// Room events exchanged with clients. Names are the client contract.
const (
	// Client to server
	EventJoinRoom   = "join-room"
	EventLeaveRoom  = "leave-room"
	EventCodeUpdate = "code-update"

	// Server to client
	EventRoleAssigned = "role-assigned"
	EventReceiveCode  = "receive-code"
	EventStudentCount = "student-count"
	EventResetCode    = "reset-code"
	EventMentorLeft   = "mentor-left"
)

// Envelope is the JSON frame carried over the websocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CodeUpdate is the payload of a code-update frame: the full buffer
// contents, last write wins.
type CodeUpdate struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// Encode builds a wire frame for an event and its payload. A nil payload
// produces a frame with no data field (e.g. mentor-left).
func Encode(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode parses a wire frame and rejects frames without an event name.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("frame missing event name")
	}
	return env, nil
}
