// Package relay implements the steward relay protocol: a compact
// frame-based protocol over WebSocket that lets a remote controller
// trigger playbook runs. Frames are encoded with a codec.Codec (JSON
// by default, msgpack by negotiation); the hello frame is always JSON.
package relay

import (
	"time"

	"github.com/xraph/steward/id"
)

// FrameType identifies the frame category.
type FrameType string

const (
	// FrameHello is the client's first frame, carrying the bearer
	// token and the requested wire format.
	FrameHello FrameType = "hello"

	// FrameAuthOK acknowledges a successful hello.
	FrameAuthOK FrameType = "auth-ok"

	// FrameTrigger requests an immediate playbook run.
	FrameTrigger FrameType = "trigger"

	// FrameAck acknowledges a trigger and carries the run ID.
	FrameAck FrameType = "ack"

	// FrameError reports a failure; ID correlates it to the request.
	FrameError FrameType = "error"

	FramePing FrameType = "ping"
	FramePong FrameType = "pong"
)

// Frame is the relay message envelope.
type Frame struct {
	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// ID uniquely identifies the frame. Responses carry the ID of
	// the frame they answer.
	ID string `json:"id,omitempty" msgpack:"id,omitempty"`

	// Token carries the bearer token (hello frames only).
	Token string `json:"token,omitempty" msgpack:"token,omitempty"`

	// Format requests a wire format in hello frames ("json" or
	// "msgpack") and confirms the negotiated one in auth-ok.
	Format string `json:"format,omitempty" msgpack:"format,omitempty"`

	// Playbook names the playbook to run (trigger frames).
	Playbook string `json:"playbook,omitempty" msgpack:"playbook,omitempty"`

	// Params are passed to the triggered run.
	Params map[string]string `json:"params,omitempty" msgpack:"params,omitempty"`

	// RunID carries the started run's ID (ack frames).
	RunID string `json:"run_id,omitempty" msgpack:"run_id,omitempty"`

	// Error holds the failure message (error frames).
	Error string `json:"error,omitempty" msgpack:"error,omitempty"`

	// Timestamp records when the frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// NewAckFrame builds an ack for the given request frame ID.
func NewAckFrame(reqID, runID string) *Frame {
	return &Frame{
		Type:      FrameAck,
		ID:        reqID,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorFrame builds an error response for the given request frame ID.
func NewErrorFrame(reqID, msg string) *Frame {
	return &Frame{
		Type:      FrameError,
		ID:        reqID,
		Error:     msg,
		Timestamp: time.Now().UTC(),
	}
}

// NewTriggerFrame builds a trigger request.
func NewTriggerFrame(playbook string, params map[string]string) *Frame {
	return &Frame{
		Type:      FrameTrigger,
		ID:        id.NewRunID().String(),
		Playbook:  playbook,
		Params:    params,
		Timestamp: time.Now().UTC(),
	}
}
