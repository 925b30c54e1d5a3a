// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package pipeline implements the serialized event bus a connection's
// policies hang off: inbound MQTT and timer events are delivered to the
// policy collection one at a time, outbound subscribe/publish requests are
// handed to the transport edge.
package pipeline

import "github.com/absmach/mqttrpc/packets"

// Kind identifies a pipeline event.
type Kind int

// Pipeline event kinds.
const (
	// State machine lifecycle pseudo-events.
	KindEntry Kind = iota + 1
	KindExit
	KindError

	// Connection lifecycle events, absorbed by policies.
	KindConnectionOpen
	KindConnAck
	KindConnectionClose
	KindDisconnect
	KindPubAck

	// MQTT events.
	KindSubAck
	KindPublishReceived
	KindTimeout

	// Command execution events exchanged with the application.
	KindExecuteRequest
	KindExecuteResponse

	// Transport-bound requests.
	KindSubscribeRequest
	KindPublishRequest
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindExit:
		return "exit"
	case KindError:
		return "error"
	case KindConnectionOpen:
		return "connection_open"
	case KindConnAck:
		return "connack"
	case KindConnectionClose:
		return "connection_close"
	case KindDisconnect:
		return "disconnect"
	case KindPubAck:
		return "puback"
	case KindSubAck:
		return "suback"
	case KindPublishReceived:
		return "publish_received"
	case KindTimeout:
		return "timeout"
	case KindExecuteRequest:
		return "execute_request"
	case KindExecuteResponse:
		return "execute_response"
	case KindSubscribeRequest:
		return "subscribe_request"
	case KindPublishRequest:
		return "publish_request"
	default:
		return "unknown"
	}
}

// Event is a single unit of work traversing the pipeline.
type Event struct {
	Kind Kind
	Data any
}

// SubAck is the payload of a KindSubAck event.
type SubAck struct {
	// ID is the packet identifier of the acknowledged subscribe.
	ID uint16
	// ReasonCodes carries the broker's per-topic grant results.
	ReasonCodes []byte
}

// PublishReceived is the payload of a KindPublishReceived event. The
// payload and properties are borrowed from the transport for the duration
// of delivery.
type PublishReceived struct {
	Topic      string
	Payload    []byte
	Properties *packets.PublishProperties
}

// SubscribeRequest is the payload of a KindSubscribeRequest event. The
// transport fills ID with the packet identifier it assigned on submission.
type SubscribeRequest struct {
	TopicFilter string
	QoS         byte
	ID          uint16
}

// PublishRequest is the payload of a KindPublishRequest event.
type PublishRequest struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Properties *packets.PublishProperties
}

// Timeout is the payload of a KindTimeout event.
type Timeout struct {
	Timer *Timer
}
