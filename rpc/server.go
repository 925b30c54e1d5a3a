// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package rpc implements the MQTT5 RPC server policy: a plug-in that turns
// a connection into a request/response command endpoint. Callers publish
// command requests to the endpoint's subscription topic; the policy
// validates the request properties, up-calls the application and publishes
// the outcome to the caller-supplied response topic, echoing the
// correlation data.
package rpc

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/absmach/mqttrpc/packets"
	"github.com/absmach/mqttrpc/pipeline"
	"github.com/absmach/mqttrpc/topics"
)

// Server is the RPC server policy installed on a connection. A server owns
// one subscription filter; all its state is mutated from within pipeline
// event handlers or under the pipeline lock, so it needs no locking of its
// own.
type Server struct {
	conn   *Connection
	filter string
	bag    *packets.PublishProperties
	opts   Options
	logger *slog.Logger

	state state

	// pendingSubID is nonzero exactly while a subscribe is awaiting its ack,
	// which is also exactly while timer is armed.
	pendingSubID uint16
	timer        *pipeline.Timer
}

// New creates an RPC server policy for the command topic space
// vehicles/<modelID>/commands/<clientID>/<commandName>, with an empty
// commandName accepting every command. The property bag is reused across
// response publishes and must not be shared with another policy. A nil
// conn is permitted at construction but makes Register and ExecutionFinish
// fail; a nil opts selects DefaultOptions.
func New(conn *Connection, bag *packets.PublishProperties, modelID, clientID, commandName string, opts *Options) (*Server, error) {
	if bag == nil {
		return nil, fmt.Errorf("%w: nil property bag", ErrInvalidArgument)
	}
	filter, err := topics.CommandFilter(modelID, clientID, commandName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}

	s := &Server{
		conn:   conn,
		filter: filter,
		bag:    bag,
		opts:   o,
		logger: slog.Default(),
		state:  stateWaiting,
	}
	if conn != nil {
		s.logger = conn.logger.With("policy", "rpc_server", "filter", filter)
		conn.pipeline.Add(s)
	}
	return s, nil
}

// Filter returns the server's subscription filter.
func (s *Server) Filter() string {
	return s.filter
}

// Faulted reports whether the server has permanently shut down after an
// unrecoverable subscription failure. A faulted server drops all further
// events; the application must build a new one to recover.
func (s *Server) Faulted() bool {
	if s.conn == nil {
		return s.state == stateFaulted
	}
	var faulted bool
	_ = s.conn.pipeline.Do(func() error {
		faulted = s.state == stateFaulted
		return nil
	})
	return faulted
}

// Register arms the subscribe timer and submits the command subscription to
// the broker. It fails with ErrNotSupported when the server is not attached
// to a connection and with ErrSubscribePending while a previous registration
// is still awaiting its ack.
func (s *Server) Register() error {
	if s.conn == nil {
		// This API can be called only when attached to a connection.
		return ErrNotSupported
	}

	return s.conn.pipeline.Do(func() error {
		if s.state == stateFaulted {
			return ErrInvalidState
		}
		if s.pendingSubID != 0 {
			return ErrSubscribePending
		}

		s.timer = s.conn.pipeline.NewTimer(s.opts.SubscribeTimeout)

		sub := &pipeline.SubscribeRequest{TopicFilter: s.filter, QoS: s.opts.SubscribeQoS}
		if err := s.conn.pipeline.Emit(pipeline.Event{Kind: pipeline.KindSubscribeRequest, Data: sub}); err != nil {
			s.stopTimer()
			return err
		}
		s.pendingSubID = sub.ID
		s.logger.Debug("subscribe submitted", "id", sub.ID)
		return nil
	})
}

// ExecutionFinish posts a completed command execution back into the
// pipeline. The policy whose filter matches the response's request topic
// assembles and publishes the response; a rejection is returned to the
// caller, including ErrInvalidState once the server has faulted. Must not
// be called from within the application callback.
func (s *Server) ExecutionFinish(rsp *Response) error {
	if s.conn == nil {
		// This API can be called only when attached to a connection.
		return ErrNotSupported
	}
	if rsp == nil || len(rsp.CorrelationID) == 0 || rsp.ResponseTopic == "" {
		return fmt.Errorf("%w: response requires correlation id and response topic", ErrInvalidArgument)
	}

	return s.conn.pipeline.Send(pipeline.Event{Kind: pipeline.KindExecuteResponse, Data: rsp})
}

// waitingHandle is the main state: the server waits for incoming command
// requests and for executions to complete.
func (s *Server) waitingHandle(ev pipeline.Event) (bool, error) {
	switch ev.Kind {
	case pipeline.KindEntry, pipeline.KindExit:
		return true, nil

	case pipeline.KindSubAck:
		ack, ok := ev.Data.(pipeline.SubAck)
		if ok && ack.ID == s.pendingSubID {
			s.stopTimer()
			s.pendingSubID = 0
		}
		// Otherwise the ack belongs to another policy; keep waiting.
		return true, nil

	case pipeline.KindTimeout:
		if to, ok := ev.Data.(pipeline.Timeout); ok && to.Timer == s.timer {
			// Subscribing timed out; this is not recoverable.
			s.timer = nil
			s.pendingSubID = 0
			s.transitionPeer(stateWaiting, stateFaulted)
		}
		return true, nil

	case pipeline.KindPublishReceived:
		pub, ok := ev.Data.(pipeline.PublishReceived)
		if !ok || !topics.Match(s.filter, pub.Topic) {
			return true, nil
		}
		// Traffic on the topic proves the subscription is live even if the
		// ack never arrived.
		if s.pendingSubID != 0 {
			s.stopTimer()
			s.pendingSubID = 0
		}
		return true, s.handleRequest(pub)

	case pipeline.KindExecuteResponse:
		rsp, ok := ev.Data.(*Response)
		if !ok {
			return true, nil
		}
		if !topics.Match(s.filter, rsp.RequestTopic) {
			// Probably meant for a sibling policy sharing the pipeline.
			s.logger.Debug("request topic does not match subscription, ignoring",
				"request_topic", rsp.RequestTopic)
			return true, nil
		}
		data, err := s.buildResponse(rsp)
		if err != nil {
			return true, err
		}
		return true, s.sendResponse(data)

	case pipeline.KindPubAck, pipeline.KindConnectionOpen, pipeline.KindConnAck:
		return true, nil

	default:
		return false, nil
	}
}

// handleRequest parses an incoming request publish and hands it to the
// application for execution. All fields of the request are borrowed views;
// the application copies what it keeps.
func (s *Server) handleRequest(pub pipeline.PublishReceived) error {
	props := pub.Properties
	if props == nil || props.ResponseTopic == "" || len(props.CorrelationData) == 0 || props.ContentType == "" {
		return fmt.Errorf("%w: topic %s", ErrProtocolViolation, pub.Topic)
	}

	req := &Request{
		CorrelationID: props.CorrelationData,
		ResponseTopic: props.ResponseTopic,
		RequestTopic:  pub.Topic,
		RequestData:   pub.Payload,
		ContentType:   props.ContentType,
	}

	return s.conn.invoke(pipeline.Event{Kind: pipeline.KindExecuteRequest, Data: req})
}

// buildResponse assembles the response publish from an execution outcome.
// The property bag is empty on entry and carries the response metadata on
// return.
func (s *Server) buildResponse(rsp *Response) (pipeline.PublishRequest, error) {
	if len(rsp.CorrelationID) == 0 {
		return pipeline.PublishRequest{}, fmt.Errorf("%w: missing correlation id", ErrInvalidArgument)
	}

	var payload []byte
	if rsp.Succeeded() {
		// Success carries the response payload and its content type.
		s.bag.ContentType = rsp.ContentType
		payload = rsp.Response
	} else {
		// Failure carries the diagnostic message and an empty payload.
		s.bag.AppendUser("statusMessage", rsp.ErrorMessage)
	}
	s.bag.AppendUser("status", strconv.Itoa(rsp.Status))
	s.bag.CorrelationData = rsp.CorrelationID

	return pipeline.PublishRequest{
		Topic:      rsp.ResponseTopic,
		Payload:    payload,
		QoS:        s.opts.ResponseQoS,
		Properties: s.bag,
	}, nil
}

// sendResponse submits the response publish and empties the property bag so
// it can be reused for the next response.
func (s *Server) sendResponse(data pipeline.PublishRequest) error {
	err := s.conn.pipeline.Emit(pipeline.Event{Kind: pipeline.KindPublishRequest, Data: data})
	s.bag.Empty()
	return err
}

func (s *Server) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
