// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package rpc

import "github.com/absmach/mqttrpc/pipeline"

// state identifies a node of the policy's hierarchical state machine:
// root is the superstate of the two peer substates waiting and faulted.
type state int

const (
	stateNone state = iota
	stateRoot
	stateWaiting
	stateFaulted
)

func (s state) String() string {
	switch s {
	case stateRoot:
		return "root"
	case stateWaiting:
		return "waiting"
	case stateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// parent returns the superstate of s. An unknown state is an invariant
// violation, not a runtime error.
func parent(s state) state {
	switch s {
	case stateRoot:
		return stateNone
	case stateWaiting, stateFaulted:
		return stateRoot
	default:
		panic("rpc: parent lookup on unknown state")
	}
}

// Handle implements pipeline.Policy. Events are dispatched to the current
// substate first; a state that does not handle an event escalates it to its
// superstate. Events escalated past root are ignored.
func (s *Server) Handle(ev pipeline.Event) error {
	s.logger.Debug("event", "state", s.state.String(), "kind", ev.Kind.String())

	for st := s.state; ; st = parent(st) {
		if st == stateNone {
			s.logger.Debug("event escalated past root, ignoring", "kind", ev.Kind.String())
			return nil
		}
		handled, err := s.dispatch(st, ev)
		if handled {
			return err
		}
	}
}

// dispatch routes an event to one state's handler. It reports whether the
// state handled the event; false means handle by superstate.
func (s *Server) dispatch(st state, ev pipeline.Event) (bool, error) {
	switch st {
	case stateRoot:
		return s.rootHandle(ev)
	case stateWaiting:
		return s.waitingHandle(ev)
	case stateFaulted:
		// The faulted state locks up the whole machine: every event is an
		// error and nothing escapes to the transport.
		return true, ErrInvalidState
	default:
		panic("rpc: dispatch to unknown state")
	}
}

// rootHandle absorbs connection lifecycle noise and surfaces pipeline
// errors to the application edge.
func (s *Server) rootHandle(ev pipeline.Event) (bool, error) {
	switch ev.Kind {
	case pipeline.KindEntry:
		return true, nil

	case pipeline.KindError:
		if err := s.conn.pipeline.Raise(ev); err != nil {
			panic("rpc: failed to surface pipeline error: " + err.Error())
		}
		return true, nil

	case pipeline.KindExit:
		// Root is never exited while the policy is alive.
		panic("rpc: exit of root state")

	case pipeline.KindPubAck,
		pipeline.KindConnectionOpen,
		pipeline.KindConnAck,
		pipeline.KindConnectionClose,
		pipeline.KindDisconnect:
		return true, nil

	default:
		return false, nil
	}
}

// transitionPeer moves between the two peer substates, running the exit
// handler of the old state and the entry handler of the new one in order.
func (s *Server) transitionPeer(from, to state) {
	if _, err := s.dispatch(from, pipeline.Event{Kind: pipeline.KindExit}); err != nil {
		s.logger.Debug("exit handler rejected event", "state", from.String(), "error", err)
	}
	s.state = to
	if _, err := s.dispatch(to, pipeline.Event{Kind: pipeline.KindEntry}); err != nil {
		s.logger.Debug("entry handler rejected event", "state", to.String(), "error", err)
	}
	s.logger.Info("state transition", "from", from.String(), "to", to.String())
}
