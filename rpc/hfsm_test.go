// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/mqttrpc/packets"
	"github.com/absmach/mqttrpc/pipeline"
)

func TestParentLookup(t *testing.T) {
	assert.Equal(t, stateNone, parent(stateRoot))
	assert.Equal(t, stateRoot, parent(stateWaiting))
	assert.Equal(t, stateRoot, parent(stateFaulted))

	assert.Panics(t, func() { parent(state(42)) })
}

func TestUnknownEventEscalatesPastRoot(t *testing.T) {
	conn := NewConnection(nil, nil)
	srv, err := New(conn, &packets.PublishProperties{}, "m1", "c1", "get", nil)
	require.NoError(t, err)

	// An event neither waiting nor root knows is escalated and ignored.
	assert.NoError(t, srv.Handle(pipeline.Event{Kind: pipeline.Kind(99)}))
	assert.Equal(t, stateWaiting, srv.state)
}

func TestRootExitPanics(t *testing.T) {
	conn := NewConnection(nil, nil)
	srv, err := New(conn, &packets.PublishProperties{}, "m1", "c1", "get", nil)
	require.NoError(t, err)

	// Exit is not handled by waiting's escalation path; delivering it to
	// root directly is an invariant violation.
	assert.Panics(t, func() { srv.rootHandle(pipeline.Event{Kind: pipeline.KindExit}) })
}

func TestFaultedRejectsEverything(t *testing.T) {
	conn := NewConnection(nil, nil)
	srv, err := New(conn, &packets.PublishProperties{}, "m1", "c1", "get", nil)
	require.NoError(t, err)

	srv.transitionPeer(stateWaiting, stateFaulted)
	require.Equal(t, stateFaulted, srv.state)

	for _, kind := range []pipeline.Kind{
		pipeline.KindSubAck,
		pipeline.KindPublishReceived,
		pipeline.KindExecuteResponse,
		pipeline.KindTimeout,
		pipeline.KindPubAck,
		pipeline.KindConnectionOpen,
	} {
		assert.ErrorIs(t, srv.Handle(pipeline.Event{Kind: kind}), ErrInvalidState)
	}
}

func TestErrorSurfacedToApplication(t *testing.T) {
	var surfaced []pipeline.Event
	conn := NewConnection(nil, func(ev pipeline.Event) error {
		surfaced = append(surfaced, ev)
		return nil
	})
	_, err := New(conn, &packets.PublishProperties{}, "m1", "c1", "get", nil)
	require.NoError(t, err)

	// Waiting does not handle errors; root forwards them to the inbound edge.
	conn.Pipeline().Post(pipeline.Event{Kind: pipeline.KindError, Data: "subscription lost"})

	require.Len(t, surfaced, 1)
	assert.Equal(t, pipeline.KindError, surfaced[0].Kind)
	assert.Equal(t, "subscription lost", surfaced[0].Data)
}

func TestWaitingEscalatesLifecycleToRoot(t *testing.T) {
	conn := NewConnection(nil, nil)
	srv, err := New(conn, &packets.PublishProperties{}, "m1", "c1", "get", nil)
	require.NoError(t, err)

	// Close and disconnect are not handled in waiting; root absorbs them.
	assert.NoError(t, srv.Handle(pipeline.Event{Kind: pipeline.KindConnectionClose}))
	assert.NoError(t, srv.Handle(pipeline.Event{Kind: pipeline.KindDisconnect}))
	assert.Equal(t, stateWaiting, srv.state)
}
