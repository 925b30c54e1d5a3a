// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package pipeline_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/mqttrpc/pipeline"
)

type recordingPolicy struct {
	mu     sync.Mutex
	events []pipeline.Kind
	err    error
}

func (p *recordingPolicy) Handle(ev pipeline.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev.Kind)
	return p.err
}

func (p *recordingPolicy) kinds() []pipeline.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pipeline.Kind(nil), p.events...)
}

func TestPostDeliversToAllPolicies(t *testing.T) {
	p := pipeline.New(nil, nil)
	first := &recordingPolicy{err: errors.New("rejected")}
	second := &recordingPolicy{}
	p.Add(first)
	p.Add(second)

	p.Post(pipeline.Event{Kind: pipeline.KindSubAck})

	// A policy error does not stop delivery to the rest of the collection.
	assert.Equal(t, []pipeline.Kind{pipeline.KindSubAck}, first.kinds())
	assert.Equal(t, []pipeline.Kind{pipeline.KindSubAck}, second.kinds())
}

func TestSendForwardsTransportBound(t *testing.T) {
	var got []pipeline.Event
	out := func(ev pipeline.Event) error {
		if sub, ok := ev.Data.(*pipeline.SubscribeRequest); ok {
			sub.ID = 7
		}
		got = append(got, ev)
		return nil
	}
	p := pipeline.New(out, nil)
	policy := &recordingPolicy{}
	p.Add(policy)

	sub := &pipeline.SubscribeRequest{TopicFilter: "a/b", QoS: 1}
	require.NoError(t, p.Send(pipeline.Event{Kind: pipeline.KindSubscribeRequest, Data: sub}))

	// The policy saw the event and the transport filled the packet id.
	assert.Equal(t, []pipeline.Kind{pipeline.KindSubscribeRequest}, policy.kinds())
	require.Len(t, got, 1)
	assert.Equal(t, uint16(7), sub.ID)

	// Application events stop at the bottom of the policy chain.
	require.NoError(t, p.Send(pipeline.Event{Kind: pipeline.KindExecuteResponse}))
	assert.Len(t, got, 1)
}

func TestSendReturnsPolicyRejection(t *testing.T) {
	p := pipeline.New(nil, nil)
	rejection := errors.New("invalid state")
	first := &recordingPolicy{err: rejection}
	second := &recordingPolicy{}
	p.Add(first)
	p.Add(second)

	err := p.Send(pipeline.Event{Kind: pipeline.KindExecuteResponse})
	assert.ErrorIs(t, err, rejection)

	// The rejection did not stop delivery to the remaining policies.
	assert.Equal(t, []pipeline.Kind{pipeline.KindExecuteResponse}, second.kinds())
}

func TestEmitWithoutOutboundEdge(t *testing.T) {
	p := pipeline.New(nil, nil)
	err := p.Emit(pipeline.Event{Kind: pipeline.KindPublishRequest})
	assert.ErrorIs(t, err, pipeline.ErrNoOutbound)
}

func TestTimerFires(t *testing.T) {
	p := pipeline.New(nil, nil)
	policy := &recordingPolicy{}
	p.Add(policy)

	timer := p.NewTimer(10 * time.Millisecond)
	require.Eventually(t, func() bool {
		kinds := policy.kinds()
		return len(kinds) == 1 && kinds[0] == pipeline.KindTimeout
	}, time.Second, 5*time.Millisecond)
	timer.Stop() // stopping a fired timer is a no-op
}

func TestTimerStop(t *testing.T) {
	p := pipeline.New(nil, nil)
	policy := &recordingPolicy{}
	p.Add(policy)

	timer := p.NewTimer(20 * time.Millisecond)
	timer.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, policy.kinds())
}
