// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package memory implements an in-process loopback broker: subscriptions
// are recorded, injected requests are delivered straight back into the
// pipeline and response publishes are captured for inspection. It serves
// examples and tests that do not want a network broker.
package memory

import (
	"sync"

	"github.com/absmach/mqttrpc/packets"
	"github.com/absmach/mqttrpc/pipeline"
	"github.com/absmach/mqttrpc/topics"
)

type subscription struct {
	filter string
	qos    byte
}

// Broker is a loopback broker serving one pipeline.
type Broker struct {
	mu        sync.Mutex
	pl        *pipeline.Pipeline
	nextID    uint16
	subs      []subscription
	published []pipeline.PublishRequest
	responses chan pipeline.PublishRequest
}

// NewBroker creates a loopback broker.
func NewBroker() *Broker {
	return &Broker{
		responses: make(chan pipeline.PublishRequest, 16),
	}
}

// Bind attaches the pipeline inbound traffic is delivered to.
func (b *Broker) Bind(pl *pipeline.Pipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pl = pl
}

// Outbound is the pipeline's transport edge. Subscribes are acknowledged
// asynchronously, publishes are captured.
func (b *Broker) Outbound(ev pipeline.Event) error {
	switch ev.Kind {
	case pipeline.KindSubscribeRequest:
		sub, ok := ev.Data.(*pipeline.SubscribeRequest)
		if !ok {
			return nil
		}
		b.mu.Lock()
		b.nextID++
		sub.ID = b.nextID
		id := b.nextID
		b.subs = append(b.subs, subscription{filter: sub.TopicFilter, qos: sub.QoS})
		pl := b.pl
		b.mu.Unlock()

		// The ack is posted from another goroutine: the pipeline is busy
		// delivering the subscribe request that triggered it.
		if pl != nil {
			go pl.Post(pipeline.Event{Kind: pipeline.KindSubAck, Data: pipeline.SubAck{
				ID:          id,
				ReasonCodes: []byte{packets.SubAckGrantedQoS1},
			}})
		}
		return nil

	case pipeline.KindPublishRequest:
		pub, ok := ev.Data.(pipeline.PublishRequest)
		if !ok {
			return nil
		}
		// Snapshot the property bag; the policy empties it after submission.
		if pub.Properties != nil {
			props := *pub.Properties
			props.User = append([]packets.User(nil), pub.Properties.User...)
			props.CorrelationData = append([]byte(nil), pub.Properties.CorrelationData...)
			pub.Properties = &props
		}
		b.mu.Lock()
		b.published = append(b.published, pub)
		b.mu.Unlock()
		select {
		case b.responses <- pub:
		default:
		}
		return nil

	default:
		return nil
	}
}

// Request injects a request publish into the pipeline, the way a broker
// delivers a publication matching the endpoint's subscription. It reports
// whether any recorded subscription matched.
func (b *Broker) Request(topic string, payload []byte, props *packets.PublishProperties) bool {
	b.mu.Lock()
	pl := b.pl
	matched := false
	for _, sub := range b.subs {
		if topics.Match(sub.filter, topic) {
			matched = true
			break
		}
	}
	b.mu.Unlock()

	if !matched || pl == nil {
		return false
	}
	pl.Post(pipeline.Event{Kind: pipeline.KindPublishReceived, Data: pipeline.PublishReceived{
		Topic:      topic,
		Payload:    payload,
		Properties: props,
	}})
	return true
}

// Published returns the captured response publishes.
func (b *Broker) Published() []pipeline.PublishRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]pipeline.PublishRequest(nil), b.published...)
}

// Responses returns a channel of captured response publishes.
func (b *Broker) Responses() <-chan pipeline.PublishRequest {
	return b.responses
}

// Subscriptions returns the recorded subscription filters.
func (b *Broker) Subscriptions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	filters := make([]string, 0, len(b.subs))
	for _, sub := range b.subs {
		filters = append(filters, sub.filter)
	}
	return filters
}
