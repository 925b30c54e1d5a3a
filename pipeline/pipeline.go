// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrNoOutbound indicates a transport-bound event with no transport edge attached.
var ErrNoOutbound = errors.New("pipeline has no outbound edge")

// Policy is a plug-in installed on the pipeline. Handle is invoked for every
// event traversing the pipeline; delivery is serialized, so a policy never
// observes two events at once.
type Policy interface {
	Handle(ev Event) error
}

// Edge consumes events leaving the pipeline: the outbound edge submits
// subscribe/publish requests to the transport, the inbound edge surfaces
// pipeline errors to the application.
type Edge func(ev Event) error

// Metrics records pipeline event counts. Implementations must be safe for
// concurrent use.
type Metrics interface {
	InboundEvent(kind string)
	OutboundEvent(kind string)
}

// Pipeline is the serialized event bus shared by a connection's policies.
// At most one event is in flight at a time; policies mutate their state only
// from within Handle and need no further synchronization.
type Pipeline struct {
	mu       sync.Mutex
	policies []Policy
	outbound Edge
	inbound  Edge
	logger   *slog.Logger
	metrics  Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithMetrics attaches event count instrumentation.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New creates a pipeline with the given edges. Either edge may be nil:
// a nil outbound edge rejects transport-bound events, a nil inbound edge
// drops surfaced errors.
func New(outbound, inbound Edge, opts ...Option) *Pipeline {
	p := &Pipeline{
		outbound: outbound,
		inbound:  inbound,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add installs a policy at the end of the collection.
func (p *Pipeline) Add(policy Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policies = append(p.policies, policy)
}

// Post delivers an inbound event (from the transport or a timer) to the
// policy collection. Policy errors are logged and do not stop delivery to
// the remaining policies.
func (p *Pipeline) Post(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.InboundEvent(ev.Kind.String())
	}
	_ = p.deliver(ev)
}

// Send delivers an application-originated event down through the policy
// collection. Transport-bound events that reach the bottom of the chain are
// handed to the outbound edge; the transport may fill response fields in the
// event payload before Send returns. A policy rejection is returned to the
// caller so API-level operations fail loudly instead of dropping the event.
func (p *Pipeline) Send(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.deliver(ev); err != nil {
		return err
	}
	if transportBound(ev.Kind) {
		return p.emit(ev)
	}
	return nil
}

// Do runs fn serialized with event delivery. Policies use it for API-level
// operations that read or mutate policy state outside an event handler.
func (p *Pipeline) Do(fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn()
}

// Emit hands a transport-bound event to the outbound edge. It must only be
// called from within a policy handler, where the pipeline lock is already
// held.
func (p *Pipeline) Emit(ev Event) error {
	return p.emit(ev)
}

// Raise forwards an event to the inbound edge, surfacing it to the
// application side of the pipeline. It must only be called from within a
// policy handler.
func (p *Pipeline) Raise(ev Event) error {
	if p.inbound == nil {
		p.logger.Warn("dropping raised event, no inbound edge", "kind", ev.Kind.String())
		return nil
	}
	return p.inbound(ev)
}

// deliver hands the event to every policy and returns the first rejection.
// Delivery is not stopped by an error; the remaining policies still see the
// event.
func (p *Pipeline) deliver(ev Event) error {
	var firstErr error
	for _, policy := range p.policies {
		if err := policy.Handle(ev); err != nil {
			p.logger.Warn("policy rejected event", "kind", ev.Kind.String(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (p *Pipeline) emit(ev Event) error {
	if p.outbound == nil {
		return ErrNoOutbound
	}
	if p.metrics != nil {
		p.metrics.OutboundEvent(ev.Kind.String())
	}
	return p.outbound(ev)
}

func transportBound(k Kind) bool {
	return k == KindSubscribeRequest || k == KindPublishRequest
}
