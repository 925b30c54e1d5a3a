// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"log/slog"

	"github.com/absmach/mqttrpc/pipeline"
)

// Callback receives events surfaced to the application: command execution
// requests (KindExecuteRequest with a *Request payload) and pipeline errors
// (KindError). It is invoked synchronously from the event pipeline, so it
// must not block and must not call back into ExecutionFinish directly; queue
// the work and complete it from another goroutine.
type Callback func(ev pipeline.Event) error

// Connection binds an event pipeline, its policy collection and the
// application callback. It outlives the policies installed on it.
type Connection struct {
	pipeline *pipeline.Pipeline
	callback Callback
	logger   *slog.Logger
	metrics  pipeline.Metrics
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithLogger sets the connection logger, shared by installed policies.
func WithLogger(l *slog.Logger) ConnectionOption {
	return func(c *Connection) {
		c.logger = l
	}
}

// WithMetrics attaches event count instrumentation to the connection's
// pipeline.
func WithMetrics(m pipeline.Metrics) ConnectionOption {
	return func(c *Connection) {
		c.metrics = m
	}
}

// NewConnection creates a connection whose pipeline submits transport-bound
// events to out and surfaces errors to the given callback.
func NewConnection(out pipeline.Edge, cb Callback, opts ...ConnectionOption) *Connection {
	c := &Connection{
		callback: cb,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	plOpts := []pipeline.Option{pipeline.WithLogger(c.logger)}
	if c.metrics != nil {
		plOpts = append(plOpts, pipeline.WithMetrics(c.metrics))
	}
	c.pipeline = pipeline.New(out, func(ev pipeline.Event) error {
		return c.invoke(ev)
	}, plOpts...)
	return c
}

// Pipeline returns the connection's event pipeline. The transport posts
// inbound events here.
func (c *Connection) Pipeline() *pipeline.Pipeline {
	return c.pipeline
}

// invoke up-calls the application.
func (c *Connection) invoke(ev pipeline.Event) error {
	if c.callback == nil {
		c.logger.Warn("no application callback, dropping event", "kind", ev.Kind.String())
		return nil
	}
	return c.callback(ev)
}
