// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry metric instruments for the RPC endpoint. It
// implements pipeline.Metrics.
type Metrics struct {
	meter metric.Meter

	eventsInbound  metric.Int64Counter
	eventsOutbound metric.Int64Counter
}

// NewMetrics creates a Metrics instance with all instruments initialized.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		meter: otel.Meter("mqttrpc"),
	}

	var err error

	m.eventsInbound, err = m.meter.Int64Counter(
		"rpc.pipeline.events.inbound.total",
		metric.WithDescription("Total events delivered to the policy collection"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create eventsInbound counter: %w", err)
	}

	m.eventsOutbound, err = m.meter.Int64Counter(
		"rpc.pipeline.events.outbound.total",
		metric.WithDescription("Total events submitted to the transport"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create eventsOutbound counter: %w", err)
	}

	return m, nil
}

// InboundEvent records an event delivered to the policy collection.
func (m *Metrics) InboundEvent(kind string) {
	m.eventsInbound.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// OutboundEvent records an event submitted to the transport.
func (m *Metrics) OutboundEvent(kind string) {
	m.eventsOutbound.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}
