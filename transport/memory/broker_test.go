// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/mqttrpc/packets"
	"github.com/absmach/mqttrpc/pipeline"
	"github.com/absmach/mqttrpc/rpc"
	"github.com/absmach/mqttrpc/transport/memory"
)

// TestEndToEnd wires a server policy to the loopback broker and runs one
// command round trip: register, receive, execute, respond.
func TestEndToEnd(t *testing.T) {
	broker := memory.NewBroker()

	requests := make(chan rpc.Request, 1)
	conn := rpc.NewConnection(broker.Outbound, func(ev pipeline.Event) error {
		if ev.Kind == pipeline.KindExecuteRequest {
			req := ev.Data.(*rpc.Request)
			cp := *req
			cp.CorrelationID = append([]byte(nil), req.CorrelationID...)
			cp.RequestData = append([]byte(nil), req.RequestData...)
			requests <- cp
		}
		return nil
	})
	broker.Bind(conn.Pipeline())

	srv, err := rpc.New(conn, &packets.PublishProperties{}, "m1", "c1", "", nil)
	require.NoError(t, err)
	require.NoError(t, srv.Register())

	assert.Equal(t, []string{"vehicles/m1/commands/c1/+"}, broker.Subscriptions())

	ok := broker.Request("vehicles/m1/commands/c1/echo", []byte("ping"), &packets.PublishProperties{
		ResponseTopic:   "clients/req1/responses",
		CorrelationData: []byte{0xAA},
		ContentType:     "text/plain",
	})
	require.True(t, ok)

	var req rpc.Request
	select {
	case req = <-requests:
	case <-time.After(time.Second):
		t.Fatal("request not delivered")
	}
	assert.Equal(t, []byte("ping"), req.RequestData)

	require.NoError(t, srv.ExecutionFinish(&rpc.Response{
		CorrelationID: req.CorrelationID,
		ResponseTopic: req.ResponseTopic,
		RequestTopic:  req.RequestTopic,
		Status:        200,
		ContentType:   req.ContentType,
		Response:      []byte("pong"),
	}))

	select {
	case rsp := <-broker.Responses():
		assert.Equal(t, "clients/req1/responses", rsp.Topic)
		assert.Equal(t, []byte("pong"), rsp.Payload)
		require.NotNil(t, rsp.Properties)
		assert.Equal(t, []byte{0xAA}, rsp.Properties.CorrelationData)
		status, _ := rsp.Properties.UserValue("status")
		assert.Equal(t, "200", status)
	case <-time.After(time.Second):
		t.Fatal("response not published")
	}
}

func TestRequestWithoutSubscription(t *testing.T) {
	broker := memory.NewBroker()
	conn := rpc.NewConnection(broker.Outbound, nil)
	broker.Bind(conn.Pipeline())

	assert.False(t, broker.Request("vehicles/m1/commands/c1/echo", nil, nil))
}
