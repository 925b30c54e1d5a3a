// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets_test

import (
	"bytes"
	"reflect"
	"testing"

	. "github.com/absmach/mqttrpc/packets"
)

func roundTrip(t *testing.T, pkt ControlPacket) ControlPacket {
	t.Helper()
	var buf bytes.Buffer
	if err := pkt.Pack(&buf); err != nil {
		t.Fatalf("pack %s: %v", PacketNames[pkt.Type()], err)
	}
	got, err := ReadPacket(&buf)
	if err != nil {
		t.Fatalf("read %s: %v", PacketNames[pkt.Type()], err)
	}
	return got
}

func TestPublishRoundTrip(t *testing.T) {
	pkt := &Publish{
		FixedHeader: FixedHeader{PacketType: PublishType, QoS: 1},
		ID:          7,
		TopicName:   "vehicles/m1/commands/c1/unlock",
		Properties: &PublishProperties{
			ResponseTopic:   "clients/c9/responses",
			CorrelationData: []byte{0xDE, 0xAD, 0xBE, 0xEF},
			ContentType:     "application/json",
			User:            []User{{Key: "status", Value: "200"}},
		},
		Payload: []byte(`{"door":"front-left"}`),
	}

	got, ok := roundTrip(t, pkt).(*Publish)
	if !ok {
		t.Fatal("decoded packet is not a publish")
	}
	if got.TopicName != pkt.TopicName || got.ID != pkt.ID {
		t.Errorf("topic/id mismatch: got %q/%d", got.TopicName, got.ID)
	}
	if !bytes.Equal(got.Payload, pkt.Payload) {
		t.Errorf("payload mismatch: got %q", got.Payload)
	}
	if !reflect.DeepEqual(got.Properties, pkt.Properties) {
		t.Errorf("properties mismatch: got %+v", got.Properties)
	}
}

func TestPublishQoS0NoPacketID(t *testing.T) {
	pkt := &Publish{
		FixedHeader: FixedHeader{PacketType: PublishType},
		TopicName:   "vehicles/m1/commands/c1/get",
		Payload:     []byte("x"),
	}
	got := roundTrip(t, pkt).(*Publish)
	if got.ID != 0 {
		t.Errorf("expected no packet id on QoS 0, got %d", got.ID)
	}
	if got.Properties != nil {
		t.Errorf("expected nil properties, got %+v", got.Properties)
	}
}

func TestSubscribeRoundTrip(t *testing.T) {
	pkt := &Subscribe{
		FixedHeader: FixedHeader{PacketType: SubscribeType, QoS: 1},
		ID:          3,
		Opts: []SubOption{
			{Topic: "vehicles/m1/commands/c1/+", MaxQoS: 1, NoLocal: true},
		},
	}
	got := roundTrip(t, pkt).(*Subscribe)
	if got.ID != 3 || len(got.Opts) != 1 {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if got.Opts[0] != pkt.Opts[0] {
		t.Errorf("sub option mismatch: got %+v want %+v", got.Opts[0], pkt.Opts[0])
	}
}

func TestSubAckRoundTrip(t *testing.T) {
	pkt := &SubAck{
		FixedHeader: FixedHeader{PacketType: SubAckType},
		ID:          3,
		ReasonCodes: []byte{SubAckGrantedQoS1},
	}
	got := roundTrip(t, pkt).(*SubAck)
	if got.ID != 3 {
		t.Errorf("packet id mismatch: got %d", got.ID)
	}
	if !got.Granted(0) {
		t.Error("expected subscription 0 granted")
	}
	if got.Granted(1) {
		t.Error("expected out-of-range index to be not granted")
	}
}

func TestPubAckShortForm(t *testing.T) {
	// A two-byte PUBACK body means success with no properties.
	pkt := &PubAck{FixedHeader: FixedHeader{PacketType: PubAckType}, ID: 11}
	got := roundTrip(t, pkt).(*PubAck)
	if got.ID != 11 || got.ReasonCode != 0 {
		t.Errorf("unexpected decode: %+v", got)
	}
}

func TestConnectConnAckRoundTrip(t *testing.T) {
	connect := &Connect{
		FixedHeader:     FixedHeader{PacketType: ConnectType},
		ProtocolName:    "MQTT",
		ProtocolVersion: V5,
		CleanStart:      true,
		KeepAlive:       30,
		ClientID:        "rpc-endpoint",
		UsernameFlag:    true,
		Username:        "vehicle",
	}
	gotConnect := roundTrip(t, connect).(*Connect)
	if gotConnect.ClientID != "rpc-endpoint" || !gotConnect.CleanStart || gotConnect.Username != "vehicle" {
		t.Errorf("unexpected connect decode: %+v", gotConnect)
	}

	keepAlive := uint16(60)
	connack := &ConnAck{
		FixedHeader:    FixedHeader{PacketType: ConnAckType},
		SessionPresent: false,
		ReasonCode:     ConnAckSuccess,
		Properties:     &ConnAckProperties{ServerKeepAlive: &keepAlive},
	}
	gotConnAck := roundTrip(t, connack).(*ConnAck)
	if gotConnAck.ReasonCode != ConnAckSuccess {
		t.Errorf("reason code mismatch: got %d", gotConnAck.ReasonCode)
	}
	if gotConnAck.Properties == nil || gotConnAck.Properties.ServerKeepAlive == nil || *gotConnAck.Properties.ServerKeepAlive != 60 {
		t.Errorf("server keep alive not preserved: %+v", gotConnAck.Properties)
	}
}

func TestPropertyBag(t *testing.T) {
	bag := &PublishProperties{}
	if !bag.IsEmpty() {
		t.Fatal("fresh bag should be empty")
	}

	bag.ContentType = "text/plain"
	bag.CorrelationData = []byte{0x01}
	bag.AppendUser("status", "200")
	bag.AppendUser("statusMessage", "boom")

	if v, ok := bag.UserValue("status"); !ok || v != "200" {
		t.Errorf("UserValue(status) = %q, %v", v, ok)
	}
	if _, ok := bag.UserValue("missing"); ok {
		t.Error("unexpected hit for missing key")
	}

	bag.Empty()
	if !bag.IsEmpty() {
		t.Errorf("bag not empty after Empty(): %+v", bag)
	}
}
