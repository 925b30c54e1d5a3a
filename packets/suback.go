// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/absmach/mqttrpc/packets/codec"
)

// The list of valid SubAck reason codes.
const (
	SubAckGrantedQoS0                         = 0x00
	SubAckGrantedQoS1                         = 0x01
	SubAckGrantedQoS2                         = 0x02
	SubAckUnspecifiedError                    = 0x80
	SubAckImplementationSpecificError         = 0x83
	SubAckNotAuthorized                       = 0x87
	SubAckTopicFilterInvalid                  = 0x8F
	SubAckPacketIdentifierInUse               = 0x91
	SubAckQuotaExceeded                       = 0x97
	SubAckSharedSubscriptionNotSupported      = 0x9E
	SubAckSubscriptionIdentifiersNotSupported = 0xA1
	SubAckWildcardSubscriptionsNotSupported   = 0xA2
)

// SubAck is an internal representation of the fields of the SUBACK MQTT packet.
type SubAck struct {
	FixedHeader
	// Variable Header
	ID         uint16
	Properties *BasicProperties
	// Payload
	ReasonCodes []byte
}

func (pkt *SubAck) String() string {
	return fmt.Sprintf("%s\npacket_id: %d\n", pkt.FixedHeader, pkt.ID)
}

// Type returns the packet type.
func (pkt *SubAck) Type() byte {
	return SubAckType
}

func (pkt *SubAck) Encode() []byte {
	ret := codec.EncodeUint16(pkt.ID)
	if pkt.Properties != nil {
		props := pkt.Properties.Encode()
		ret = append(ret, codec.EncodeVBI(len(props))...)
		ret = append(ret, props...)
	} else {
		ret = append(ret, 0) // Zero-length properties
	}
	ret = append(ret, pkt.ReasonCodes...)

	pkt.FixedHeader.RemainingLength = len(ret)
	ret = append(pkt.FixedHeader.Encode(), ret...)

	return ret
}

func (pkt *SubAck) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

func (pkt *SubAck) Unpack(r io.Reader) error {
	var err error
	if pkt.ID, err = codec.DecodeUint16(r); err != nil {
		return err
	}
	length, err := codec.DecodeVBI(r)
	if err != nil {
		return err
	}
	if length != 0 {
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		p := BasicProperties{}
		if err := p.Unpack(bytes.NewReader(buf)); err != nil {
			return err
		}
		pkt.Properties = &p
	}
	// Reason codes, one byte per requested topic, no length prefix.
	rcs, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	pkt.ReasonCodes = rcs
	return nil
}

// Granted reports whether the subscription at index was accepted by the broker.
func (pkt *SubAck) Granted(index int) bool {
	if index < 0 || index >= len(pkt.ReasonCodes) {
		return false
	}
	return pkt.ReasonCodes[index] <= SubAckGrantedQoS2
}
