// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/absmach/mqttrpc/packets/codec"
)

// PubAck is an internal representation of the fields of the PUBACK MQTT packet.
type PubAck struct {
	FixedHeader
	// Variable Header
	ID         uint16
	ReasonCode byte
	Properties *BasicProperties
}

func (pkt *PubAck) String() string {
	return fmt.Sprintf("%s\npacket_id: %d reason_code: %d", pkt.FixedHeader, pkt.ID, pkt.ReasonCode)
}

// Type returns the packet type.
func (pkt *PubAck) Type() byte {
	return PubAckType
}

func (pkt *PubAck) Encode() []byte {
	ret := codec.EncodeUint16(pkt.ID)
	// Reason code and properties may be omitted entirely on success.
	if pkt.ReasonCode != 0 || pkt.Properties != nil {
		ret = append(ret, pkt.ReasonCode)
		if pkt.Properties != nil {
			props := pkt.Properties.Encode()
			ret = append(ret, codec.EncodeVBI(len(props))...)
			ret = append(ret, props...)
		} else {
			ret = append(ret, 0)
		}
	}
	pkt.FixedHeader.RemainingLength = len(ret)
	ret = append(pkt.FixedHeader.Encode(), ret...)

	return ret
}

func (pkt *PubAck) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

func (pkt *PubAck) Unpack(r io.Reader) error {
	var err error
	if pkt.ID, err = codec.DecodeUint16(r); err != nil {
		return err
	}
	// A two-byte PUBACK means success with no properties.
	rc, err := codec.DecodeByte(r)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	pkt.ReasonCode = rc
	length, err := codec.DecodeVBI(r)
	if err == io.EOF {
		return nil
	}
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
	return nil
}
