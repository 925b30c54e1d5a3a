// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/absmach/mqttrpc/packets/codec"
)

// A subset of DISCONNECT reason codes the client distinguishes.
const (
	DisconnectNormal           = 0x00
	DisconnectWithWill         = 0x04
	DisconnectUnspecified      = 0x80
	DisconnectProtocolError    = 0x82
	DisconnectServerShutdown   = 0x8B
	DisconnectKeepAliveExpiry  = 0x8D
	DisconnectSessionTakenOver = 0x8E
)

// Disconnect is an internal representation of the fields of the DISCONNECT MQTT packet.
type Disconnect struct {
	FixedHeader
	ReasonCode byte
	Properties *BasicProperties
}

func (pkt *Disconnect) String() string {
	return fmt.Sprintf("%s\nreason_code: %d", pkt.FixedHeader, pkt.ReasonCode)
}

// Type returns the packet type.
func (pkt *Disconnect) Type() byte {
	return DisconnectType
}

func (pkt *Disconnect) Encode() []byte {
	var ret []byte
	// Reason code and properties may be omitted entirely on normal disconnect.
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

func (pkt *Disconnect) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

func (pkt *Disconnect) Unpack(r io.Reader) error {
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
