// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/absmach/mqttrpc/packets/codec"
)

// Subscribe is an internal representation of the fields of the SUBSCRIBE MQTT packet.
type Subscribe struct {
	FixedHeader
	// Variable Header
	ID         uint16
	Properties *SubscribeProperties
	Opts       []SubOption
}

// SubOption represents per-topic subscription options. For more information,
// check the spec:
// https://docs.oasis-open.org/mqtt/mqtt/v5.0/os/mqtt-v5.0-os.html#_Toc3901169
type SubOption struct {
	Topic             string
	RetainHandling    byte
	NoLocal           bool
	RetainAsPublished bool
	MaxQoS            byte
}

func (s *SubOption) Encode() []byte {
	var flag byte
	flag |= s.MaxQoS & 0x03
	if s.NoLocal {
		flag |= 1 << 2
	}
	if s.RetainAsPublished {
		flag |= 1 << 3
	}
	flag |= (s.RetainHandling & 0x03) << 4
	return append(codec.EncodeString(s.Topic), flag)
}

func (s *SubOption) Unpack(r io.Reader) error {
	topic, err := codec.DecodeString(r)
	if err != nil {
		return err
	}
	flags, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	s.Topic = topic
	s.MaxQoS = flags & 0x03
	s.NoLocal = (flags & (1 << 2)) != 0
	s.RetainAsPublished = (flags & (1 << 3)) != 0
	s.RetainHandling = (flags >> 4) & 0x03

	return nil
}

type SubscribeProperties struct {
	// SubscriptionIdentifier is an identifier of the subscription to which
	// the Publish matched.
	SubscriptionIdentifier *int
	// User is a slice of user provided properties (key and value).
	User []User
}

func (p *SubscribeProperties) Unpack(r io.Reader) error {
	for {
		prop, err := codec.DecodeByte(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch prop {
		case SubscriptionIdentifierProp:
			si, err := codec.DecodeVBI(r)
			if err != nil {
				return err
			}
			p.SubscriptionIdentifier = &si
		case UserProp:
			k, err := codec.DecodeString(r)
			if err != nil {
				return err
			}
			v, err := codec.DecodeString(r)
			if err != nil {
				return err
			}
			p.User = append(p.User, User{k, v})
		default:
			return fmt.Errorf("invalid property type %d for subscribe packet", prop)
		}
	}
}

func (p *SubscribeProperties) Encode() []byte {
	var ret []byte
	if p.SubscriptionIdentifier != nil {
		ret = append(ret, SubscriptionIdentifierProp)
		ret = append(ret, codec.EncodeVBI(*p.SubscriptionIdentifier)...)
	}
	for _, u := range p.User {
		ret = append(ret, UserProp)
		ret = append(ret, codec.EncodeString(u.Key)...)
		ret = append(ret, codec.EncodeString(u.Value)...)
	}
	return ret
}

func (pkt *Subscribe) String() string {
	return fmt.Sprintf("%s\npacket_id: %d\n", pkt.FixedHeader, pkt.ID)
}

// Type returns the packet type.
func (pkt *Subscribe) Type() byte {
	return SubscribeType
}

func (pkt *Subscribe) Encode() []byte {
	ret := codec.EncodeUint16(pkt.ID)
	if pkt.Properties != nil {
		props := pkt.Properties.Encode()
		ret = append(ret, codec.EncodeVBI(len(props))...)
		ret = append(ret, props...)
	} else {
		ret = append(ret, 0) // Zero-length properties
	}
	for i := range pkt.Opts {
		ret = append(ret, pkt.Opts[i].Encode()...)
	}
	pkt.FixedHeader.RemainingLength = len(ret)
	ret = append(pkt.FixedHeader.Encode(), ret...)

	return ret
}

func (pkt *Subscribe) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

func (pkt *Subscribe) Unpack(r io.Reader) error {
	var err error
	if pkt.ID, err = codec.DecodeUint16(r); err != nil {
		return err
	}
	propLen, err := codec.DecodeVBI(r)
	if err != nil {
		return err
	}
	if propLen > 0 {
		buf := make([]byte, propLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		p := SubscribeProperties{}
		if err := p.Unpack(bytes.NewReader(buf)); err != nil {
			return err
		}
		pkt.Properties = &p
	}
	for {
		var opt SubOption
		if err := opt.Unpack(r); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		pkt.Opts = append(pkt.Opts, opt)
	}

	return nil
}
