// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/absmach/mqttrpc/packets/codec"
)

// Connect is an internal representation of the fields of the MQTT 5.0
// CONNECT packet.
type Connect struct {
	FixedHeader
	ProtocolName    string
	ProtocolVersion byte
	CleanStart      bool
	WillFlag        bool
	WillQoS         byte
	WillRetain      bool
	UsernameFlag    bool
	PasswordFlag    bool
	KeepAlive       uint16
	Properties      *ConnectProperties

	ClientID    string
	WillTopic   string
	WillMessage []byte
	Username    string
	Password    []byte
}

// ConnectProperties is the property set of the CONNECT variable header.
type ConnectProperties struct {
	// SessionExpiryInterval is the time in seconds after a client disconnects
	// that the server should retain the session information.
	SessionExpiryInterval *uint32
	// ReceiveMax is the maximum number of QoS 1 & 2 messages allowed to be
	// inflight.
	ReceiveMax *uint16
	// MaximumPacketSize is the maximum packet size in bytes the client accepts.
	MaximumPacketSize *uint32
	// TopicAliasMax is the highest value accepted as a Topic Alias.
	TopicAliasMax *uint16
	// RequestResponseInfo asks the server to provide Response Information.
	RequestResponseInfo *byte
	// RequestProblemInfo asks the server to include reason strings on failures.
	RequestProblemInfo *byte
	// User is a slice of user provided properties (key and value).
	User []User
}

func (p *ConnectProperties) Unpack(r io.Reader) error {
	for {
		prop, err := codec.DecodeByte(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch prop {
		case SessionExpiryIntervalProp:
			sei, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.SessionExpiryInterval = &sei
		case ReceiveMaximumProp:
			rm, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.ReceiveMax = &rm
		case MaximumPacketSizeProp:
			mps, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.MaximumPacketSize = &mps
		case TopicAliasMaximumProp:
			tam, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.TopicAliasMax = &tam
		case RequestResponseInfoProp:
			rri, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.RequestResponseInfo = &rri
		case RequestProblemInfoProp:
			rpi, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.RequestProblemInfo = &rpi
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
			return fmt.Errorf("invalid property type %d for connect packet", prop)
		}
	}
}

func (p *ConnectProperties) Encode() []byte {
	var ret []byte
	if p.SessionExpiryInterval != nil {
		ret = append(ret, SessionExpiryIntervalProp)
		ret = append(ret, codec.EncodeUint32(*p.SessionExpiryInterval)...)
	}
	if p.ReceiveMax != nil {
		ret = append(ret, ReceiveMaximumProp)
		ret = append(ret, codec.EncodeUint16(*p.ReceiveMax)...)
	}
	if p.MaximumPacketSize != nil {
		ret = append(ret, MaximumPacketSizeProp)
		ret = append(ret, codec.EncodeUint32(*p.MaximumPacketSize)...)
	}
	if p.TopicAliasMax != nil {
		ret = append(ret, TopicAliasMaximumProp)
		ret = append(ret, codec.EncodeUint16(*p.TopicAliasMax)...)
	}
	if p.RequestResponseInfo != nil {
		ret = append(ret, RequestResponseInfoProp, *p.RequestResponseInfo)
	}
	if p.RequestProblemInfo != nil {
		ret = append(ret, RequestProblemInfoProp, *p.RequestProblemInfo)
	}
	for _, u := range p.User {
		ret = append(ret, UserProp)
		ret = append(ret, codec.EncodeString(u.Key)...)
		ret = append(ret, codec.EncodeString(u.Value)...)
	}
	return ret
}

func (pkt *Connect) String() string {
	return fmt.Sprintf("%s\nprotocol_version: %d client_id: %s clean_start: %t keepalive: %d",
		pkt.FixedHeader, pkt.ProtocolVersion, pkt.ClientID, pkt.CleanStart, pkt.KeepAlive)
}

// Type returns the packet type.
func (pkt *Connect) Type() byte {
	return ConnectType
}

func (pkt *Connect) Encode() []byte {
	ret := codec.EncodeString(pkt.ProtocolName)
	ret = append(ret, pkt.ProtocolVersion)
	ret = append(ret, codec.EncodeBool(pkt.CleanStart)<<1|
		codec.EncodeBool(pkt.WillFlag)<<2|
		pkt.WillQoS<<3|
		codec.EncodeBool(pkt.WillRetain)<<5|
		codec.EncodeBool(pkt.PasswordFlag)<<6|
		codec.EncodeBool(pkt.UsernameFlag)<<7)
	ret = append(ret, codec.EncodeUint16(pkt.KeepAlive)...)
	if pkt.Properties != nil {
		props := pkt.Properties.Encode()
		ret = append(ret, codec.EncodeVBI(len(props))...)
		ret = append(ret, props...)
	} else {
		ret = append(ret, 0) // Zero-length properties
	}
	ret = append(ret, codec.EncodeString(pkt.ClientID)...)
	if pkt.WillFlag {
		// Will properties are not used by this client; encode zero length.
		ret = append(ret, 0)
		ret = append(ret, codec.EncodeString(pkt.WillTopic)...)
		ret = append(ret, codec.EncodeBytes(pkt.WillMessage)...)
	}
	if pkt.UsernameFlag {
		ret = append(ret, codec.EncodeString(pkt.Username)...)
	}
	if pkt.PasswordFlag {
		ret = append(ret, codec.EncodeBytes(pkt.Password)...)
	}
	pkt.FixedHeader.RemainingLength = len(ret)
	ret = append(pkt.FixedHeader.Encode(), ret...)

	return ret
}

func (pkt *Connect) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

func (pkt *Connect) Unpack(r io.Reader) error {
	var err error
	if pkt.ProtocolName, err = codec.DecodeString(r); err != nil {
		return err
	}
	if pkt.ProtocolVersion, err = codec.DecodeByte(r); err != nil {
		return err
	}
	flags, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.CleanStart = 1&(flags>>1) > 0
	pkt.WillFlag = 1&(flags>>2) > 0
	pkt.WillQoS = 3 & (flags >> 3)
	pkt.WillRetain = 1&(flags>>5) > 0
	pkt.PasswordFlag = 1&(flags>>6) > 0
	pkt.UsernameFlag = 1&(flags>>7) > 0
	if pkt.KeepAlive, err = codec.DecodeUint16(r); err != nil {
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
		p := ConnectProperties{}
		if err := p.Unpack(bytes.NewReader(buf)); err != nil {
			return err
		}
		pkt.Properties = &p
	}
	if pkt.ClientID, err = codec.DecodeString(r); err != nil {
		return err
	}
	if pkt.WillFlag {
		willPropLen, err := codec.DecodeVBI(r)
		if err != nil {
			return err
		}
		if willPropLen > 0 {
			if _, err := io.CopyN(io.Discard, r, int64(willPropLen)); err != nil {
				return err
			}
		}
		if pkt.WillTopic, err = codec.DecodeString(r); err != nil {
			return err
		}
		if pkt.WillMessage, err = codec.DecodeBytes(r); err != nil {
			return err
		}
	}
	if pkt.UsernameFlag {
		if pkt.Username, err = codec.DecodeString(r); err != nil {
			return err
		}
	}
	if pkt.PasswordFlag {
		if pkt.Password, err = codec.DecodeBytes(r); err != nil {
			return err
		}
	}

	return nil
}
