// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/absmach/mqttrpc/packets/codec"
)

// A subset of CONNACK reason codes the client distinguishes.
const (
	ConnAckSuccess                = 0x00
	ConnAckUnspecifiedError       = 0x80
	ConnAckMalformedPacket        = 0x81
	ConnAckProtocolError          = 0x82
	ConnAckUnsupportedProtocol    = 0x84
	ConnAckClientIDNotValid       = 0x85
	ConnAckBadUsernameOrPassword  = 0x86
	ConnAckNotAuthorized          = 0x87
	ConnAckServerUnavailable      = 0x88
	ConnAckServerBusy             = 0x89
	ConnAckBanned                 = 0x8A
	ConnAckQuotaExceeded          = 0x97
	ConnAckConnectionRateExceeded = 0x9F
)

// ConnAck is an internal representation of the fields of the CONNACK MQTT packet.
type ConnAck struct {
	FixedHeader
	// Variable Header
	SessionPresent bool
	ReasonCode     byte
	Properties     *ConnAckProperties
}

// ConnAckProperties is the property set of the CONNACK variable header.
type ConnAckProperties struct {
	// SessionExpiryInterval is the session expiry the server settled on.
	SessionExpiryInterval *uint32
	// ReceiveMax is the maximum number of QoS 1 & 2 messages the server
	// allows inflight.
	ReceiveMax *uint16
	// MaxQoS is the highest QoS level permitted for a Publish.
	MaxQoS *byte
	// RetainAvailable indicates whether the server supports retained messages.
	RetainAvailable *byte
	// MaximumPacketSize is the maximum packet size in bytes the server accepts.
	MaximumPacketSize *uint32
	// AssignedClientID is the server-assigned client identifier when the
	// client connected with an empty one.
	AssignedClientID string
	// TopicAliasMax is the highest value permitted as a Topic Alias.
	TopicAliasMax *uint16
	// ReasonString is a human-readable diagnostic string.
	ReasonString string
	// User is a slice of user provided properties (key and value).
	User []User
	// WildcardSubAvailable indicates whether wildcard subscriptions are permitted.
	WildcardSubAvailable *byte
	// SubIDAvailable indicates whether subscription identifiers are supported.
	SubIDAvailable *byte
	// SharedSubAvailable indicates whether shared subscriptions are supported.
	SharedSubAvailable *byte
	// ServerKeepAlive overrides the keep alive requested by the client.
	ServerKeepAlive *uint16
	// ResponseInfo is the basis for constructing response topics.
	ResponseInfo string
	// ServerReference indicates another server the client can use.
	ServerReference string
}

func (p *ConnAckProperties) Unpack(r io.Reader) error {
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
		case MaximumQOSProp:
			mq, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.MaxQoS = &mq
		case RetainAvailableProp:
			ra, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.RetainAvailable = &ra
		case MaximumPacketSizeProp:
			mps, err := codec.DecodeUint32(r)
			if err != nil {
				return err
			}
			p.MaximumPacketSize = &mps
		case AssignedClientIDProp:
			p.AssignedClientID, err = codec.DecodeString(r)
			if err != nil {
				return err
			}
		case TopicAliasMaximumProp:
			tam, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.TopicAliasMax = &tam
		case ReasonStringProp:
			p.ReasonString, err = codec.DecodeString(r)
			if err != nil {
				return err
			}
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
		case WildcardSubAvailableProp:
			wsa, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.WildcardSubAvailable = &wsa
		case SubIDAvailableProp:
			sia, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.SubIDAvailable = &sia
		case SharedSubAvailableProp:
			ssa, err := codec.DecodeByte(r)
			if err != nil {
				return err
			}
			p.SharedSubAvailable = &ssa
		case ServerKeepAliveProp:
			ska, err := codec.DecodeUint16(r)
			if err != nil {
				return err
			}
			p.ServerKeepAlive = &ska
		case ResponseInfoProp:
			p.ResponseInfo, err = codec.DecodeString(r)
			if err != nil {
				return err
			}
		case ServerReferenceProp:
			p.ServerReference, err = codec.DecodeString(r)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid property type %d for connack packet", prop)
		}
	}
}

func (p *ConnAckProperties) Encode() []byte {
	var ret []byte
	if p.SessionExpiryInterval != nil {
		ret = append(ret, SessionExpiryIntervalProp)
		ret = append(ret, codec.EncodeUint32(*p.SessionExpiryInterval)...)
	}
	if p.ReceiveMax != nil {
		ret = append(ret, ReceiveMaximumProp)
		ret = append(ret, codec.EncodeUint16(*p.ReceiveMax)...)
	}
	if p.MaxQoS != nil {
		ret = append(ret, MaximumQOSProp, *p.MaxQoS)
	}
	if p.RetainAvailable != nil {
		ret = append(ret, RetainAvailableProp, *p.RetainAvailable)
	}
	if p.MaximumPacketSize != nil {
		ret = append(ret, MaximumPacketSizeProp)
		ret = append(ret, codec.EncodeUint32(*p.MaximumPacketSize)...)
	}
	if p.AssignedClientID != "" {
		ret = append(ret, AssignedClientIDProp)
		ret = append(ret, codec.EncodeString(p.AssignedClientID)...)
	}
	if p.TopicAliasMax != nil {
		ret = append(ret, TopicAliasMaximumProp)
		ret = append(ret, codec.EncodeUint16(*p.TopicAliasMax)...)
	}
	if p.ReasonString != "" {
		ret = append(ret, ReasonStringProp)
		ret = append(ret, codec.EncodeString(p.ReasonString)...)
	}
	for _, u := range p.User {
		ret = append(ret, UserProp)
		ret = append(ret, codec.EncodeString(u.Key)...)
		ret = append(ret, codec.EncodeString(u.Value)...)
	}
	if p.WildcardSubAvailable != nil {
		ret = append(ret, WildcardSubAvailableProp, *p.WildcardSubAvailable)
	}
	if p.SubIDAvailable != nil {
		ret = append(ret, SubIDAvailableProp, *p.SubIDAvailable)
	}
	if p.SharedSubAvailable != nil {
		ret = append(ret, SharedSubAvailableProp, *p.SharedSubAvailable)
	}
	if p.ServerKeepAlive != nil {
		ret = append(ret, ServerKeepAliveProp)
		ret = append(ret, codec.EncodeUint16(*p.ServerKeepAlive)...)
	}
	if p.ResponseInfo != "" {
		ret = append(ret, ResponseInfoProp)
		ret = append(ret, codec.EncodeString(p.ResponseInfo)...)
	}
	if p.ServerReference != "" {
		ret = append(ret, ServerReferenceProp)
		ret = append(ret, codec.EncodeString(p.ServerReference)...)
	}
	return ret
}

func (pkt *ConnAck) String() string {
	return fmt.Sprintf("%s\nsession_present: %t reason_code: %d", pkt.FixedHeader, pkt.SessionPresent, pkt.ReasonCode)
}

// Type returns the packet type.
func (pkt *ConnAck) Type() byte {
	return ConnAckType
}

func (pkt *ConnAck) Encode() []byte {
	ret := []byte{codec.EncodeBool(pkt.SessionPresent), pkt.ReasonCode}
	if pkt.Properties != nil {
		props := pkt.Properties.Encode()
		ret = append(ret, codec.EncodeVBI(len(props))...)
		ret = append(ret, props...)
	} else {
		ret = append(ret, 0) // Zero-length properties
	}
	pkt.FixedHeader.RemainingLength = len(ret)
	ret = append(pkt.FixedHeader.Encode(), ret...)

	return ret
}

func (pkt *ConnAck) Pack(w io.Writer) error {
	_, err := w.Write(pkt.Encode())
	return err
}

func (pkt *ConnAck) Unpack(r io.Reader) error {
	flags, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.SessionPresent = flags&0x01 > 0
	if pkt.ReasonCode, err = codec.DecodeByte(r); err != nil {
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
		p := ConnAckProperties{}
		if err := p.Unpack(bytes.NewReader(buf)); err != nil {
			return err
		}
		pkt.Properties = &p
	}
	return nil
}
