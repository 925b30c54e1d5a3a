// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package mqtt binds an event pipeline to a real MQTT 5.0 broker session:
// transport-bound subscribe and publish requests leaving the pipeline are
// written to the broker connection, and broker traffic is posted back as
// inbound pipeline events. The session intentionally stays minimal: no
// reconnection, no session resume, no QoS 2.
package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/absmach/mqttrpc/packets"
	"github.com/absmach/mqttrpc/pipeline"
)

// Default values.
const (
	DefaultKeepAlive      = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
)

// Session errors.
var (
	ErrNotConnected     = errors.New("session not connected")
	ErrAlreadyConnected = errors.New("session already connected")
	ErrConnectRejected  = errors.New("connection rejected by broker")
	ErrUnexpectedPacket = errors.New("unexpected packet type")
	ErrUnsupportedQoS   = errors.New("QoS 2 is not supported")
)

// Config configures a broker session.
type Config struct {
	// Address is the broker TCP address (host:port). Ignored when
	// WebSocketURL is set.
	Address string

	// WebSocketURL dials the broker over WebSocket (ws:// or wss://)
	// instead of plain TCP.
	WebSocketURL string

	// ClientID is the MQTT client identifier. A random one is generated
	// when empty.
	ClientID string

	Username string
	Password []byte

	// TLSConfig enables TLS on the TCP dial path (nil for plain TCP).
	TLSConfig *tls.Config

	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	CleanStart    bool
	SessionExpiry uint32

	// InboundRate caps delivered publishes per second; excess requests are
	// dropped at the transport. Zero disables limiting.
	InboundRate  float64
	InboundBurst int

	Logger *slog.Logger
}

func (c *Config) fill() {
	if c.ClientID == "" {
		c.ClientID = "mqttrpc-" + uuid.NewString()
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.InboundBurst == 0 && c.InboundRate > 0 {
		c.InboundBurst = int(c.InboundRate)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is a single MQTT 5.0 broker connection serving one pipeline.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	pl     *pipeline.Pipeline
	nextID uint16

	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSession creates an unconnected session. Wire its Outbound edge into a
// pipeline, then call Connect.
func NewSession(cfg Config) *Session {
	cfg.fill()
	s := &Session{
		cfg:    cfg,
		logger: cfg.Logger.With("transport", "mqtt", "client_id", cfg.ClientID),
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "mqtt-publish",
		OnStateChange: func(_ string, from, to gobreaker.State) {
			s.logger.Warn("publish breaker state change", "from", from.String(), "to", to.String())
		},
	})
	if cfg.InboundRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.InboundRate), cfg.InboundBurst)
	}
	return s
}

// Connect dials the broker, performs the CONNECT/CONNACK handshake and
// starts the read and keep-alive loops. Inbound traffic is posted to pl.
func (s *Session) Connect(pl *pipeline.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrAlreadyConnected
	}

	conn, err := s.dial()
	if err != nil {
		return err
	}
	return s.attach(conn, pl)
}

// attach performs the handshake on an established connection and starts the
// session loops. Callers hold mu.
func (s *Session) attach(conn net.Conn, pl *pipeline.Pipeline) error {
	if err := s.handshake(conn); err != nil {
		conn.Close()
		return err
	}

	s.conn = conn
	s.pl = pl
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.readLoop(conn)
	go s.pingLoop()

	// Posted from another goroutine: the session lock is held here and the
	// pipeline may be mid-delivery.
	go pl.Post(pipeline.Event{Kind: pipeline.KindConnAck})
	s.logger.Info("connected to broker")
	return nil
}

func (s *Session) dial() (net.Conn, error) {
	if s.cfg.WebSocketURL != "" {
		return dialWebSocket(s.cfg.WebSocketURL, s.cfg.TLSConfig, s.cfg.ConnectTimeout)
	}
	d := &net.Dialer{Timeout: s.cfg.ConnectTimeout}
	if s.cfg.TLSConfig != nil {
		return tls.DialWithDialer(d, "tcp", s.cfg.Address, s.cfg.TLSConfig)
	}
	return d.Dial("tcp", s.cfg.Address)
}

func (s *Session) handshake(conn net.Conn) error {
	connect := &packets.Connect{
		FixedHeader:     packets.FixedHeader{PacketType: packets.ConnectType},
		ProtocolName:    "MQTT",
		ProtocolVersion: packets.V5,
		CleanStart:      s.cfg.CleanStart,
		KeepAlive:       uint16(s.cfg.KeepAlive / time.Second),
		ClientID:        s.cfg.ClientID,
	}
	if s.cfg.Username != "" {
		connect.UsernameFlag = true
		connect.Username = s.cfg.Username
	}
	if len(s.cfg.Password) > 0 {
		connect.PasswordFlag = true
		connect.Password = s.cfg.Password
	}
	if s.cfg.SessionExpiry > 0 {
		expiry := s.cfg.SessionExpiry
		connect.Properties = &packets.ConnectProperties{SessionExpiryInterval: &expiry}
	}

	deadline := time.Now().Add(s.cfg.ConnectTimeout)
	conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	if err := connect.Pack(conn); err != nil {
		return fmt.Errorf("send connect: %w", err)
	}

	pkt, err := packets.ReadPacket(conn)
	if err != nil {
		return fmt.Errorf("read connack: %w", err)
	}
	connack, ok := pkt.(*packets.ConnAck)
	if !ok {
		return fmt.Errorf("%w: got %s before connack", ErrUnexpectedPacket, packets.PacketNames[pkt.Type()])
	}
	if connack.ReasonCode != packets.ConnAckSuccess {
		return fmt.Errorf("%w: reason code 0x%x", ErrConnectRejected, connack.ReasonCode)
	}
	if connack.Properties != nil && connack.Properties.ServerKeepAlive != nil {
		s.cfg.KeepAlive = time.Duration(*connack.Properties.ServerKeepAlive) * time.Second
	}
	return nil
}

// Outbound is the pipeline's transport edge. It submits subscribe and
// publish requests to the broker, filling the packet identifier of
// subscribes so policies can match the ack.
func (s *Session) Outbound(ev pipeline.Event) error {
	switch ev.Kind {
	case pipeline.KindSubscribeRequest:
		sub, ok := ev.Data.(*pipeline.SubscribeRequest)
		if !ok {
			return fmt.Errorf("%w: subscribe request payload", ErrUnexpectedPacket)
		}
		return s.subscribe(sub)

	case pipeline.KindPublishRequest:
		pub, ok := ev.Data.(pipeline.PublishRequest)
		if !ok {
			return fmt.Errorf("%w: publish request payload", ErrUnexpectedPacket)
		}
		return s.publish(pub)

	default:
		s.logger.Debug("ignoring outbound event", "kind", ev.Kind.String())
		return nil
	}
}

func (s *Session) subscribe(sub *pipeline.SubscribeRequest) error {
	if sub.QoS > 1 {
		return ErrUnsupportedQoS
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}

	id := s.packetID()
	pkt := &packets.Subscribe{
		FixedHeader: packets.FixedHeader{PacketType: packets.SubscribeType, QoS: 1},
		ID:          id,
		Opts:        []packets.SubOption{{Topic: sub.TopicFilter, MaxQoS: sub.QoS}},
	}
	if err := s.write(pkt); err != nil {
		return err
	}
	sub.ID = id
	return nil
}

func (s *Session) publish(pub pipeline.PublishRequest) error {
	if pub.QoS > 1 {
		return ErrUnsupportedQoS
	}

	// Encode under the session lock: the shared property bag is emptied by
	// the policy right after submission.
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	pkt := &packets.Publish{
		FixedHeader: packets.FixedHeader{PacketType: packets.PublishType, QoS: pub.QoS},
		TopicName:   pub.Topic,
		Properties:  pub.Properties,
		Payload:     pub.Payload,
	}
	if pub.QoS > 0 {
		pkt.ID = s.packetID()
	}
	frame := pkt.Encode()
	s.mu.Unlock()

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.writeFrame(frame)
	})
	return err
}

// packetID returns the next packet identifier, skipping zero. Callers hold mu.
func (s *Session) packetID() uint16 {
	s.nextID++
	if s.nextID == 0 {
		s.nextID = 1
	}
	return s.nextID
}

// write encodes and writes a packet. Callers hold mu.
func (s *Session) write(pkt packets.ControlPacket) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	defer s.conn.SetWriteDeadline(time.Time{})
	return pkt.Pack(s.conn)
}

func (s *Session) writeFrame(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	defer s.conn.SetWriteDeadline(time.Time{})
	_, err := s.conn.Write(frame)
	return err
}

func (s *Session) readLoop(conn net.Conn) {
	defer close(s.doneCh)
	for {
		pkt, err := packets.ReadPacket(conn)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Error("read loop terminated", "error", err)
			s.post(pipeline.Event{Kind: pipeline.KindDisconnect})
			return
		}
		s.dispatch(pkt)
	}
}

func (s *Session) dispatch(pkt packets.ControlPacket) {
	switch p := pkt.(type) {
	case *packets.Publish:
		if s.limiter != nil && !s.limiter.Allow() {
			s.logger.Warn("inbound rate limit exceeded, dropping publish", "topic", p.TopicName)
			return
		}
		s.post(pipeline.Event{Kind: pipeline.KindPublishReceived, Data: pipeline.PublishReceived{
			Topic:      p.TopicName,
			Payload:    p.Payload,
			Properties: p.Properties,
		}})
		if p.QoS == 1 {
			s.ack(p.ID)
		}

	case *packets.SubAck:
		s.post(pipeline.Event{Kind: pipeline.KindSubAck, Data: pipeline.SubAck{
			ID:          p.ID,
			ReasonCodes: p.ReasonCodes,
		}})

	case *packets.PubAck:
		s.post(pipeline.Event{Kind: pipeline.KindPubAck})

	case *packets.PingResp:
		// Keep-alive acknowledged.

	case *packets.Disconnect:
		s.logger.Warn("broker disconnect", "reason_code", p.ReasonCode)
		s.post(pipeline.Event{Kind: pipeline.KindDisconnect})

	default:
		s.logger.Debug("ignoring packet", "type", packets.PacketNames[pkt.Type()])
	}
}

func (s *Session) ack(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	pkt := &packets.PubAck{FixedHeader: packets.FixedHeader{PacketType: packets.PubAckType}, ID: id}
	if err := s.write(pkt); err != nil {
		s.logger.Error("puback failed", "packet_id", id, "error", err)
	}
}

func (s *Session) post(ev pipeline.Event) {
	if s.pl != nil {
		s.pl.Post(ev)
	}
}

func (s *Session) pingLoop() {
	interval := s.cfg.KeepAlive
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.conn != nil {
				pkt := &packets.PingReq{FixedHeader: packets.FixedHeader{PacketType: packets.PingReqType}}
				if err := s.write(pkt); err != nil {
					s.logger.Error("pingreq failed", "error", err)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Close sends DISCONNECT and tears the session down.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return nil
	}
	s.conn = nil
	close(s.stopCh)

	pkt := &packets.Disconnect{FixedHeader: packets.FixedHeader{PacketType: packets.DisconnectType}}
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := pkt.Pack(conn); err != nil {
		s.logger.Debug("disconnect packet failed", "error", err)
	}
	s.mu.Unlock()

	err := conn.Close()
	<-s.doneCh
	return err
}
