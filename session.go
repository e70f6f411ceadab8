// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// sessionState is spec.md §4.5's state machine:
// Banner -> KexInitial -> Serviceable -> KexRekey <-> Serviceable -> Disconnected.
type sessionState int

const (
	stateBanner sessionState = iota
	stateKexInitial
	stateServiceable
	stateKexRekey
	stateDisconnected
)

// Session orchestrates identification exchange, initial and periodic KEX,
// service requests, and top-level message routing (spec.md §4.5) on top
// of one transport. It exclusively owns the transport stream; a service
// handler or the connect subsystem is given exclusive use of the Session
// in turn (spec.md §3's lifecycle/ownership rules).
type Session struct {
	t     *transport
	cfg   *Config
	party *handshakeParty

	ownVersion, peerVersion       []byte
	clientVersion, serverVersion []byte

	mu        sync.Mutex
	state     sessionState
	algs      *Algorithms
	sessionID []byte
	lastKex   time.Time

	disconnectErr error
}

// NewClientSession performs identification exchange and the initial key
// exchange as the client role (spec.md §4.5's new(io, client)).
func NewClientSession(rw io.ReadWriter, cfg *ClientConfig) (*Session, error) {
	cfg.SetDefaults()
	party := &handshakeParty{
		hostKeyAlgorithms: cfg.HostKeyAlgorithms,
		hostKeyCallback:   cfg.HostKeyCallback,
	}
	return newSession(rw, &cfg.Config, party, false)
}

// NewServerSession performs identification exchange and the initial key
// exchange as the server role (spec.md §4.5's new(io, server)).
func NewServerSession(rw io.ReadWriter, cfg *ServerConfig) (*Session, error) {
	cfg.SetDefaults()
	if len(cfg.hostKeys) == 0 {
		return nil, newError(ErrNoCommonHostKey, fmt.Errorf("ssh: server has no host keys configured"))
	}
	party := &handshakeParty{hostKeys: cfg.hostKeys}
	return newSession(rw, &cfg.Config, party, true)
}

func newSession(rw io.ReadWriter, cfg *Config, party *handshakeParty, isServer bool) (*Session, error) {
	ownVersion := []byte(packageVersion)
	peerVersion, err := exchangeVersions(rw, ownVersion)
	if err != nil {
		return nil, err
	}

	s := &Session{
		t:           newTransport(rw, cfg.Rand, cfg.MaxPayload, cfg.Timeout),
		cfg:         cfg,
		party:       party,
		ownVersion:  ownVersion,
		peerVersion: peerVersion,
		state:       stateKexInitial,
	}
	if isServer {
		s.clientVersion, s.serverVersion = peerVersion, ownVersion
	} else {
		s.clientVersion, s.serverVersion = ownVersion, peerVersion
	}

	algs, _, sessionID, err := runKex(s.t, cfg, s.clientVersion, s.serverVersion, party, nil, nil)
	if err != nil {
		return nil, err
	}
	s.algs = algs
	s.sessionID = sessionID
	s.lastKex = time.Now()
	s.state = stateServiceable

	log.WithFields(log.Fields{"peer": string(peerVersion), "server": isServer}).Debug("ssh: session established")
	return s, nil
}

// PeerID returns the peer's recorded identification string (spec.md
// §4.5's peer_id()).
func (s *Session) PeerID() []byte { return s.peerVersion }

// SessionID returns the immutable session_id fixed at the first KEX
// (spec.md §4.4).
func (s *Session) SessionID() []byte { return s.sessionID }

// Algorithms returns the algorithm set negotiated by the most recent key
// exchange.
func (s *Session) Algorithms() *Algorithms {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.algs
}

// Send serializes and transmits msg, triggering a re-key first if this
// side's thresholds have been crossed (spec.md §4.4's "either side may
// initiate").
func (s *Session) Send(msg interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.prepareSendLocked(); err != nil {
		return err
	}
	err := s.t.send(msg)
	if err == nil && s.cfg.Metrics != nil {
		s.cfg.Metrics.PacketsSent.Inc()
	}
	return err
}

// SendRaw transmits an already-tagged payload, for connection-layer
// message types this package does not itself know about (spec.md §4.7's
// connect subsystem, which never touches the transport stream directly).
func (s *Session) SendRaw(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.prepareSendLocked(); err != nil {
		return err
	}
	err := s.t.sendRaw(payload)
	if err == nil && s.cfg.Metrics != nil {
		s.cfg.Metrics.PacketsSent.Inc()
		s.cfg.Metrics.BytesSent.Add(float64(len(payload)))
	}
	return err
}

// Metrics returns the optional collector attached via Config.Metrics, nil
// if none was configured; the connect subsystem uses this to record
// channel-level activity on the same collector as the transport.
func (s *Session) Metrics() *Metrics { return s.cfg.Metrics }

func (s *Session) prepareSendLocked() error {
	if s.state == stateDisconnected {
		return s.disconnectErr
	}
	return s.maybeInitiateRekeyLocked()
}

// Recv returns the next message's raw payload (tag byte + body),
// transparently consuming and re-entering key exchange, and silently
// discarding IGNORE/DEBUG/UNIMPLEMENTED, at this layer (spec.md §4.5).
// DISCONNECT transitions the session to Disconnected and is returned as
// an error from this call and every subsequent one.
func (s *Session) Recv() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvLocked()
}

func (s *Session) recvLocked() ([]byte, error) {
	for {
		if s.state == stateDisconnected {
			return nil, s.disconnectErr
		}
		if err := s.maybeInitiateRekeyLocked(); err != nil {
			return nil, err
		}

		payload, err := s.t.recvRaw()
		if err != nil {
			s.failLocked(err)
			return nil, err
		}
		if len(payload) == 0 {
			err := newError(ErrProtocolViolation, errShortRead)
			s.failLocked(err)
			return nil, err
		}

		if s.cfg.Metrics != nil {
			s.cfg.Metrics.PacketsReceived.Inc()
			s.cfg.Metrics.BytesReceived.Add(float64(len(payload)))
		}

		switch payload[0] {
		case msgKexInit:
			if err := s.rekeyLocked(payload); err != nil {
				s.failLocked(err)
				return nil, err
			}
			continue
		case msgDisconnect:
			d := new(disconnectMsg)
			if err := Unmarshal(payload[1:], d); err != nil {
				s.failLocked(err)
				return nil, err
			}
			derr := newDisconnectedError(DisconnectReason(d.Reason), d.Message)
			s.state = stateDisconnected
			s.disconnectErr = derr
			return nil, derr
		case msgDebug:
			if _, m, derr := decodeMessage(payload, false); derr == nil {
				d := m.(*debugMsg)
				log.WithFields(log.Fields{"message": d.Message}).Debug("ssh: peer debug")
			}
			continue
		case msgIgnore, msgUnimplemented:
			continue
		default:
			return payload, nil
		}
	}
}

func (s *Session) failLocked(err error) {
	s.state = stateDisconnected
	s.disconnectErr = err
}

// Disconnect sends a DISCONNECT message and transitions the session to
// Disconnected, for callers (service handlers, the connect subsystem)
// choosing to terminate on their own initiative.
func (s *Session) Disconnect(reason DisconnectReason, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateDisconnected {
		return s.disconnectErr
	}
	err := s.t.send(&disconnectMsg{Reason: uint32(reason), Message: description})
	s.state = stateDisconnected
	s.disconnectErr = newDisconnectedError(reason, description)
	return err
}

// RequestService sends SERVICE_REQUEST and awaits SERVICE_ACCEPT, then
// invokes requester.OnAccept with exclusive use of the session (spec.md
// §4.5's request_service(name), client role). A mismatched accept or a
// DISCONNECT both fail the request.
func (s *Session) RequestService(requester Requester) (interface{}, error) {
	s.mu.Lock()
	name := requester.Name()
	if err := s.prepareSendLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.t.send(&serviceRequestMsg{Service: name}); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	payload, err := s.recvLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if payload[0] != msgServiceAccept {
		s.mu.Unlock()
		return nil, newError(ErrServiceNotAvailable, unexpectedMessageError(msgServiceAccept, payload[0]))
	}
	accept := new(serviceAcceptMsg)
	if err := Unmarshal(payload[1:], accept); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if accept.Service != name {
		s.mu.Unlock()
		return nil, newError(ErrServiceNotAvailable, fmt.Errorf("ssh: service accept name %q does not match request %q", accept.Service, name))
	}
	s.mu.Unlock()
	// requester.OnAccept runs with exclusive, re-entrant use of Send/Recv;
	// mu must not be held across it.
	return requester.OnAccept(s)
}

// Handle awaits a SERVICE_REQUEST and, if it names handler, sends
// SERVICE_ACCEPT and invokes handler.OnRequest; otherwise it disconnects
// with ServiceNotAvailable (spec.md §4.5's handle(handler), server role).
func (s *Session) Handle(handler Handler) (interface{}, error) {
	s.mu.Lock()
	payload, err := s.recvLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if payload[0] != msgServiceRequest {
		s.mu.Unlock()
		return nil, newError(ErrUnexpectedMessage, unexpectedMessageError(msgServiceRequest, payload[0]))
	}
	req := new(serviceRequestMsg)
	if err := Unmarshal(payload[1:], req); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if req.Service != handler.Name() {
		s.t.send(&disconnectMsg{Reason: uint32(DisconnectServiceNotAvailable), Message: fmt.Sprintf("service %q not available", req.Service)})
		s.state = stateDisconnected
		s.disconnectErr = newDisconnectedError(DisconnectServiceNotAvailable, req.Service)
		s.mu.Unlock()
		return nil, newError(ErrServiceNotAvailable, nil)
	}
	err = s.t.send(&serviceAcceptMsg{Service: req.Service})
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	// handler.OnRequest runs with exclusive, re-entrant use of Send/Recv;
	// mu must not be held across it.
	return handler.OnRequest(s)
}

// maybeInitiateRekeyLocked starts a new key exchange if this side has
// crossed any of its configured re-key thresholds (spec.md §4.4).
func (s *Session) maybeInitiateRekeyLocked() error {
	if s.state != stateServiceable {
		return nil
	}
	if !s.rekeyDueLocked() {
		return nil
	}
	return s.rekeyLocked(nil)
}

func (s *Session) rekeyDueLocked() bool {
	readBytes, writeBytes := s.t.bytesSinceRekey()
	if s.cfg.RekeyThreshold > 0 && (readBytes >= s.cfg.RekeyThreshold || writeBytes >= s.cfg.RekeyThreshold) {
		return true
	}
	if s.cfg.RekeyPackets > 0 {
		readPkts, writePkts := s.t.packetsSinceRekey()
		if readPkts >= s.cfg.RekeyPackets || writePkts >= s.cfg.RekeyPackets {
			return true
		}
	}
	if s.cfg.RekeyInterval > 0 && time.Since(s.lastKex) >= s.cfg.RekeyInterval {
		return true
	}
	return false
}

// rekeyLocked runs one KEXINIT exchange end to end. peerInitPayload, when
// non-nil, is a KEXINIT already drained from the wire by recvLocked (the
// peer-initiated path); nil means this side is initiating and runKex
// reads the peer's KEXINIT itself. Either way runKex always sends this
// side's own KEXINIT first, so the exchange is symmetric regardless of
// who noticed the threshold first.
func (s *Session) rekeyLocked(peerInitPayload []byte) error {
	s.state = stateKexRekey
	log.Debug("ssh: entering key re-exchange")
	algs, _, sessionID, err := runKex(s.t, s.cfg, s.clientVersion, s.serverVersion, s.party, s.sessionID, peerInitPayload)
	if err != nil {
		return err
	}
	s.algs = algs
	s.sessionID = sessionID
	s.lastKex = time.Now()
	s.state = stateServiceable
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.Rekeys.Inc()
	}
	return nil
}
