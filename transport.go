// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// transportPair is "one rx, one tx" (spec.md §3): two independent
// directionStates that runKex (handshake.go) swaps as NEWKEYS crosses
// each direction's boundary.
type transportPair struct {
	read  *directionState
	write *directionState
}

func newPlainTransportPair() *transportPair {
	return &transportPair{
		read:  newDirectionState(noneCipher{}, nil, nil, noneCompressor{}),
		write: newDirectionState(noneCipher{}, nil, nil, noneCompressor{}),
	}
}

// deadliner is implemented by net.Conn; transport uses it, when available,
// to enforce the configurable per-operation timeout (spec.md §4.2)
// without requiring the byte-duplex collaborator to be a net.Conn.
type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// transport wraps a byte duplex and a transportPair (spec.md §4.2). It
// guarantees at most one outstanding reader and one outstanding writer
// (via writeMu/readMu), so a send needed mid-KEX never races a pending
// recv for the same direction's state.
type transport struct {
	rw         io.ReadWriter
	pair       *transportPair
	maxPayload uint32
	rand       randReader
	timeout    time.Duration

	writeMu sync.Mutex
	readMu  sync.Mutex
}

func newTransport(rw io.ReadWriter, rand randReader, maxPayload uint32, timeout time.Duration) *transport {
	if maxPayload == 0 {
		maxPayload = defaultMaxPayload
	}
	return &transport{
		rw:         rw,
		pair:       newPlainTransportPair(),
		maxPayload: maxPayload,
		rand:       rand,
		timeout:    timeout,
	}
}

func (t *transport) withDeadline(fn func() error) error {
	if t.timeout <= 0 {
		return fn()
	}
	if d, ok := t.rw.(deadliner); ok {
		deadline := time.Now().Add(t.timeout)
		d.SetReadDeadline(deadline)
		d.SetWriteDeadline(deadline)
	}
	err := fn()
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return newError(ErrTimeout, err)
	}
	return err
}

// sendRaw writes one already-tagged payload (tag byte + marshaled body).
// It is exported to the package (and, transitively, to the connect
// subpackage via Session.SendRaw) so connection-layer message types,
// unknown to this package, can still ride the same framing and rekey
// machinery.
func (t *transport) sendRaw(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	return t.withDeadline(func() error {
		frame, err := t.pair.write.encode(payload, t.rand)
		if err != nil {
			return err
		}
		_, err = t.rw.Write(frame)
		return err
	})
}

// recvRaw reads and decodes one frame, returning its payload (tag byte +
// body, undecoded).
func (t *transport) recvRaw() ([]byte, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	var payload []byte
	err := t.withDeadline(func() error {
		var err error
		payload, err = t.pair.read.decode(t.rw, t.maxPayload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (t *transport) send(msg interface{}) error {
	tag, err := tagFor(msg)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"tag": tag}).Debug("ssh: send message")
	return t.sendRaw(encodeMessage(tag, msg))
}

// rekeyWrite and rekeyRead each install a fresh directionState for one
// direction of the transportPair. Per spec.md §4.4, each direction's
// new keys take effect exactly at the point NEWKEYS crosses that
// direction's boundary; since read and write each have their own mutex,
// the caller (handshake.go) swaps write's pair right after sending NEWKEYS
// and read's pair right after receiving it, not necessarily atomically
// with each other.
func (t *transport) rekeyWrite(d *directionState) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.pair.write = d
}

func (t *transport) rekeyRead(d *directionState) {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	t.pair.read = d
}

func (t *transport) bytesSinceRekey() (read, write uint64) {
	return t.pair.read.bytesSinceRekey, t.pair.write.bytesSinceRekey
}

func (t *transport) packetsSinceRekey() (read, write uint64) {
	return t.pair.read.packetsSinceRekey, t.pair.write.packetsSinceRekey
}

// tagFor maps a known root-package message struct to its wire tag byte.
func tagFor(msg interface{}) (byte, error) {
	switch msg.(type) {
	case *disconnectMsg:
		return msgDisconnect, nil
	case *ignoreMsg:
		return msgIgnore, nil
	case *unimplementedMsg:
		return msgUnimplemented, nil
	case *debugMsg:
		return msgDebug, nil
	case *serviceRequestMsg:
		return msgServiceRequest, nil
	case *serviceAcceptMsg:
		return msgServiceAccept, nil
	case *kexInitMsg:
		return msgKexInit, nil
	case *newKeysMsg:
		return msgNewKeys, nil
	case *kexDHInitMsg:
		return msgKexDHInit, nil
	case *kexDHReplyMsg:
		return msgKexDHReply, nil
	case *kexDHGexRequestMsg:
		return msgKexDHGexRequest, nil
	case *kexDHGexGroupMsg:
		return msgKexDHGexGroup, nil
	case *kexECDHInitMsg:
		return msgKexECDHInit, nil
	case *kexECDHReplyMsg:
		return msgKexECDHReply, nil
	default:
		return 0, newError(ErrProtocolViolation, nil)
	}
}
