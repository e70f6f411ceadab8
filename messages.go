// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "math/big"

// Message numbers, RFC 4253 §12 and RFC 4254 §9. Key-exchange-method
// messages (30-49) are reused across KEX variants; their meaning is
// determined by whichever kexAlgorithm is currently driving the exchange.
const (
	msgDisconnect     = 1
	msgIgnore         = 2
	msgUnimplemented  = 3
	msgDebug          = 4
	msgServiceRequest = 5
	msgServiceAccept  = 6

	msgKexInit = 20
	msgNewKeys = 21

	msgKexDHInit  = 30
	msgKexDHReply = 31

	msgKexDHGexGroup   = 31
	msgKexDHGexInit    = 32
	msgKexDHGexReply   = 33
	msgKexDHGexRequest = 34

	msgKexECDHInit  = 30
	msgKexECDHReply = 31
)

// DisconnectReason is the closed enum of RFC 4253 §11.1 disconnect reason
// codes, supplemented from original_source's trans::DisconnectReason per
// SPEC_FULL.md §4.9 (spec.md names only the wire shape, not a typed enum).
type DisconnectReason uint32

const (
	DisconnectHostNotAllowedToConnect     DisconnectReason = 1
	DisconnectProtocolError               DisconnectReason = 2
	DisconnectKeyExchangeFailed           DisconnectReason = 3
	DisconnectReserved                    DisconnectReason = 4
	DisconnectMacError                    DisconnectReason = 5
	DisconnectCompressionError            DisconnectReason = 6
	DisconnectServiceNotAvailable         DisconnectReason = 7
	DisconnectProtocolVersionNotSupported DisconnectReason = 8
	DisconnectHostKeyNotVerifiable        DisconnectReason = 9
	DisconnectConnectionLost              DisconnectReason = 10
	DisconnectByApplication               DisconnectReason = 11
	DisconnectTooManyConnections          DisconnectReason = 12
	DisconnectAuthCancelledByUser         DisconnectReason = 13
	DisconnectNoMoreAuthMethodsAvailable  DisconnectReason = 14
	DisconnectIllegalUserName             DisconnectReason = 15
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectHostNotAllowedToConnect:
		return "host not allowed to connect"
	case DisconnectProtocolError:
		return "protocol error"
	case DisconnectKeyExchangeFailed:
		return "key exchange failed"
	case DisconnectMacError:
		return "mac error"
	case DisconnectCompressionError:
		return "compression error"
	case DisconnectServiceNotAvailable:
		return "service not available"
	case DisconnectProtocolVersionNotSupported:
		return "protocol version not supported"
	case DisconnectHostKeyNotVerifiable:
		return "host key not verifiable"
	case DisconnectConnectionLost:
		return "connection lost"
	case DisconnectByApplication:
		return "disconnected by application"
	case DisconnectTooManyConnections:
		return "too many connections"
	case DisconnectAuthCancelledByUser:
		return "auth cancelled by user"
	case DisconnectNoMoreAuthMethodsAvailable:
		return "no more auth methods available"
	case DisconnectIllegalUserName:
		return "illegal user name"
	default:
		return "reserved"
	}
}

// disconnectMsg is RFC 4253 §11.1.
type disconnectMsg struct {
	Reason   uint32
	Message  string
	Language string
}

type ignoreMsg struct {
	Data string
}

type unimplementedMsg struct {
	SeqNum uint32
}

type debugMsg struct {
	AlwaysDisplay bool
	Message       string
	Language      string
}

// serviceRequestMsg and serviceAcceptMsg, RFC 4253 §10.
type serviceRequestMsg struct {
	Service string
}

type serviceAcceptMsg struct {
	Service string
}

// kexInitMsg is RFC 4253 §7.1. Field order is wire order.
type kexInitMsg struct {
	Cookie                  [16]byte
	KexAlgos                []string
	ServerHostKeyAlgos      []string
	CiphersClientServer     []string
	CiphersServerClient     []string
	MACsClientServer        []string
	MACsServerClient        []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
	FirstKexFollows         bool
	Reserved                uint32
}

type newKeysMsg struct{}

// kexDHInitMsg/kexDHReplyMsg cover the fixed finite-field DH variants
// (group14-sha1/sha256, and the server-proposed group used by
// group-exchange once that group itself has been agreed).
type kexDHInitMsg struct {
	X *big.Int
}

type kexDHReplyMsg struct {
	HostKey   []byte
	Y         *big.Int
	Signature []byte
}

// kexDHGexRequestMsg/kexDHGexGroupMsg: RFC 4419
// diffie-hellman-group-exchange. Its GEX_INIT and GEX_REPLY bodies reuse
// kexDHInitMsg/kexDHReplyMsg under the GEX tag numbers.
type kexDHGexRequestMsg struct {
	MinBits uint32
	NumBits uint32
	MaxBits uint32
}

type kexDHGexGroupMsg struct {
	P *big.Int
	G *big.Int
}

// kexECDHInitMsg/kexECDHReplyMsg: RFC 5656, and also used for
// curve25519-sha256 (RFC 8731) whose public values are raw 32-byte X25519
// points rather than SEC1-encoded EC points.
type kexECDHInitMsg struct {
	ClientPublic []byte
}

type kexECDHReplyMsg struct {
	HostKey         []byte
	EphemeralPublic []byte
	Signature       []byte
}

// newCookie fills a fresh 16-byte KEXINIT cookie from the configured
// entropy source.
func newCookie(rand randReader) [16]byte {
	var cookie [16]byte
	readRandom(rand, cookie[:])
	return cookie
}
