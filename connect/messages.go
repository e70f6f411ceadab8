// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package connect implements the "ssh-connection" service (RFC 4254):
// the channel multiplexer running on top of a github.com/zmap/zssh
// Session, per spec.md §4.7-4.8.
package connect

// Message numbers, RFC 4254 §9.
const (
	msgGlobalRequest  = 80
	msgRequestSuccess = 81
	msgRequestFailure = 82

	msgChannelOpen             = 90
	msgChannelOpenConfirmation = 91
	msgChannelOpenFailure      = 92
	msgChannelWindowAdjust     = 93
	msgChannelData             = 94
	msgChannelExtendedData     = 95
	msgChannelEOF              = 96
	msgChannelClose            = 97
	msgChannelRequest          = 98
	msgChannelSuccess          = 99
	msgChannelFailure          = 100
)

// OpenFailureReason is RFC 4254 §5.1's CHANNEL_OPEN_FAILURE reason code.
type OpenFailureReason uint32

const (
	OpenAdministrativelyProhibited OpenFailureReason = 1
	OpenConnectFailed              OpenFailureReason = 2
	OpenUnknownChannelType         OpenFailureReason = 3
	OpenResourceShortage           OpenFailureReason = 4
)

// ChannelOpenContext is the closed set of RFC 4254 channel types this
// package recognizes by name, supplemented from original_source's
// connect::ChannelOpenContext (SPEC_FULL §4.9). Only ChannelSession is
// ever serviced end-to-end here; the others are parsed so a CHANNEL_OPEN
// for them can be rejected cleanly instead of treated as an opaque
// string an OpenHandler has to pattern-match itself.
type ChannelOpenContext int

const (
	ChannelSession ChannelOpenContext = iota
	ChannelX11
	ChannelForwardedTCPIP
	ChannelDirectTCPIP
	ChannelUnknown
)

const (
	chanTypeSession        = "session"
	chanTypeX11            = "x11"
	chanTypeForwardedTCPIP = "forwarded-tcpip"
	chanTypeDirectTCPIP    = "direct-tcpip"
)

func (c ChannelOpenContext) String() string {
	switch c {
	case ChannelSession:
		return chanTypeSession
	case ChannelX11:
		return chanTypeX11
	case ChannelForwardedTCPIP:
		return chanTypeForwardedTCPIP
	case ChannelDirectTCPIP:
		return chanTypeDirectTCPIP
	default:
		return "unknown"
	}
}

// parseChannelOpenContext classifies a CHANNEL_OPEN's raw chanType. An
// unrecognized name, or one of the explicitly out-of-scope forwarding
// types, both come back as a context an OpenHandler can reject on
// without ever seeing a bare string.
func parseChannelOpenContext(chanType string) ChannelOpenContext {
	switch chanType {
	case chanTypeSession:
		return ChannelSession
	case chanTypeX11:
		return ChannelX11
	case chanTypeForwardedTCPIP:
		return ChannelForwardedTCPIP
	case chanTypeDirectTCPIP:
		return ChannelDirectTCPIP
	default:
		return ChannelUnknown
	}
}

type globalRequestMsg struct {
	Name      string
	WantReply bool
	Data      []byte `ssh:"rest"`
}

type requestSuccessMsg struct {
	Data []byte `ssh:"rest"`
}

type requestFailureMsg struct{}

// channelOpenMsg is RFC 4254 §5.1.
type channelOpenMsg struct {
	ChanType         string
	PeersID          uint32
	PeersWindow      uint32
	MaxPacketSize    uint32
	TypeSpecificData []byte `ssh:"rest"`
}

type channelOpenConfirmMsg struct {
	PeersID       uint32
	MyID          uint32
	MyWindow      uint32
	MaxPacketSize uint32
	TypeSpecificData []byte `ssh:"rest"`
}

type channelOpenFailureMsg struct {
	PeersID  uint32
	Reason   uint32
	Message  string
	Language string
}

type windowAdjustMsg struct {
	PeersID         uint32
	AdditionalBytes uint32
}

type channelDataMsg struct {
	PeersID uint32
	Data    []byte
}

type channelExtendedDataMsg struct {
	PeersID  uint32
	DataType uint32
	Data     []byte
}

type channelEOFMsg struct {
	PeersID uint32
}

type channelCloseMsg struct {
	PeersID uint32
}

// channelRequestMsg is RFC 4254 §5.4: Request is a named context
// (e.g. "exec", "shell", "pty-req"); RequestSpecificData holds its
// type-specific payload, opaque at this layer.
type channelRequestMsg struct {
	PeersID               uint32
	Request               string
	WantReply             bool
	RequestSpecificData []byte `ssh:"rest"`
}

type channelRequestSuccessMsg struct {
	PeersID uint32
}

type channelRequestFailureMsg struct {
	PeersID uint32
}
