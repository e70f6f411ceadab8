// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "fmt"

// ErrorKind enumerates the error taxonomy of spec.md §7. It generalizes
// common.go's constructor-function idiom (unexpectedMessageError,
// parseError in common.go) into a single comparable type so callers can
// switch on failure class without string matching.
type ErrorKind int

const (
	ErrIdentificationInvalid ErrorKind = iota + 1
	ErrKexInitInvalid
	ErrNoCommonKex
	ErrNoCommonCipher
	ErrNoCommonMAC
	ErrNoCommonCompression
	ErrNoCommonHostKey
	ErrHostKeySignature
	ErrBadMAC
	ErrDecompress
	ErrInvalidLength
	ErrTimeout
	ErrShortRead
	ErrUnexpectedMessage
	ErrServiceNotAvailable
	ErrDisconnected
	ErrChannelOpenRejected
	ErrChannelClosed
	ErrWindowOverflow
	ErrProtocolViolation
)

func (k ErrorKind) String() string {
	switch k {
	case ErrIdentificationInvalid:
		return "identification string invalid"
	case ErrKexInitInvalid:
		return "KEXINIT invalid"
	case ErrNoCommonKex:
		return "no common key exchange algorithm"
	case ErrNoCommonCipher:
		return "no common cipher"
	case ErrNoCommonMAC:
		return "no common MAC"
	case ErrNoCommonCompression:
		return "no common compression"
	case ErrNoCommonHostKey:
		return "no common host key algorithm"
	case ErrHostKeySignature:
		return "host key signature invalid"
	case ErrBadMAC:
		return "MAC mismatch"
	case ErrDecompress:
		return "decompression failed"
	case ErrInvalidLength:
		return "invalid packet length"
	case ErrTimeout:
		return "timeout"
	case ErrShortRead:
		return "short read"
	case ErrUnexpectedMessage:
		return "unexpected message"
	case ErrServiceNotAvailable:
		return "service not available"
	case ErrDisconnected:
		return "disconnected"
	case ErrChannelOpenRejected:
		return "channel open rejected"
	case ErrChannelClosed:
		return "channel closed"
	case ErrWindowOverflow:
		return "window overflow"
	case ErrProtocolViolation:
		return "protocol violation"
	default:
		return "unknown error"
	}
}

// Error is the single error type surfaced by this package and by
// github.com/zmap/zssh/connect. Kind classifies the failure per spec.md
// §7; Reason is populated for ErrDisconnected, and Description for
// ErrDisconnected and ErrChannelOpenRejected; Err, when non-nil, is the wrapped underlying
// cause and is reachable through errors.Unwrap/errors.Is/errors.As.
type Error struct {
	Kind        ErrorKind
	Reason      DisconnectReason
	Description string
	Err         error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == ErrDisconnected:
		if e.Description != "" {
			return fmt.Sprintf("ssh: disconnected: %s (%s)", e.Reason, e.Description)
		}
		return fmt.Sprintf("ssh: disconnected: %s", e.Reason)
	case e.Kind == ErrChannelOpenRejected:
		if e.Description != "" {
			return fmt.Sprintf("ssh: channel open rejected: %s", e.Description)
		}
		return "ssh: channel open rejected"
	case e.Err != nil:
		return fmt.Sprintf("ssh: %s: %v", e.Kind, e.Err)
	default:
		return "ssh: " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, ssh.Kind(ErrBadMAC)) style comparisons against
// a *Error carrying the same Kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// Kind wraps a bare ErrorKind as an *Error for use with errors.Is.
func Kind(k ErrorKind) error { return &Error{Kind: k} }

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func newDisconnectedError(reason DisconnectReason, description string) *Error {
	return &Error{Kind: ErrDisconnected, Reason: reason, Description: description}
}
