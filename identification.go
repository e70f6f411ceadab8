// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"io"
)

// packageVersion is this module's default identification string (spec.md
// §3: "SSH-2.0-<softwareversion>[ <comments>]\r\n").
const packageVersion = "SSH-2.0-zssh"

// maxIdentificationLine is spec.md §3's 255-byte cap, including CRLF.
const maxIdentificationLine = 255

// sendIdentification writes own's identification line, appending the
// mandatory CRLF if the caller didn't already include one.
func sendIdentification(w io.Writer, own []byte) error {
	line := own
	if !bytes.HasSuffix(line, []byte("\r\n")) {
		line = append(append([]byte(nil), line...), '\r', '\n')
	}
	if len(line) > maxIdentificationLine {
		return newError(ErrIdentificationInvalid, nil)
	}
	_, err := w.Write(line)
	return err
}

// readIdentification reads the peer's identification line one byte at a
// time (rather than through a buffering reader) so that once the line is
// consumed, rw is positioned exactly at the start of the first binary
// packet; the transport (packet.go) owns all subsequent buffering.
func readIdentification(r io.Reader) ([]byte, error) {
	var line []byte
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, newError(ErrIdentificationInvalid, err)
		}
		line = append(line, b[0])
		if len(line) > maxIdentificationLine {
			return nil, newError(ErrIdentificationInvalid, nil)
		}
		if b[0] == '\n' {
			break
		}
	}
	trimmed := bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(trimmed, []byte("SSH-2.0-")) && !bytes.HasPrefix(trimmed, []byte("SSH-1.99-")) {
		return nil, newError(ErrIdentificationInvalid, nil)
	}
	return trimmed, nil
}

// exchangeVersions exchanges identification strings per spec.md §3,
// writing own's line first so it is available to compute the exchange
// hash regardless of how quickly the peer responds.
func exchangeVersions(rw io.ReadWriter, own []byte) (peer []byte, err error) {
	if err := sendIdentification(rw, own); err != nil {
		return nil, err
	}
	return readIdentification(rw)
}
