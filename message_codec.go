// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

// encodeMessage serializes a tagged SSH message: one tag byte followed by
// the struct's Marshal output.
func encodeMessage(tag byte, msg interface{}) []byte {
	out := make([]byte, 1, 64)
	out[0] = tag
	return append(out, Marshal(msg)...)
}

// decodeMessage parses a raw packet payload (tag byte + fields) into the
// concrete message struct registered for that tag. When kexInProgress is
// set, a tag in the 30-49 range (reused by every KEX algorithm) is not
// decoded: its raw body is returned as msg for the caller to interpret.
func decodeMessage(payload []byte, kexInProgress bool) (tag byte, msg interface{}, err error) {
	if len(payload) == 0 {
		return 0, nil, errShortRead
	}
	tag = payload[0]
	body := payload[1:]

	switch tag {
	case msgDisconnect:
		msg = new(disconnectMsg)
	case msgIgnore:
		msg = new(ignoreMsg)
	case msgUnimplemented:
		msg = new(unimplementedMsg)
	case msgDebug:
		msg = new(debugMsg)
	case msgServiceRequest:
		msg = new(serviceRequestMsg)
	case msgServiceAccept:
		msg = new(serviceAcceptMsg)
	case msgKexInit:
		msg = new(kexInitMsg)
	case msgNewKeys:
		msg = new(newKeysMsg)
	default:
		if kexInProgress && tag >= 30 && tag <= 49 {
			// Caller (the active kexAlgorithm) decodes these itself, since
			// the same tag numbers mean different things per algorithm.
			return tag, body, nil
		}
		return tag, nil, unexpectedMessageError(0, tag)
	}

	if err = Unmarshal(body, msg); err != nil {
		return tag, nil, err
	}
	return tag, msg, nil
}
