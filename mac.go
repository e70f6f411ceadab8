// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
)

// macMode describes one negotiable MAC algorithm. etm marks the
// "encrypt-then-MAC" variants (spec.md §3): for those, packet.go computes
// the MAC over seq || packet_length || ciphertext instead of over
// seq || cleartext packet.
type macMode struct {
	size   int
	etm    bool
	create func(key []byte) hash.Hash
}

// supportedMACs is the default MAC preference order, spec.md §6, ETM
// variants preferred first.
var supportedMACs = []string{
	"hmac-sha2-512-etm@openssh.com", "hmac-sha2-256-etm@openssh.com", "hmac-sha1-etm@openssh.com",
	"hmac-sha2-512", "hmac-sha2-256", "hmac-sha1",
}

var macModes = map[string]*macMode{
	"hmac-sha2-512-etm@openssh.com": {64, true, func(key []byte) hash.Hash { return hmac.New(sha512.New, key) }},
	"hmac-sha2-256-etm@openssh.com": {32, true, func(key []byte) hash.Hash { return hmac.New(sha256.New, key) }},
	"hmac-sha1-etm@openssh.com":     {20, true, func(key []byte) hash.Hash { return hmac.New(sha1.New, key) }},

	"hmac-sha2-512": {64, false, func(key []byte) hash.Hash { return hmac.New(sha512.New, key) }},
	"hmac-sha2-256": {32, false, func(key []byte) hash.Hash { return hmac.New(sha256.New, key) }},
	"hmac-sha1":     {20, false, func(key []byte) hash.Hash { return hmac.New(sha1.New, key) }},

	"none": {0, false, nil},
}

// macFor computes the MAC of seq||data through the given keyed hash;
// packet.go passes the cleartext packet as data, or length||ciphertext
// for ETM modes.
func macFor(h hash.Hash, seq uint32, data []byte) []byte {
	if h == nil {
		return nil
	}
	h.Reset()
	var seqBuf [4]byte
	seqBuf[0] = byte(seq >> 24)
	seqBuf[1] = byte(seq >> 16)
	seqBuf[2] = byte(seq >> 8)
	seqBuf[3] = byte(seq)
	h.Write(seqBuf[:])
	h.Write(data)
	return h.Sum(nil)
}
