// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/rand"
	"io"
)

// randReader is the entropy source used for nonces, cookies and ephemeral
// key material; it is narrowed to io.Reader so callers can plug in a
// deterministic source in tests.
type randReader = io.Reader

// readRandom fills buf from r, falling back to crypto/rand.Reader when r
// is nil (mirrors Config.Rand in common.go).
func readRandom(r randReader, buf []byte) {
	if r == nil {
		r = rand.Reader
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		panic("ssh: entropy source failed: " + err.Error())
	}
}
