// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ssh implements the core of the SSH transport and connection
// protocols (RFC 4253, RFC 4254): identification-string exchange,
// algorithm negotiation, key exchange, the per-direction encrypt/MAC/
// compress packet pipeline, session key derivation and re-keying, and the
// service-dispatch handoff that lets a named service (user-auth,
// connection) take over a secured session.
//
// The channel multiplexer that rides on top of the "ssh-connection"
// service lives in the sibling package github.com/zmap/zssh/connect.
// Concrete authentication methods, TCP/IP and X11 forwarding, and the
// cryptographic primitives referenced by the negotiated algorithm names
// are treated as external collaborators: this package specifies which
// primitive each algorithm name selects, not how the primitive computes.
package ssh
