// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

// Requester is the client side of a named service handoff (spec.md §4.6):
// after SERVICE_ACCEPT, Session.RequestService invokes OnAccept with
// exclusive use of the session for the service's duration.
type Requester interface {
	Name() string
	OnAccept(s *Session) (interface{}, error)
}

// Handler is the server side: after matching an incoming SERVICE_REQUEST
// against Name, Session.Handle invokes OnRequest.
//
// Handlers chain: an auth handler's OnRequest runs the authentication
// exchange itself and, only once it succeeds, invokes an inner Handler
// (e.g. "ssh-connection") with the same session.
type Handler interface {
	Name() string
	OnRequest(s *Session) (interface{}, error)
}
