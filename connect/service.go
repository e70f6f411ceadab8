// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package connect

import (
	zssh "github.com/zmap/zssh"
)

// ServiceName is the RFC 4254 service name this package implements.
const ServiceName = "ssh-connection"

// Service is a zssh.Requester and zssh.Handler that yields a *Conn,
// grounded on original_source/assh-connect's Service, whose on_request
// and on_accept both just construct a Connect over the session (lib.rs).
type Service struct {
	// OpenHandler decides peer-initiated CHANNEL_OPEN requests on the
	// server side. Nil rejects every channel.
	OpenHandler OpenHandler
}

var _ zssh.Requester = (*Service)(nil)
var _ zssh.Handler = (*Service)(nil)

// Name implements zssh.Requester and zssh.Handler.
func (s *Service) Name() string { return ServiceName }

// OnAccept implements zssh.Requester: the client side, invoked after
// SERVICE_ACCEPT. It starts the multiplexer loop in the background and
// returns the *Conn for the caller to drive (OpenChannel, GlobalRequest).
func (s *Service) OnAccept(sess *zssh.Session) (interface{}, error) {
	return s.start(sess), nil
}

// OnRequest implements zssh.Handler: the server side, invoked after a
// matching SERVICE_REQUEST.
func (s *Service) OnRequest(sess *zssh.Session) (interface{}, error) {
	return s.start(sess), nil
}

func (s *Service) start(sess *zssh.Session) *Conn {
	c := NewConn(sess, s.OpenHandler)
	go func() {
		_ = c.Run()
	}()
	return c
}
