// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/ed25519"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newEd25519HostKey(t *testing.T) Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return NewEd25519Signer(priv)
}

// handshakePair spins up a client and server Session over a net.Pipe,
// each performing identification exchange and the initial key exchange
// concurrently (spec.md §4.5).
func handshakePair(t *testing.T, clientCfg *ClientConfig, serverCfg *ServerConfig) (client, server *Session) {
	t.Helper()
	c1, c2 := net.Pipe()

	var wg sync.WaitGroup
	wg.Add(2)

	var clientErr, serverErr error
	go func() {
		defer wg.Done()
		client, clientErr = NewClientSession(c1, clientCfg)
	}()
	go func() {
		defer wg.Done()
		server, serverErr = NewServerSession(c2, serverCfg)
	}()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	return client, server
}

func TestSessionHandshakeAndSessionID(t *testing.T) {
	hostKey := newEd25519HostKey(t)
	serverCfg := &ServerConfig{}
	serverCfg.AddHostKey(hostKey)
	clientCfg := &ClientConfig{
		HostKeyCallback: func(PublicKey) error { return nil },
	}

	client, server := handshakePair(t, clientCfg, serverCfg)

	require.NotEmpty(t, client.SessionID())
	require.Equal(t, client.SessionID(), server.SessionID())
	require.Equal(t, client.Algorithms().Kex, server.Algorithms().Kex)
}

func TestSessionSendRecvRoundTrip(t *testing.T) {
	hostKey := newEd25519HostKey(t)
	serverCfg := &ServerConfig{}
	serverCfg.AddHostKey(hostKey)
	clientCfg := &ClientConfig{
		HostKeyCallback: func(PublicKey) error { return nil },
	}

	client, server := handshakePair(t, clientCfg, serverCfg)

	var wg sync.WaitGroup
	wg.Add(1)
	var recvErr error
	var got []byte
	go func() {
		defer wg.Done()
		got, recvErr = server.Recv()
	}()

	require.NoError(t, client.SendRaw([]byte{200, 1, 2, 3, 4}))
	wg.Wait()
	require.NoError(t, recvErr)
	require.Equal(t, []byte{200, 1, 2, 3, 4}, got)
}

func TestSessionRekeyPreservesSessionID(t *testing.T) {
	hostKey := newEd25519HostKey(t)
	serverCfg := &ServerConfig{}
	serverCfg.AddHostKey(hostKey)
	serverCfg.RekeyPackets = 1
	clientCfg := &ClientConfig{
		HostKeyCallback: func(PublicKey) error { return nil },
	}
	clientCfg.RekeyPackets = 1

	client, server := handshakePair(t, clientCfg, serverCfg)
	originalID := append([]byte(nil), client.SessionID()...)

	var wg sync.WaitGroup
	wg.Add(1)
	var recvErr error
	go func() {
		defer wg.Done()
		if _, recvErr = server.Recv(); recvErr == nil {
			_, recvErr = server.Recv()
		}
	}()

	// Packet counters restart at zero with the keys the initial exchange
	// installs, so the first payload only brings both sides to
	// RekeyPackets. The second send then re-keys before it goes out, and
	// the peer's second Recv takes part in that KEXINIT exchange before
	// returning the payload.
	require.NoError(t, client.SendRaw([]byte{200, 9, 9}))
	require.NoError(t, client.SendRaw([]byte{200, 9, 9}))
	wg.Wait()
	require.NoError(t, recvErr)

	require.Equal(t, originalID, client.SessionID(), "session_id must survive a re-key")
	require.Equal(t, client.SessionID(), server.SessionID())
}

type testRequester struct{ accepted chan *Session }

func (r *testRequester) Name() string { return "test-service" }
func (r *testRequester) OnAccept(s *Session) (interface{}, error) {
	r.accepted <- s
	return "client-done", nil
}

type testHandler struct{ accepted chan *Session }

func (h *testHandler) Name() string { return "test-service" }
func (h *testHandler) OnRequest(s *Session) (interface{}, error) {
	h.accepted <- s
	return "server-done", nil
}

func TestSessionRequestServiceHandleRoundTrip(t *testing.T) {
	hostKey := newEd25519HostKey(t)
	serverCfg := &ServerConfig{}
	serverCfg.AddHostKey(hostKey)
	clientCfg := &ClientConfig{
		HostKeyCallback: func(PublicKey) error { return nil },
	}

	client, server := handshakePair(t, clientCfg, serverCfg)

	requester := &testRequester{accepted: make(chan *Session, 1)}
	handler := &testHandler{accepted: make(chan *Session, 1)}

	var wg sync.WaitGroup
	wg.Add(2)
	var clientResult, serverResult interface{}
	var clientErr, serverErr error
	go func() {
		defer wg.Done()
		clientResult, clientErr = client.RequestService(requester)
	}()
	go func() {
		defer wg.Done()
		serverResult, serverErr = server.Handle(handler)
	}()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	require.Equal(t, "client-done", clientResult)
	require.Equal(t, "server-done", serverResult)

	select {
	case s := <-requester.accepted:
		require.Same(t, client, s)
	case <-time.After(time.Second):
		t.Fatal("requester.OnAccept was never invoked")
	}
	select {
	case s := <-handler.accepted:
		require.Same(t, server, s)
	case <-time.After(time.Second):
		t.Fatal("handler.OnRequest was never invoked")
	}
}

func TestSessionDisconnectPropagates(t *testing.T) {
	hostKey := newEd25519HostKey(t)
	serverCfg := &ServerConfig{}
	serverCfg.AddHostKey(hostKey)
	clientCfg := &ClientConfig{
		HostKeyCallback: func(PublicKey) error { return nil },
	}

	client, server := handshakePair(t, clientCfg, serverCfg)

	var wg sync.WaitGroup
	wg.Add(1)
	var recvErr error
	go func() {
		defer wg.Done()
		_, recvErr = server.Recv()
	}()

	require.NoError(t, client.Disconnect(DisconnectByApplication, "bye"))
	wg.Wait()

	require.Error(t, recvErr)
	sshErr, ok := recvErr.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrDisconnected, sshErr.Kind)

	err := client.Send(&ignoreMsg{})
	require.Error(t, err)
}

// TestSessionHandshakeCipherMACKexMatrix exercises every negotiable
// cipher, MAC and key-exchange algorithm this package registers by
// constraining both sides to a single choice per axis and completing a
// full handshake plus one payload round trip over net.Pipe, supplemented
// from original_source's assh/tests/self.rs end-to-end loopback test
// (SPEC_FULL §4.9). "none" is excluded here since neither defaultCiphers
// nor supportedMACs offers it.
func TestSessionHandshakeCipherMACKexMatrix(t *testing.T) {
	hostKey := newEd25519HostKey(t)

	for _, cipher := range defaultCiphers {
		for _, mac := range supportedMACs {
			for _, kex := range defaultKexAlgos {
				cipher, mac, kex := cipher, mac, kex
				t.Run(cipher+"_"+mac+"_"+kex, func(t *testing.T) {
					serverCfg := &ServerConfig{}
					serverCfg.AddHostKey(hostKey)
					serverCfg.Ciphers = []string{cipher}
					serverCfg.MACs = []string{mac}
					serverCfg.KeyExchanges = []string{kex}

					clientCfg := &ClientConfig{
						HostKeyCallback: func(PublicKey) error { return nil },
					}
					clientCfg.Ciphers = []string{cipher}
					clientCfg.MACs = []string{mac}
					clientCfg.KeyExchanges = []string{kex}

					client, server := handshakePair(t, clientCfg, serverCfg)
					require.Equal(t, kex, client.Algorithms().Kex)
					require.Equal(t, cipher, client.Algorithms().W.Cipher)
					require.Equal(t, mac, client.Algorithms().W.MAC)

					var wg sync.WaitGroup
					wg.Add(1)
					var recvErr error
					var got []byte
					go func() {
						defer wg.Done()
						got, recvErr = server.Recv()
					}()
					payload := []byte{200, 1, 2, 3}
					require.NoError(t, client.SendRaw(payload))
					wg.Wait()
					require.NoError(t, recvErr)
					require.Equal(t, payload, got)
				})
			}
		}
	}
}
