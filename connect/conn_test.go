// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package connect

import (
	"crypto/ed25519"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	zssh "github.com/zmap/zssh"
)

// connPair performs a full SSH handshake over net.Pipe and starts the
// "ssh-connection" service on each side, returning both multiplexers.
func connPair(t *testing.T, openHandler OpenHandler) (client, server *Conn) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	hostKey := zssh.NewEd25519Signer(priv)

	serverCfg := &zssh.ServerConfig{}
	serverCfg.AddHostKey(hostKey)
	clientCfg := &zssh.ClientConfig{
		HostKeyCallback: func(zssh.PublicKey) error { return nil },
	}

	c1, c2 := net.Pipe()

	var wg sync.WaitGroup
	wg.Add(2)
	var clientSess, serverSess *zssh.Session
	var clientErr, serverErr error
	go func() {
		defer wg.Done()
		clientSess, clientErr = zssh.NewClientSession(c1, clientCfg)
	}()
	go func() {
		defer wg.Done()
		serverSess, serverErr = zssh.NewServerSession(c2, serverCfg)
	}()
	wg.Wait()
	require.NoError(t, clientErr)
	require.NoError(t, serverErr)

	clientService := &Service{}
	serverService := &Service{OpenHandler: openHandler}

	wg.Add(2)
	var clientResult, serverResult interface{}
	go func() {
		defer wg.Done()
		clientResult, clientErr = clientSess.RequestService(clientService)
	}()
	go func() {
		defer wg.Done()
		serverResult, serverErr = serverSess.Handle(serverService)
	}()
	wg.Wait()
	require.NoError(t, clientErr)
	require.NoError(t, serverErr)

	client = clientResult.(*Conn)
	server = serverResult.(*Conn)
	return client, server
}

func TestChannelOpenDataClose(t *testing.T) {
	var accepted OpenRequest
	client, server := connPair(t, func(req OpenRequest) OpenDecision {
		accepted = req
		return OpenDecision{Accept: true, Window: InitialWindowSize, MaxPacket: MaximumPacketSize}
	})

	ch, err := client.OpenChannel("session", []byte("hello-open"))
	require.NoError(t, err)
	require.Equal(t, "session", accepted.ChanType)
	require.Equal(t, []byte("hello-open"), accepted.Data)

	// The peer hasn't pulled the accepted channel off yet; give the
	// server's event loop a moment to register it before sending data.
	var serverCh *Channel
	require.Eventually(t, func() bool {
		server.mu.Lock()
		defer server.mu.Unlock()
		for _, c := range server.channels {
			serverCh = c
		}
		return serverCh != nil
	}, time.Second, 5*time.Millisecond)

	payload := []byte("the quick brown fox")
	n, err := ch.Writer().Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	got := make([]byte, len(payload))
	_, err = io.ReadFull(serverCh.Reader(), got)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	require.NoError(t, ch.Close())
	require.Eventually(t, func() bool {
		select {
		case <-serverCh.closed:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestChannelOpenRejected(t *testing.T) {
	client, _ := connPair(t, func(OpenRequest) OpenDecision {
		return OpenDecision{Accept: false, Reason: OpenAdministrativelyProhibited, Description: "no"}
	})

	_, err := client.OpenChannel("session", nil)
	require.Error(t, err)
	sshErr, ok := err.(*zssh.Error)
	require.True(t, ok)
	require.Equal(t, zssh.ErrChannelOpenRejected, sshErr.Kind)
}

func TestChannelOpenUnrecognizedContextRejected(t *testing.T) {
	var seen OpenRequest
	client, _ := connPair(t, func(req OpenRequest) OpenDecision {
		seen = req
		if req.Context != ChannelSession {
			return OpenDecision{Accept: false, Reason: OpenUnknownChannelType}
		}
		return OpenDecision{Accept: true, Window: InitialWindowSize, MaxPacket: MaximumPacketSize}
	})

	_, err := client.OpenChannel("direct-tcpip", nil)
	require.Error(t, err)
	sshErr, ok := err.(*zssh.Error)
	require.True(t, ok)
	require.Equal(t, zssh.ErrChannelOpenRejected, sshErr.Kind)
	require.Equal(t, ChannelDirectTCPIP, seen.Context)

	_, err = client.OpenChannel("something-nobody-registered", nil)
	require.Error(t, err)
	require.Equal(t, ChannelUnknown, seen.Context)
}

func TestChannelRequestReply(t *testing.T) {
	client, server := connPair(t, func(OpenRequest) OpenDecision {
		return OpenDecision{Accept: true, Window: InitialWindowSize, MaxPacket: MaximumPacketSize}
	})

	ch, err := client.OpenChannel("session", nil)
	require.NoError(t, err)

	var serverCh *Channel
	require.Eventually(t, func() bool {
		server.mu.Lock()
		defer server.mu.Unlock()
		for _, c := range server.channels {
			serverCh = c
		}
		return serverCh != nil
	}, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = serverCh.OnRequest(func(ctx RequestContext) Response {
			require.Equal(t, "exec", ctx.Type)
			return Success
		})
	}()

	resp, err := ch.Request(RequestContext{Type: "exec", Data: []byte("ls")})
	require.NoError(t, err)
	require.Equal(t, Success, resp)
	wg.Wait()
}

func TestGlobalRequestRoundTrip(t *testing.T) {
	client, server := connPair(t, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		req, err := server.NextGlobalRequest()
		require.NoError(t, err)
		require.Equal(t, "keepalive@test", req.Name)
		require.NoError(t, req.Reply(true, []byte("pong")))
	}()

	ok, data, err := client.GlobalRequest("keepalive@test", true, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("pong"), data)
	wg.Wait()
}
