// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalKexInitRoundTrip(t *testing.T) {
	in := &kexInitMsg{
		Cookie:                  newCookie(nil),
		KexAlgos:                []string{KexAlgoCurve25519SHA256, KexAlgoECDH256},
		ServerHostKeyAlgos:      []string{KeyAlgoED25519},
		CiphersClientServer:     []string{"aes128-ctr"},
		CiphersServerClient:     []string{"aes128-ctr"},
		MACsClientServer:        []string{"hmac-sha2-256"},
		MACsServerClient:        []string{"hmac-sha2-256"},
		CompressionClientServer: []string{"none"},
		CompressionServerClient: []string{"none"},
		FirstKexFollows:         true,
		Reserved:                0,
	}
	wire := Marshal(in)

	out := new(kexInitMsg)
	require.NoError(t, Unmarshal(wire, out))
	require.Equal(t, in.Cookie, out.Cookie)
	require.Equal(t, in.KexAlgos, out.KexAlgos)
	require.Equal(t, in.ServerHostKeyAlgos, out.ServerHostKeyAlgos)
	require.Equal(t, in.CiphersClientServer, out.CiphersClientServer)
	require.True(t, out.FirstKexFollows)
}

func TestMarshalMpintRoundTrip(t *testing.T) {
	cases := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(255),  // needs a leading zero byte
		big.NewInt(-129), // negative: exercises two's complement
	}
	for _, n := range cases {
		in := &kexDHInitMsg{X: n}
		out := new(kexDHInitMsg)
		require.NoError(t, Unmarshal(Marshal(in), out))
		require.Equal(t, 0, n.Cmp(out.X), "mpint %v round-tripped as %v", n, out.X)
	}
}

func TestMarshalRestTag(t *testing.T) {
	type withRest struct {
		Name string
		Rest []byte `ssh:"rest"`
	}
	in := &withRest{Name: "exec", Rest: []byte{1, 2, 3, 4}}
	out := new(withRest)
	require.NoError(t, Unmarshal(Marshal(in), out))
	require.Equal(t, in.Name, out.Name)
	require.Equal(t, in.Rest, out.Rest)
}

func TestUnmarshalShortBufferErrors(t *testing.T) {
	out := new(kexInitMsg)
	err := Unmarshal([]byte{0, 0, 0}, out)
	require.Error(t, err)
}
