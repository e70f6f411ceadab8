// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func fullKexInit(kex, hostKey, cipherCS, cipherSC, macCS, macSC, compCS, compSC []string) *kexInitMsg {
	return &kexInitMsg{
		KexAlgos:                kex,
		ServerHostKeyAlgos:      hostKey,
		CiphersClientServer:     cipherCS,
		CiphersServerClient:     cipherSC,
		MACsClientServer:        macCS,
		MACsServerClient:        macSC,
		CompressionClientServer: compCS,
		CompressionServerClient: compSC,
	}
}

func TestFindAgreedAlgorithmsPicksClientPreference(t *testing.T) {
	client := fullKexInit(
		[]string{KexAlgoCurve25519SHA256, KexAlgoECDH256},
		[]string{KeyAlgoED25519},
		[]string{"aes128-ctr", "aes256-ctr"},
		[]string{"aes128-ctr", "aes256-ctr"},
		[]string{"hmac-sha2-256"},
		[]string{"hmac-sha2-256"},
		[]string{"none"},
		[]string{"none"},
	)
	server := fullKexInit(
		[]string{KexAlgoECDH256, KexAlgoCurve25519SHA256},
		[]string{KeyAlgoED25519},
		[]string{"aes256-ctr", "aes128-ctr"},
		[]string{"aes256-ctr", "aes128-ctr"},
		[]string{"hmac-sha2-256"},
		[]string{"hmac-sha2-256"},
		[]string{"none"},
		[]string{"none"},
	)

	algos, err := findAgreedAlgorithms(client, server)
	require.NoError(t, err)
	require.Equal(t, KexAlgoCurve25519SHA256, algos.Kex, "client's first preference should win")
	require.Equal(t, "aes128-ctr", algos.W.Cipher)
}

func TestFindAgreedAlgorithmsNoCommonKex(t *testing.T) {
	client := fullKexInit(
		[]string{KexAlgoCurve25519SHA256},
		[]string{KeyAlgoED25519},
		[]string{"aes128-ctr"}, []string{"aes128-ctr"},
		[]string{"hmac-sha2-256"}, []string{"hmac-sha2-256"},
		[]string{"none"}, []string{"none"},
	)
	server := fullKexInit(
		[]string{KexAlgoECDH256},
		[]string{KeyAlgoED25519},
		[]string{"aes128-ctr"}, []string{"aes128-ctr"},
		[]string{"hmac-sha2-256"}, []string{"hmac-sha2-256"},
		[]string{"none"}, []string{"none"},
	)

	_, err := findAgreedAlgorithms(client, server)
	require.Error(t, err)
	sshErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrNoCommonKex, sshErr.Kind)
}

func TestFindAgreedAlgorithmsNoCommonCipher(t *testing.T) {
	client := fullKexInit(
		[]string{KexAlgoCurve25519SHA256}, []string{KeyAlgoED25519},
		[]string{"aes128-ctr"}, []string{"aes128-ctr"},
		[]string{"hmac-sha2-256"}, []string{"hmac-sha2-256"},
		[]string{"none"}, []string{"none"},
	)
	server := fullKexInit(
		[]string{KexAlgoCurve25519SHA256}, []string{KeyAlgoED25519},
		[]string{"aes256-ctr"}, []string{"aes256-ctr"},
		[]string{"hmac-sha2-256"}, []string{"hmac-sha2-256"},
		[]string{"none"}, []string{"none"},
	)

	_, err := findAgreedAlgorithms(client, server)
	require.Error(t, err)
	sshErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrNoCommonCipher, sshErr.Kind)
}

func TestGuessedKexMatches(t *testing.T) {
	a := fullKexInit([]string{KexAlgoCurve25519SHA256, KexAlgoECDH256}, nil, nil, nil, nil, nil, nil, nil)
	b := fullKexInit([]string{KexAlgoCurve25519SHA256, KexAlgoDH14SHA256}, nil, nil, nil, nil, nil, nil, nil)
	require.True(t, guessedKexMatches(a, b), "both sides agree on the first algorithm")

	c := fullKexInit([]string{KexAlgoECDH256, KexAlgoCurve25519SHA256}, nil, nil, nil, nil, nil, nil, nil)
	require.False(t, guessedKexMatches(a, c), "first choices differ even though a common algorithm exists")

	empty := fullKexInit(nil, nil, nil, nil, nil, nil, nil, nil)
	require.False(t, guessedKexMatches(a, empty))
}

func TestDeriveKeysDeterministicAndSized(t *testing.T) {
	k := appendMpint(nil, big.NewInt(12345))
	h := []byte("exchange-hash")
	sessionID := []byte("session-id")

	k1 := deriveKeys(sha256.New, k, h, sessionID, 'A', 64)
	k2 := deriveKeys(sha256.New, k, h, sessionID, 'A', 64)
	require.Equal(t, k1, k2, "same inputs must derive the same key material")
	require.Len(t, k1, 64)

	kOther := deriveKeys(sha256.New, k, h, sessionID, 'B', 64)
	require.NotEqual(t, k1, kOther, "different key letters must derive distinct material")
}
