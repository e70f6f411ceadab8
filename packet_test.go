// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"crypto/rand"
	"hash"
	"testing"

	"github.com/stretchr/testify/require"
)

func newDirectionStatePair(t *testing.T, cipherName, macName string) (tx, rx *directionState) {
	t.Helper()
	cm := cipherModes[cipherName]
	require.NotNil(t, cm, "cipher %q not registered", cipherName)
	mm := macModes[macName]
	require.NotNil(t, mm, "mac %q not registered", macName)

	key := make([]byte, cm.keySize)
	iv := make([]byte, cm.ivSize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	_, err = rand.Read(iv)
	require.NoError(t, err)

	macKeyBytes := make([]byte, mm.size)
	_, err = rand.Read(macKeyBytes)
	require.NoError(t, err)

	encCipher, err := cm.create(key, iv)
	require.NoError(t, err)
	decCipher, err := cm.create(key, iv)
	require.NoError(t, err)

	comp, err := newCompressor("none")
	require.NoError(t, err)

	var txMacKey, rxMacKey hash.Hash
	if mm.create != nil {
		txMacKey = mm.create(macKeyBytes)
		rxMacKey = mm.create(macKeyBytes)
	}

	tx = newDirectionState(encCipher, mm, txMacKey, comp)
	rx = newDirectionState(decCipher, mm, rxMacKey, comp)
	return tx, rx
}

func TestPacketEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct{ cipher, mac string }{
		{"aes128-ctr", "hmac-sha2-256"},
		{"aes128-ctr", "hmac-sha2-256-etm@openssh.com"},
		{"aes128-cbc", "hmac-sha1"},
		{"3des-cbc", "hmac-sha1-etm@openssh.com"},
	}
	for _, tc := range cases {
		t.Run(tc.cipher+"/"+tc.mac, func(t *testing.T) {
			tx, rx := newDirectionStatePair(t, tc.cipher, tc.mac)

			payload := []byte("the quick brown fox jumps over the lazy dog")
			frame, err := tx.encode(payload, rand.Reader)
			require.NoError(t, err)

			got, err := rx.decode(bytes.NewReader(frame), defaultMaxPayload)
			require.NoError(t, err)
			require.Equal(t, payload, got)
		})
	}
}

func TestPacketDecodeBadMAC(t *testing.T) {
	tx, rx := newDirectionStatePair(t, "aes128-ctr", "hmac-sha2-256")
	frame, err := tx.encode([]byte("hello"), rand.Reader)
	require.NoError(t, err)

	flipped := append([]byte(nil), frame...)
	flipped[len(flipped)-1] ^= 0xff

	_, err = rx.decode(bytes.NewReader(flipped), defaultMaxPayload)
	require.Error(t, err)
	sshErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrBadMAC, sshErr.Kind)
}

func TestPacketDecodeBadMACEtm(t *testing.T) {
	tx, rx := newDirectionStatePair(t, "aes128-ctr", "hmac-sha2-256-etm@openssh.com")
	frame, err := tx.encode([]byte("hello"), rand.Reader)
	require.NoError(t, err)

	flipped := append([]byte(nil), frame...)
	flipped[len(flipped)-1] ^= 0xff

	_, err = rx.decode(bytes.NewReader(flipped), defaultMaxPayload)
	require.Error(t, err)
	sshErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrBadMAC, sshErr.Kind)
}

func TestPacketDecodeRejectsOversizedPayload(t *testing.T) {
	tx, rx := newDirectionStatePair(t, "aes128-ctr", "hmac-sha2-256")
	payload := make([]byte, 1024)
	frame, err := tx.encode(payload, rand.Reader)
	require.NoError(t, err)

	_, err = rx.decode(bytes.NewReader(frame), 128)
	require.Error(t, err)
	sshErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrInvalidLength, sshErr.Kind)
}
