// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	"fmt"
	"hash"
	"math/big"
)

// Key-exchange algorithm names, spec.md §6.
const (
	KexAlgoCurve25519SHA256    = "curve25519-sha256"
	KexAlgoCurve25519SHA256LibSSH = "curve25519-sha256@libssh.org"
	KexAlgoECDH256             = "ecdh-sha2-nistp256"
	KexAlgoECDH384             = "ecdh-sha2-nistp384"
	KexAlgoECDH521             = "ecdh-sha2-nistp521"
	KexAlgoDH14SHA256          = "diffie-hellman-group14-sha256"
	KexAlgoDH14SHA1            = "diffie-hellman-group14-sha1"
	KexAlgoDHGEXSHA256         = "diffie-hellman-group-exchange-sha256"
)

// defaultKexAlgos is the default KEX preference order, mirroring
// common.go's defaultKexAlgos/allSupportedKexAlgos split.
var defaultKexAlgos = []string{
	KexAlgoCurve25519SHA256,
	KexAlgoCurve25519SHA256LibSSH,
	KexAlgoECDH256, KexAlgoECDH384, KexAlgoECDH521,
	KexAlgoDH14SHA256, KexAlgoDH14SHA1,
	KexAlgoDHGEXSHA256,
}

// kexMagics are the transcript inputs to the exchange hash (spec.md §4.4:
// "V_C || V_S || I_C || I_S || K_S || ... || K"), named after
// client.go's verifyHostKeySignature/kexResult usage.
type kexMagics struct {
	ClientVersion []byte
	ServerVersion []byte
	ClientKexInit []byte
	ServerKexInit []byte
}

// kexResult is produced by a kexAlgorithm's Client/Server method: the
// shared secret and signed exchange hash, per spec.md §3/§4.4. Field
// names follow client.go's own references to result.H/result.Signature
// in client.go's verifyHostKeySignature.
type kexResult struct {
	H         []byte
	K         *big.Int
	HostKey   []byte
	Signature []byte
	SessionID []byte
	Hash      crypto.Hash
}

// kexAlgorithm is the polymorphic KEX driver interface (spec.md §4.4,
// §9 "Polymorphic KEX / cipher / MAC ... tagged variants dispatched by
// negotiated name").
type kexAlgorithm interface {
	// Client runs the client side of the exchange: send the client's
	// ephemeral public value, await the server's reply, and return H with
	// the server's host key blob and signature; runKex verifies the
	// signature.
	Client(t *transport, rand randReader, magics *kexMagics, hostKeyAlgo string) (*kexResult, error)
	// Server runs the server side: await the client's ephemeral public
	// value, compute and sign H with priv, reply.
	Server(t *transport, rand randReader, magics *kexMagics, priv Signer) (*kexResult, error)
}

// kexAlgorithms is the name -> driver registry (spec.md §4.3/§4.4),
// populated by each variant's init(), the same name-string-keyed
// plugin-table shape as zgrab2.AddCommand's module registry
// (modules/*/scanner.go RegisterModule), applied here to algorithm
// variants instead of scanner protocols (see DESIGN.md).
var kexAlgorithms = map[string]kexAlgorithm{}

func registerKexAlgorithm(name string, alg kexAlgorithm) {
	kexAlgorithms[name] = alg
}

// DirectionAlgorithms is the negotiated cipher/MAC/compression triple for
// one direction, verbatim in shape from common.go.
type DirectionAlgorithms struct {
	Cipher      string
	MAC         string
	Compression string
}

// Algorithms is the full negotiated algorithm set for a session,
// verbatim in shape from common.go.
type Algorithms struct {
	Kex     string
	HostKey string
	W       DirectionAlgorithms // client -> server
	R       DirectionAlgorithms // server -> client
}

func findCommon(what string, client, server []string) (string, error) {
	for _, c := range client {
		for _, s := range server {
			if c == s {
				return c, nil
			}
		}
	}
	return "", newError(errKindFor(what), fmt.Errorf("ssh: no common algorithm for %s; client offered: %v, server offered: %v", what, client, server))
}

func errKindFor(what string) ErrorKind {
	switch what {
	case "key exchange":
		return ErrNoCommonKex
	case "host key":
		return ErrNoCommonHostKey
	case "compression":
		return ErrNoCommonCompression
	default:
		if what == "client to server cipher" || what == "server to client cipher" {
			return ErrNoCommonCipher
		}
		return ErrNoCommonMAC
	}
}

// recvKexBody reads one frame and returns its body (tag stripped) after
// checking the tag equals want. Key-exchange messages live on the 30-49
// tag range shared across every kex variant, so decodeMessage's
// registered-struct switch can't resolve them; callers that already know
// which message they're expecting use this instead.
func recvKexBody(t *transport, want byte) ([]byte, error) {
	payload, err := t.recvRaw()
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, errShortRead
	}
	if payload[0] != want {
		return nil, unexpectedMessageError(want, payload[0])
	}
	return payload[1:], nil
}

// findAgreedAlgorithms implements spec.md §4.3's negotiation rules (RFC
// 4253 §7.1): independently, per direction, the first client-preferred
// name that also appears in the server's list.
func findAgreedAlgorithms(clientKexInit, serverKexInit *kexInitMsg) (*Algorithms, error) {
	result := &Algorithms{}
	var err error

	if result.Kex, err = findCommon("key exchange", clientKexInit.KexAlgos, serverKexInit.KexAlgos); err != nil {
		return nil, err
	}
	if result.HostKey, err = findCommon("host key", clientKexInit.ServerHostKeyAlgos, serverKexInit.ServerHostKeyAlgos); err != nil {
		return nil, err
	}
	if result.W.Cipher, err = findCommon("client to server cipher", clientKexInit.CiphersClientServer, serverKexInit.CiphersClientServer); err != nil {
		return nil, err
	}
	if result.R.Cipher, err = findCommon("server to client cipher", clientKexInit.CiphersServerClient, serverKexInit.CiphersServerClient); err != nil {
		return nil, err
	}
	if result.W.MAC, err = findCommon("client to server MAC", clientKexInit.MACsClientServer, serverKexInit.MACsClientServer); err != nil {
		return nil, err
	}
	if result.R.MAC, err = findCommon("server to client MAC", clientKexInit.MACsServerClient, serverKexInit.MACsServerClient); err != nil {
		return nil, err
	}
	if result.W.Compression, err = findCommon("client to server compression", clientKexInit.CompressionClientServer, serverKexInit.CompressionClientServer); err != nil {
		return nil, err
	}
	if result.R.Compression, err = findCommon("server to client compression", clientKexInit.CompressionServerClient, serverKexInit.CompressionServerClient); err != nil {
		return nil, err
	}

	return result, nil
}

// guessedKexMatches implements spec.md §4.3's first_kex_packet_follows
// rule, supplemented from original_source's kex::negociate shape (SPEC_FULL
// §4.9): the guess is usable only when both sides' *first* KEX algorithm
// name matches, not merely when some common algorithm exists.
func guessedKexMatches(clientKexInit, serverKexInit *kexInitMsg) bool {
	if len(clientKexInit.KexAlgos) == 0 || len(serverKexInit.KexAlgos) == 0 {
		return false
	}
	return clientKexInit.KexAlgos[0] == serverKexInit.KexAlgos[0]
}

// deriveKeys implements spec.md §4.4's key derivation: HASH(K || H || X ||
// session_id), extended by further HASH(K || H || previous) until long
// enough, for each of the six key-material slots. kMpint is the shared
// secret already mpint-encoded (via appendMpint) by the caller.
func deriveKeys(newHash func() hash.Hash, kMpint, h, sessionID []byte, x byte, size int) []byte {
	hasher := newHash()
	hasher.Write(kMpint)
	hasher.Write(h)
	hasher.Write([]byte{x})
	hasher.Write(sessionID)
	out := hasher.Sum(nil)

	for len(out) < size {
		hasher = newHash()
		hasher.Write(kMpint)
		hasher.Write(h)
		hasher.Write(out)
		out = append(out, hasher.Sum(nil)...)
	}
	return out[:size]
}
