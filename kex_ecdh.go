// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	stdecdh "crypto/ecdh"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"math/big"

	"golang.org/x/crypto/curve25519"
)

func init() {
	registerKexAlgorithm(KexAlgoCurve25519SHA256, &curve25519Kex{sha256.New})
	registerKexAlgorithm(KexAlgoCurve25519SHA256LibSSH, &curve25519Kex{sha256.New})
	registerKexAlgorithm(KexAlgoECDH256, &ecdhKex{stdecdh.P256(), sha256.New})
	registerKexAlgorithm(KexAlgoECDH384, &ecdhKex{stdecdh.P384(), sha512.New384})
	registerKexAlgorithm(KexAlgoECDH521, &ecdhKex{stdecdh.P521(), sha512.New})
}

// writeECDHHashTranscript writes V_C || V_S || I_C || I_S || K_S || Q_C ||
// Q_S || K into h (RFC 5656 §4, RFC 8731): unlike the finite-field DH
// variants, the client/server ephemeral public values are raw SSH
// strings, not mpints.
func writeECDHHashTranscript(h hash.Hash, magics *kexMagics, clientPub, serverPub, hostKeyBlob []byte, k *big.Int) {
	writeString(h, magics.ClientVersion)
	writeString(h, magics.ServerVersion)
	writeString(h, magics.ClientKexInit)
	writeString(h, magics.ServerKexInit)
	writeString(h, hostKeyBlob)
	writeString(h, clientPub)
	writeString(h, serverPub)
	writeMpint(h, k)
}

// curve25519Kex implements curve25519-sha256 and its @libssh.org alias
// (spec.md §6), via golang.org/x/crypto/curve25519, the same X25519
// primitive go.mod already depends on.
type curve25519Kex struct {
	newHash func() hash.Hash
}

func (kex *curve25519Kex) Client(t *transport, rand randReader, magics *kexMagics, hostKeyAlgo string) (*kexResult, error) {
	var priv [32]byte
	readRandom(rand, priv[:])
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, newError(ErrNoCommonKex, err)
	}

	if err := t.send(&kexECDHInitMsg{ClientPublic: pub}); err != nil {
		return nil, err
	}

	body, err := recvKexBody(t, msgKexECDHReply)
	if err != nil {
		return nil, err
	}
	reply := new(kexECDHReplyMsg)
	if err := Unmarshal(body, reply); err != nil {
		return nil, err
	}

	secret, err := curve25519.X25519(priv[:], reply.EphemeralPublic)
	if err != nil {
		return nil, newError(ErrNoCommonKex, err)
	}
	K := new(big.Int).SetBytes(secret)

	h := kex.newHash()
	writeECDHHashTranscript(h, magics, pub, reply.EphemeralPublic, reply.HostKey, K)

	return &kexResult{H: h.Sum(nil), K: K, HostKey: reply.HostKey, Signature: reply.Signature, Hash: hashForNewHash(kex.newHash)}, nil
}

func (kex *curve25519Kex) Server(t *transport, rand randReader, magics *kexMagics, priv Signer) (*kexResult, error) {
	body, err := recvKexBody(t, msgKexECDHInit)
	if err != nil {
		return nil, err
	}
	init := new(kexECDHInitMsg)
	if err := Unmarshal(body, init); err != nil {
		return nil, err
	}

	var serverPriv [32]byte
	readRandom(rand, serverPriv[:])
	serverPub, err := curve25519.X25519(serverPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, newError(ErrNoCommonKex, err)
	}
	secret, err := curve25519.X25519(serverPriv[:], init.ClientPublic)
	if err != nil {
		return nil, newError(ErrNoCommonKex, err)
	}
	K := new(big.Int).SetBytes(secret)

	hostKeyBlob := priv.PublicKey().Marshal()
	h := kex.newHash()
	writeECDHHashTranscript(h, magics, init.ClientPublic, serverPub, hostKeyBlob, K)
	H := h.Sum(nil)

	rawSig, err := priv.Sign(rand, H)
	if err != nil {
		return nil, err
	}
	sig := wrapSignature(priv.PublicKey().Type(), rawSig)
	if err := t.send(&kexECDHReplyMsg{HostKey: hostKeyBlob, EphemeralPublic: serverPub, Signature: sig}); err != nil {
		return nil, err
	}

	return &kexResult{H: H, K: K, HostKey: hostKeyBlob, Signature: sig, Hash: hashForNewHash(kex.newHash)}, nil
}

// ecdhKex implements ecdh-sha2-nistp256/384/521 (RFC 5656) via the
// standard library's crypto/ecdh, the idiomatic successor to the
// crypto/elliptic-based NIST curve arithmetic keys.go uses
// for host-key signatures.
type ecdhKex struct {
	curve   stdecdh.Curve
	newHash func() hash.Hash
}

func (kex *ecdhKex) Client(t *transport, rand randReader, magics *kexMagics, hostKeyAlgo string) (*kexResult, error) {
	priv, err := kex.curve.GenerateKey(rand)
	if err != nil {
		return nil, newError(ErrNoCommonKex, err)
	}
	pub := priv.PublicKey().Bytes()

	if err := t.send(&kexECDHInitMsg{ClientPublic: pub}); err != nil {
		return nil, err
	}

	body, err := recvKexBody(t, msgKexECDHReply)
	if err != nil {
		return nil, err
	}
	reply := new(kexECDHReplyMsg)
	if err := Unmarshal(body, reply); err != nil {
		return nil, err
	}

	peerPub, err := kex.curve.NewPublicKey(reply.EphemeralPublic)
	if err != nil {
		return nil, newError(ErrNoCommonKex, err)
	}
	secret, err := priv.ECDH(peerPub)
	if err != nil {
		return nil, newError(ErrNoCommonKex, err)
	}
	K := new(big.Int).SetBytes(secret)

	h := kex.newHash()
	writeECDHHashTranscript(h, magics, pub, reply.EphemeralPublic, reply.HostKey, K)

	return &kexResult{H: h.Sum(nil), K: K, HostKey: reply.HostKey, Signature: reply.Signature, Hash: hashForNewHash(kex.newHash)}, nil
}

func (kex *ecdhKex) Server(t *transport, rand randReader, magics *kexMagics, priv Signer) (*kexResult, error) {
	body, err := recvKexBody(t, msgKexECDHInit)
	if err != nil {
		return nil, err
	}
	init := new(kexECDHInitMsg)
	if err := Unmarshal(body, init); err != nil {
		return nil, err
	}

	clientPub, err := kex.curve.NewPublicKey(init.ClientPublic)
	if err != nil {
		return nil, newError(ErrProtocolViolation, err)
	}

	serverPriv, err := kex.curve.GenerateKey(rand)
	if err != nil {
		return nil, newError(ErrNoCommonKex, err)
	}
	secret, err := serverPriv.ECDH(clientPub)
	if err != nil {
		return nil, newError(ErrNoCommonKex, err)
	}
	K := new(big.Int).SetBytes(secret)

	serverPub := serverPriv.PublicKey().Bytes()
	hostKeyBlob := priv.PublicKey().Marshal()
	h := kex.newHash()
	writeECDHHashTranscript(h, magics, init.ClientPublic, serverPub, hostKeyBlob, K)
	H := h.Sum(nil)

	rawSig, err := priv.Sign(rand, H)
	if err != nil {
		return nil, err
	}
	sig := wrapSignature(priv.PublicKey().Type(), rawSig)
	if err := t.send(&kexECDHReplyMsg{HostKey: hostKeyBlob, EphemeralPublic: serverPub, Signature: sig}); err != nil {
		return nil, err
	}

	return &kexResult{H: H, K: K, HostKey: hostKeyBlob, Signature: sig, Hash: hashForNewHash(kex.newHash)}, nil
}
