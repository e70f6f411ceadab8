// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"hash"
	"math/big"
)

// dhGroup is a fixed (generator, safe prime) pair for the "plain"
// finite-field Diffie-Hellman variants, spec.md §6.
type dhGroup struct {
	g, p *big.Int
}

// group14 is RFC 3526's 2048-bit MODP group, used by
// diffie-hellman-group14-sha1/sha256.
var group14 = &dhGroup{
	g: big.NewInt(2),
	p: bigFromHex(
		"FFFFFFFF FFFFFFFF C90FDAA2 2168C234 C4C6628B 80DC1CD1" +
			"29024E08 8A67CC74 020BBEA6 3B139B22 514A0879 8E3404DD" +
			"EF9519B3 CD3A431B 302B0A6D F25F1437 4FE1356D 6D51C245" +
			"E485B576 625E7EC6 F44C42E9 A637ED6B 0BFF5CB6 F406B7ED" +
			"EE386BFB 5A899FA5 AE9F2411 7C4B1FE6 49286651 ECE45B3D" +
			"C2007CB8 A163BF05 98DA4836 1C55D39A 69163FA8 FD24CF5F" +
			"83655D23 DCA3AD96 1C62F356 208552BB 9ED52907 7096966D" +
			"670C354E 4ABC9804 F1746C08 CA18217C 32905E46 2E36CE3B" +
			"E39E772C 180E8603 9B2783A2 EC07A28F B5C55DF0 6F4C52C9" +
			"DE2BCBF6 95581718 3995497C EA956AE5 15D22618 98FA0510" +
			"15728E5A 8AACAA68 FFFFFFFF FFFFFFFF"),
}

func bigFromHex(s string) *big.Int {
	cleaned := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			cleaned = append(cleaned, s[i])
		}
	}
	n, ok := new(big.Int).SetString(string(cleaned), 16)
	if !ok {
		panic("ssh: invalid fixed DH group constant")
	}
	return n
}

// dhGroupKex implements diffie-hellman-group14-sha1/sha256 (spec.md §6):
// fixed group, client sends g^x mod p, server replies with g^y mod p plus
// host key and signature over H.
type dhGroupKex struct {
	group   *dhGroup
	newHash func() hash.Hash
}

func init() {
	registerKexAlgorithm(KexAlgoDH14SHA1, &dhGroupKex{group14, sha1.New})
	registerKexAlgorithm(KexAlgoDH14SHA256, &dhGroupKex{group14, sha256.New})
	registerKexAlgorithm(KexAlgoDHGEXSHA256, &dhGroupExchangeKex{sha256.New})
}

func (kex *dhGroupKex) Client(t *transport, rand randReader, magics *kexMagics, hostKeyAlgo string) (*kexResult, error) {
	x, err := randomDHPrivate(kex.group.p, rand)
	if err != nil {
		return nil, err
	}
	X := new(big.Int).Exp(kex.group.g, x, kex.group.p)

	if err := t.send(&kexDHInitMsg{X: X}); err != nil {
		return nil, err
	}

	body, err := recvKexBody(t, msgKexDHReply)
	if err != nil {
		return nil, err
	}
	reply := new(kexDHReplyMsg)
	if err := Unmarshal(body, reply); err != nil {
		return nil, err
	}

	if reply.Y.Sign() <= 0 || reply.Y.Cmp(kex.group.p) >= 0 {
		return nil, newError(ErrProtocolViolation, errors.New("ssh: DH reply Y out of range"))
	}
	K := new(big.Int).Exp(reply.Y, x, kex.group.p)

	h := kex.newHash()
	writeHashTranscript(h, magics, X, reply.Y, reply.HostKey, K)

	return &kexResult{
		H:         h.Sum(nil),
		K:         K,
		HostKey:   reply.HostKey,
		Signature: reply.Signature,
		Hash:      hashForNewHash(kex.newHash),
	}, nil
}

func (kex *dhGroupKex) Server(t *transport, rand randReader, magics *kexMagics, priv Signer) (*kexResult, error) {
	body, err := recvKexBody(t, msgKexDHInit)
	if err != nil {
		return nil, err
	}
	init := new(kexDHInitMsg)
	if err := Unmarshal(body, init); err != nil {
		return nil, err
	}
	if init.X.Sign() <= 0 || init.X.Cmp(kex.group.p) >= 0 {
		return nil, newError(ErrProtocolViolation, errors.New("ssh: DH init X out of range"))
	}

	y, err := randomDHPrivate(kex.group.p, rand)
	if err != nil {
		return nil, err
	}
	Y := new(big.Int).Exp(kex.group.g, y, kex.group.p)
	K := new(big.Int).Exp(init.X, y, kex.group.p)

	hostKeyBlob := priv.PublicKey().Marshal()
	h := kex.newHash()
	writeHashTranscript(h, magics, init.X, Y, hostKeyBlob, K)
	H := h.Sum(nil)

	rawSig, err := priv.Sign(rand, H)
	if err != nil {
		return nil, err
	}
	sig := wrapSignature(priv.PublicKey().Type(), rawSig)

	if err := t.send(&kexDHReplyMsg{HostKey: hostKeyBlob, Y: Y, Signature: sig}); err != nil {
		return nil, err
	}

	return &kexResult{H: H, K: K, HostKey: hostKeyBlob, Signature: sig, Hash: hashForNewHash(kex.newHash)}, nil
}

// dhGroupExchangeKex implements diffie-hellman-group-exchange-sha256
// (spec.md §6): the client proposes a group size range; the server
// answers every request with group14 (see gexMinBits below).
type dhGroupExchangeKex struct {
	newHash func() hash.Hash
}

// gexMinBits/gexPreferredBits/gexMaxBits are this module's range proposal
// for GEX_REQUEST; the server, lacking a registry of safe primes of
// arbitrary size, answers every request with group14 (spec.md's Non-goals
// exclude arbitrary-size safe-prime generation).
const (
	gexMinBits       = 2048
	gexPreferredBits = 2048
	gexMaxBits       = 8192
)

func (kex *dhGroupExchangeKex) Client(t *transport, rand randReader, magics *kexMagics, hostKeyAlgo string) (*kexResult, error) {
	if err := t.send(&kexDHGexRequestMsg{MinBits: gexMinBits, NumBits: gexPreferredBits, MaxBits: gexMaxBits}); err != nil {
		return nil, err
	}

	body, err := recvKexBody(t, msgKexDHGexGroup)
	if err != nil {
		return nil, err
	}
	group := new(kexDHGexGroupMsg)
	if err := Unmarshal(body, group); err != nil {
		return nil, err
	}

	x, err := randomDHPrivate(group.P, rand)
	if err != nil {
		return nil, err
	}
	X := new(big.Int).Exp(group.G, x, group.P)
	if err := t.sendRaw(encodeMessage(msgKexDHGexInit, &kexDHInitMsg{X: X})); err != nil {
		return nil, err
	}

	body, err = recvKexBody(t, msgKexDHGexReply)
	if err != nil {
		return nil, err
	}
	reply := new(kexDHReplyMsg)
	if err := Unmarshal(body, reply); err != nil {
		return nil, err
	}
	if reply.Y.Sign() <= 0 || reply.Y.Cmp(group.P) >= 0 {
		return nil, newError(ErrProtocolViolation, errors.New("ssh: GEX reply Y out of range"))
	}
	K := new(big.Int).Exp(reply.Y, x, group.P)

	h := kex.newHash()
	writeU32(h, gexMinBits)
	writeU32(h, gexPreferredBits)
	writeU32(h, gexMaxBits)
	writeMpint(h, group.P)
	writeMpint(h, group.G)
	writeHashTranscript(h, magics, X, reply.Y, reply.HostKey, K)

	return &kexResult{H: h.Sum(nil), K: K, HostKey: reply.HostKey, Signature: reply.Signature, Hash: hashForNewHash(kex.newHash)}, nil
}

func (kex *dhGroupExchangeKex) Server(t *transport, rand randReader, magics *kexMagics, priv Signer) (*kexResult, error) {
	body, err := recvKexBody(t, msgKexDHGexRequest)
	if err != nil {
		return nil, err
	}
	req := new(kexDHGexRequestMsg)
	if err := Unmarshal(body, req); err != nil {
		return nil, err
	}

	group := group14
	if err := t.send(&kexDHGexGroupMsg{P: group.p, G: group.g}); err != nil {
		return nil, err
	}

	body, err = recvKexBody(t, msgKexDHGexInit)
	if err != nil {
		return nil, err
	}
	init := new(kexDHInitMsg)
	if err := Unmarshal(body, init); err != nil {
		return nil, err
	}
	if init.X.Sign() <= 0 || init.X.Cmp(group.p) >= 0 {
		return nil, newError(ErrProtocolViolation, errors.New("ssh: GEX init X out of range"))
	}

	y, err := randomDHPrivate(group.p, rand)
	if err != nil {
		return nil, err
	}
	Y := new(big.Int).Exp(group.g, y, group.p)
	K := new(big.Int).Exp(init.X, y, group.p)

	hostKeyBlob := priv.PublicKey().Marshal()
	h := kex.newHash()
	writeU32(h, req.MinBits)
	writeU32(h, req.NumBits)
	writeU32(h, req.MaxBits)
	writeMpint(h, group.p)
	writeMpint(h, group.g)
	writeHashTranscript(h, magics, init.X, Y, hostKeyBlob, K)
	H := h.Sum(nil)

	rawSig, err := priv.Sign(rand, H)
	if err != nil {
		return nil, err
	}
	sig := wrapSignature(priv.PublicKey().Type(), rawSig)
	if err := t.sendRaw(encodeMessage(msgKexDHGexReply, &kexDHReplyMsg{HostKey: hostKeyBlob, Y: Y, Signature: sig})); err != nil {
		return nil, err
	}

	return &kexResult{H: H, K: K, HostKey: hostKeyBlob, Signature: sig, Hash: hashForNewHash(kex.newHash)}, nil
}

// writeHashTranscript writes V_C || V_S || I_C || I_S || K_S || e || f || K
// into h, per spec.md §4.4. e/f are the client/server ephemeral DH public
// values, named after RFC 4253 §8 regardless of which side is local.
func writeHashTranscript(h hash.Hash, magics *kexMagics, e, f *big.Int, hostKeyBlob []byte, k *big.Int) {
	writeString(h, magics.ClientVersion)
	writeString(h, magics.ServerVersion)
	writeString(h, magics.ClientKexInit)
	writeString(h, magics.ServerKexInit)
	writeString(h, hostKeyBlob)
	writeMpint(h, e)
	writeMpint(h, f)
	writeMpint(h, k)
}

func writeString(h hash.Hash, b []byte) { h.Write(appendString(nil, string(b))) }
func writeU32(h hash.Hash, n uint32)    { h.Write(appendU32(nil, n)) }
func writeMpint(h hash.Hash, n *big.Int) { h.Write(appendMpint(nil, n)) }

// hashForNewHash recovers the crypto.Hash identity of a hash constructor,
// for kexResult.Hash (handshake.go uses it to pick the same hash for key
// derivation, spec.md §4.4).
func hashForNewHash(newHash func() hash.Hash) crypto.Hash {
	switch newHash().Size() {
	case sha1.Size:
		return crypto.SHA1
	case sha256.Size:
		return crypto.SHA256
	case sha512.Size384:
		return crypto.SHA384
	case sha512.Size:
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}

// randomDHPrivate picks a private exponent in [1, p-2], per RFC 4253 §8.
func randomDHPrivate(p *big.Int, rand randReader) (*big.Int, error) {
	bitLen := p.BitLen()
	for {
		buf := make([]byte, (bitLen+7)/8)
		readRandom(rand, buf)
		x := new(big.Int).SetBytes(buf)
		x.Mod(x, new(big.Int).Sub(p, big.NewInt(1)))
		if x.Sign() > 0 {
			return x, nil
		}
	}
}
