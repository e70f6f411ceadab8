// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	"fmt"
	"hash"

	log "github.com/sirupsen/logrus"
)

// minRekeyThreshold is the smallest RekeyThreshold SetDefaults will
// accept, grounded on common.go's constant of the same name.
const minRekeyThreshold uint64 = 256

// buildKexInit constructs this side's KEXINIT from cfg's algorithm lists,
// spec.md §4.3.
func buildKexInit(cfg *Config, hostKeys []Signer, hostKeyAlgorithms []string, rand randReader) *kexInitMsg {
	msg := &kexInitMsg{
		Cookie:                  newCookie(rand),
		KexAlgos:                cfg.KeyExchanges,
		CiphersClientServer:     cfg.Ciphers,
		CiphersServerClient:     cfg.Ciphers,
		MACsClientServer:        cfg.MACs,
		MACsServerClient:        cfg.MACs,
		CompressionClientServer: supportedCompressions,
		CompressionServerClient: supportedCompressions,
	}
	if len(hostKeys) > 0 {
		for _, k := range hostKeys {
			msg.ServerHostKeyAlgos = append(msg.ServerHostKeyAlgos, k.PublicKey().Type())
		}
	} else {
		msg.ServerHostKeyAlgos = hostKeyAlgorithms
	}
	return msg
}

// verifyHostKeySignature checks result.Signature (a wire "signature" blob,
// RFC 4253 §6.6) against result.H under hostKey, grounded on
// client.go function of the same name.
func verifyHostKeySignature(hostKey PublicKey, result *kexResult) error {
	sig, rest, ok := parseSignatureBody(result.Signature)
	if !ok || len(rest) > 0 {
		return newError(ErrHostKeySignature, fmt.Errorf("ssh: signature parse error"))
	}
	return hostKey.Verify(result.H, sig)
}

// handshakeParty carries the role-specific inputs to runKex: a server
// supplies hostKeys (one per supported algorithm); a client supplies
// hostKeyAlgorithms (its acceptable list) and an optional hostKeyCallback.
type handshakeParty struct {
	hostKeys          []Signer
	hostKeyAlgorithms []string
	hostKeyCallback   func(PublicKey) error
}

func (p *handshakeParty) isServer() bool { return len(p.hostKeys) > 0 }

// runKex drives one full key exchange over t: KEXINIT exchange,
// algorithm negotiation, the negotiated kexAlgorithm's Client/Server
// method, NEWKEYS in both directions, and direction rekeying. sessionID,
// when non-nil, is the existing session_id to reuse (spec.md §4.4: fixed
// at the first exchange and threaded unchanged through every re-key).
// peerInitPayload, when non-nil, is a KEXINIT packet already drained off
// the wire by the caller (the peer-initiated re-key path: session.go's
// Recv sees a stray KEXINIT and hands it here instead of calling
// t.recvRaw() for it a second time); when nil, runKex reads the peer's
// KEXINIT itself (the locally-initiated path).
// It returns the algorithms and kex result used, and the (possibly newly
// established) session_id.
func runKex(t *transport, cfg *Config, clientVersion, serverVersion []byte, party *handshakeParty, sessionID []byte, peerInitPayload []byte) (*Algorithms, *kexResult, []byte, error) {
	localInit := buildKexInit(cfg, party.hostKeys, party.hostKeyAlgorithms, cfg.Rand)
	localPacket := encodeMessage(msgKexInit, localInit)
	if err := t.sendRaw(localPacket); err != nil {
		return nil, nil, nil, err
	}

	peerPayload := peerInitPayload
	var err error
	if peerPayload == nil {
		peerPayload, err = t.recvRaw()
		if err != nil {
			return nil, nil, nil, err
		}
	}
	if len(peerPayload) == 0 || peerPayload[0] != msgKexInit {
		return nil, nil, nil, unexpectedMessageError(msgKexInit, peerPayload[0])
	}
	peerInit := new(kexInitMsg)
	if err := Unmarshal(peerPayload[1:], peerInit); err != nil {
		return nil, nil, nil, err
	}

	magics := &kexMagics{
		ClientVersion: clientVersion,
		ServerVersion: serverVersion,
	}

	var clientInit, serverInit *kexInitMsg
	if party.isServer() {
		clientInit, serverInit = peerInit, localInit
		magics.ClientKexInit, magics.ServerKexInit = peerPayload, localPacket
	} else {
		clientInit, serverInit = localInit, peerInit
		magics.ClientKexInit, magics.ServerKexInit = localPacket, peerPayload
	}

	algs, err := findAgreedAlgorithms(clientInit, serverInit)
	if err != nil {
		return nil, nil, nil, err
	}

	// spec.md §4.3: a guessed packet is discarded when the guess could not
	// have been right (the two sides' first KEX algorithm names differ).
	if peerInit.FirstKexFollows && !guessedKexMatches(clientInit, serverInit) {
		if _, err := t.recvRaw(); err != nil {
			return nil, nil, nil, err
		}
	}

	kex, ok := kexAlgorithms[algs.Kex]
	if !ok {
		return nil, nil, nil, newError(ErrNoCommonKex, fmt.Errorf("ssh: unregistered key exchange algorithm %q", algs.Kex))
	}

	log.WithFields(log.Fields{"kex": algs.Kex, "host_key": algs.HostKey, "cipher_c2s": algs.W.Cipher, "cipher_s2c": algs.R.Cipher}).Debug("ssh: negotiated algorithms")

	var result *kexResult
	if party.isServer() {
		var hostKey Signer
		for _, k := range party.hostKeys {
			if k.PublicKey().Type() == algs.HostKey {
				hostKey = k
				break
			}
		}
		if hostKey == nil {
			return nil, nil, nil, newError(ErrNoCommonHostKey, fmt.Errorf("ssh: no host key for algorithm %q", algs.HostKey))
		}
		result, err = kex.Server(t, cfg.Rand, magics, hostKey)
	} else {
		result, err = kex.Client(t, cfg.Rand, magics, algs.HostKey)
		if err == nil {
			var hostKey PublicKey
			hostKey, err = ParsePublicKey(result.HostKey)
			if err == nil {
				err = verifyHostKeySignature(hostKey, result)
			}
			if err == nil && party.hostKeyCallback != nil {
				err = party.hostKeyCallback(hostKey)
			}
		}
	}
	if err != nil {
		return nil, nil, nil, err
	}

	if sessionID == nil {
		sessionID = result.H
	}
	result.SessionID = sessionID

	if err := t.send(&newKeysMsg{}); err != nil {
		return nil, nil, nil, err
	}
	writeState, err := directionStateFromResult(algs.W, kex, result, sessionID, party.isServer(), true)
	if err != nil {
		return nil, nil, nil, err
	}
	t.rekeyWrite(writeState)

	peerPayload, err = t.recvRaw()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(peerPayload) == 0 || peerPayload[0] != msgNewKeys {
		return nil, nil, nil, unexpectedMessageError(msgNewKeys, peerPayload[0])
	}
	readState, err := directionStateFromResult(algs.R, kex, result, sessionID, party.isServer(), false)
	if err != nil {
		return nil, nil, nil, err
	}
	t.rekeyRead(readState)

	return algs, result, sessionID, nil
}

// directionStateFromResult builds the cipher/MAC state for one direction
// from the negotiated algorithms and the KEX shared secret, per spec.md
// §4.4's key derivation table. isServer and isWrite together pick which of
// the six derivation letters ('A'..'F') apply to this direction, since
// "client to server" is the write direction for a client and the read
// direction for a server.
func directionStateFromResult(dir DirectionAlgorithms, kex kexAlgorithm, result *kexResult, sessionID []byte, isServer, isWrite bool) (*directionState, error) {
	clientToServer := (isWrite && !isServer) || (!isWrite && isServer)

	var ivLetter, keyLetter, macLetter byte
	if clientToServer {
		ivLetter, keyLetter, macLetter = 'A', 'C', 'E'
	} else {
		ivLetter, keyLetter, macLetter = 'B', 'D', 'F'
	}

	cm, ok := cipherModes[dir.Cipher]
	if !ok {
		return nil, newError(ErrNoCommonCipher, fmt.Errorf("ssh: unregistered cipher %q", dir.Cipher))
	}
	newHash := newHashForKex(result.Hash)
	kMpint := appendMpint(nil, result.K)

	iv := deriveKeys(newHash, kMpint, result.H, sessionID, ivLetter, cm.ivSize)
	key := deriveKeys(newHash, kMpint, result.H, sessionID, keyLetter, cm.keySize)

	cipher, err := cm.create(key, iv)
	if err != nil {
		return nil, err
	}

	mm, ok := macModes[dir.MAC]
	if !ok {
		return nil, newError(ErrNoCommonMAC, fmt.Errorf("ssh: unregistered MAC %q", dir.MAC))
	}
	var macKey hash.Hash
	if mm.size > 0 {
		macKeyBytes := deriveKeys(newHash, kMpint, result.H, sessionID, macLetter, mm.size)
		macKey = mm.create(macKeyBytes)
	}

	comp, err := newCompressor(dir.Compression)
	if err != nil {
		return nil, err
	}

	return newDirectionState(cipher, mm, macKey, comp), nil
}

// newHashForKex recovers a hash constructor from the crypto.Hash identity
// stashed in a kexResult; the concrete algorithm packages (crypto/sha1,
// crypto/sha256, crypto/sha512) are imported by kex_dh.go/kex_ecdh.go, so
// h.New is always available here.
func newHashForKex(h crypto.Hash) func() hash.Hash {
	return h.New
}
