// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"math/big"
)

// Host-key algorithm names, spec.md §6.
const (
	KeyAlgoED25519     = "ssh-ed25519"
	KeyAlgoECDSA256    = "ecdsa-sha2-nistp256"
	KeyAlgoECDSA384    = "ecdsa-sha2-nistp384"
	KeyAlgoRSASHA512   = "rsa-sha2-512"
	KeyAlgoRSASHA256   = "rsa-sha2-256"
	KeyAlgoRSA         = "ssh-rsa"
	KeyAlgoDSA         = "ssh-dss"
)

// PublicKey is the narrow host-key verification interface spec.md §6
// requires of the "Host-key provider" collaborator: enough to negotiate
// an algorithm name and to check a signature over the KEX exchange hash.
// Concrete key material and certificate parsing are out of scope (§1);
// callers adapt their own key types to this interface, or use one of the
// stdlib-backed adapters below.
type PublicKey interface {
	// Type returns the algorithm name as it appears in name-lists
	// (one of the KeyAlgoXxx constants, or a certificate variant).
	Type() string
	// Marshal returns the wire "public key blob" format (RFC 4253 §6.6),
	// used as K_S in the exchange hash.
	Marshal() []byte
	// Verify checks sig against data under this key.
	Verify(data []byte, sig []byte) error
}

// Signer is the host-key provider's signing half (spec.md §6): enumerate
// private keys, sign(data) -> signature.
type Signer interface {
	PublicKey() PublicKey
	Sign(rand randReader, data []byte) ([]byte, error)
}

// hashFuncs maps a host-key algorithm name to the hash used when signing
// the exchange hash, mirroring common.go's hashFuncs table.
var hashFuncs = map[string]crypto.Hash{
	KeyAlgoRSA:       crypto.SHA1,
	KeyAlgoRSASHA256: crypto.SHA256,
	KeyAlgoRSASHA512: crypto.SHA512,
	KeyAlgoECDSA256:  crypto.SHA256,
	KeyAlgoECDSA384:  crypto.SHA384,
	KeyAlgoDSA:       crypto.SHA1,
}

// ed25519PublicKey and ed25519Signer adapt crypto/ed25519 (the primitive
// referenced by "ssh-ed25519"; spec.md §1 scopes out how the primitive
// itself computes) to PublicKey/Signer.
type ed25519PublicKey struct{ key ed25519.PublicKey }

func (k ed25519PublicKey) Type() string   { return KeyAlgoED25519 }
func (k ed25519PublicKey) Marshal() []byte {
	out := appendString(nil, KeyAlgoED25519)
	return appendBytes(out, k.key)
}
func (k ed25519PublicKey) Verify(data, sig []byte) error {
	if !ed25519.Verify(k.key, data, sig) {
		return newError(ErrHostKeySignature, nil)
	}
	return nil
}

type ed25519Signer struct{ key ed25519.PrivateKey }

// NewEd25519Signer adapts a standard library ed25519 private key to
// Signer, for use as a host key or to verify against in tests.
func NewEd25519Signer(key ed25519.PrivateKey) Signer { return ed25519Signer{key} }

func (s ed25519Signer) PublicKey() PublicKey {
	return ed25519PublicKey{s.key.Public().(ed25519.PublicKey)}
}
func (s ed25519Signer) Sign(rand randReader, data []byte) ([]byte, error) {
	return ed25519.Sign(s.key, data), nil
}

// rsaPublicKey/rsaSigner adapt crypto/rsa for "ssh-rsa"/"rsa-sha2-256"/
// "rsa-sha2-512". algo selects which of the three signature variants this
// adapter presents, since the SSH public key blob format for RSA is the
// same across all three but the signature hash differs.
type rsaPublicKey struct {
	key  *rsa.PublicKey
	algo string
}

func (k rsaPublicKey) Type() string { return k.algo }
func (k rsaPublicKey) Marshal() []byte {
	out := appendString(nil, KeyAlgoRSA)
	out = appendMpint(out, big.NewInt(int64(k.key.E)))
	return appendMpint(out, k.key.N)
}
func (k rsaPublicKey) Verify(data, sig []byte) error {
	h, ok := hashFuncs[k.algo]
	if !ok {
		return newError(ErrHostKeySignature, errors.New("unsupported rsa signature algorithm"))
	}
	hashed := hashWith(h, data)
	if err := rsa.VerifyPKCS1v15(k.key, h, hashed, sig); err != nil {
		return newError(ErrHostKeySignature, err)
	}
	return nil
}

type rsaSigner struct {
	key  *rsa.PrivateKey
	algo string
}

// NewRSASigner adapts a standard library RSA private key to Signer. algo
// must be one of KeyAlgoRSA, KeyAlgoRSASHA256, or KeyAlgoRSASHA512.
func NewRSASigner(key *rsa.PrivateKey, algo string) Signer {
	return rsaSigner{key, algo}
}

func (s rsaSigner) PublicKey() PublicKey { return rsaPublicKey{&s.key.PublicKey, s.algo} }
func (s rsaSigner) Sign(rand randReader, data []byte) ([]byte, error) {
	h := hashFuncs[s.algo]
	hashed := hashWith(h, data)
	return rsa.SignPKCS1v15(rand, s.key, h, hashed)
}

// ecdsaPublicKey/ecdsaSigner adapt crypto/ecdsa for "ecdsa-sha2-nistp256"
// and "ecdsa-sha2-nistp384".
type ecdsaPublicKey struct {
	key  *ecdsa.PublicKey
	algo string
}

func (k ecdsaPublicKey) Type() string { return k.algo }
func (k ecdsaPublicKey) Marshal() []byte {
	out := appendString(nil, k.algo)
	out = appendString(out, curveName(k.key.Curve))
	return appendBytes(out, elliptic.Marshal(k.key.Curve, k.key.X, k.key.Y))
}
func (k ecdsaPublicKey) Verify(data, sig []byte) error {
	var parsed struct{ R, S *big.Int }
	if err := Unmarshal(sig, &parsed); err != nil {
		return newError(ErrHostKeySignature, err)
	}
	h := hashFuncs[k.algo]
	hashed := hashWith(h, data)
	if !ecdsa.Verify(k.key, hashed, parsed.R, parsed.S) {
		return newError(ErrHostKeySignature, nil)
	}
	return nil
}

type ecdsaSigner struct {
	key  *ecdsa.PrivateKey
	algo string
}

// NewECDSASigner adapts a standard library ECDSA private key (P-256 or
// P-384) to Signer.
func NewECDSASigner(key *ecdsa.PrivateKey) (Signer, error) {
	algo, err := ecdsaAlgoForCurve(key.Curve)
	if err != nil {
		return nil, err
	}
	return ecdsaSigner{key, algo}, nil
}

func (s ecdsaSigner) PublicKey() PublicKey { return ecdsaPublicKey{&s.key.PublicKey, s.algo} }
func (s ecdsaSigner) Sign(rand randReader, data []byte) ([]byte, error) {
	h := hashFuncs[s.algo]
	hashed := hashWith(h, data)
	r, sVal, err := ecdsa.Sign(rand, s.key, hashed)
	if err != nil {
		return nil, err
	}
	return Marshal(struct{ R, S *big.Int }{r, sVal}), nil
}

func ecdsaAlgoForCurve(curve elliptic.Curve) (string, error) {
	switch curve.Params().Name {
	case "P-256":
		return KeyAlgoECDSA256, nil
	case "P-384":
		return KeyAlgoECDSA384, nil
	default:
		return "", newError(ErrNoCommonHostKey, errors.New("unsupported ECDSA curve"))
	}
}

func curveName(curve elliptic.Curve) string {
	switch curve.Params().Name {
	case "P-256":
		return "nistp256"
	case "P-384":
		return "nistp384"
	default:
		return curve.Params().Name
	}
}

// dsaPublicKey/dsaSigner adapt crypto/dsa for "ssh-dss" (RFC 4253 §6.6).
// Unlike the other algorithms here, the signature blob is not itself a
// further-nested wire encoding: it is the raw concatenation of r and s,
// each a fixed 20-byte unsigned big-endian integer, zero-padded.
type dsaPublicKey struct {
	key *dsa.PublicKey
}

func (k dsaPublicKey) Type() string { return KeyAlgoDSA }
func (k dsaPublicKey) Marshal() []byte {
	out := appendString(nil, KeyAlgoDSA)
	out = appendMpint(out, k.key.P)
	out = appendMpint(out, k.key.Q)
	out = appendMpint(out, k.key.G)
	return appendMpint(out, k.key.Y)
}
func (k dsaPublicKey) Verify(data, sig []byte) error {
	if len(sig) != 40 {
		return newError(ErrHostKeySignature, errors.New("ssh: invalid dsa signature length"))
	}
	r := new(big.Int).SetBytes(sig[:20])
	s := new(big.Int).SetBytes(sig[20:])
	hashed := hashWith(crypto.SHA1, data)
	if !dsa.Verify(k.key, hashed, r, s) {
		return newError(ErrHostKeySignature, nil)
	}
	return nil
}

type dsaSigner struct {
	key *dsa.PrivateKey
}

// NewDSASigner adapts a standard library DSA private key to Signer.
func NewDSASigner(key *dsa.PrivateKey) Signer { return dsaSigner{key} }

func (s dsaSigner) PublicKey() PublicKey { return dsaPublicKey{&s.key.PublicKey} }
func (s dsaSigner) Sign(rand randReader, data []byte) ([]byte, error) {
	hashed := hashWith(crypto.SHA1, data)
	r, sVal, err := dsa.Sign(rand, s.key, hashed)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 40)
	r.FillBytes(sig[:20])
	sVal.FillBytes(sig[20:])
	return sig, nil
}

// wrapSignature and parseSignatureBody encode/decode the wire "signature"
// format (RFC 4253 §6.6): string algorithm-name, string signature-blob.
// Signer.Sign returns only the raw signature-blob; this wrapping is what
// actually rides in a kexDHReplyMsg/kexECDHReplyMsg.Signature field.
func wrapSignature(algo string, sig []byte) []byte {
	out := appendString(nil, algo)
	return appendBytes(out, sig)
}

func parseSignatureBody(in []byte) (sig []byte, rest []byte, ok bool) {
	_, in, ok = parseString(in)
	if !ok {
		return nil, nil, false
	}
	return parseString(in)
}

// ParsePublicKey parses a wire "public key blob" (RFC 4253 §6.6) into one
// of the stdlib-backed PublicKey adapters above, by dispatching on its
// leading algorithm-name string.
func ParsePublicKey(in []byte) (PublicKey, error) {
	algo, rest, ok := parseString(in)
	if !ok {
		return nil, newError(ErrHostKeySignature, errors.New("ssh: short public key blob"))
	}
	switch string(algo) {
	case KeyAlgoED25519:
		keyBytes, _, ok := parseString(rest)
		if !ok || len(keyBytes) != ed25519.PublicKeySize {
			return nil, newError(ErrHostKeySignature, errors.New("ssh: invalid ed25519 public key"))
		}
		return ed25519PublicKey{ed25519.PublicKey(append([]byte(nil), keyBytes...))}, nil

	case KeyAlgoRSA, KeyAlgoRSASHA256, KeyAlgoRSASHA512:
		e, rest, ok := parseMpint(rest)
		if !ok {
			return nil, newError(ErrHostKeySignature, errors.New("ssh: invalid rsa public key"))
		}
		n, _, ok := parseMpint(rest)
		if !ok {
			return nil, newError(ErrHostKeySignature, errors.New("ssh: invalid rsa public key"))
		}
		return rsaPublicKey{&rsa.PublicKey{E: int(e.Int64()), N: n}, string(algo)}, nil

	case KeyAlgoECDSA256, KeyAlgoECDSA384:
		_, rest, ok := parseString(rest) // curve name, redundant with algo
		if !ok {
			return nil, newError(ErrHostKeySignature, errors.New("ssh: invalid ecdsa public key"))
		}
		point, _, ok := parseString(rest)
		if !ok {
			return nil, newError(ErrHostKeySignature, errors.New("ssh: invalid ecdsa public key"))
		}
		curve := elliptic.P256()
		if string(algo) == KeyAlgoECDSA384 {
			curve = elliptic.P384()
		}
		x, y := elliptic.Unmarshal(curve, point)
		if x == nil {
			return nil, newError(ErrHostKeySignature, errors.New("ssh: invalid ecdsa point"))
		}
		return ecdsaPublicKey{&ecdsa.PublicKey{Curve: curve, X: x, Y: y}, string(algo)}, nil

	case KeyAlgoDSA:
		p, rest, ok := parseMpint(rest)
		if !ok {
			return nil, newError(ErrHostKeySignature, errors.New("ssh: invalid dsa public key"))
		}
		q, rest, ok := parseMpint(rest)
		if !ok {
			return nil, newError(ErrHostKeySignature, errors.New("ssh: invalid dsa public key"))
		}
		g, rest, ok := parseMpint(rest)
		if !ok {
			return nil, newError(ErrHostKeySignature, errors.New("ssh: invalid dsa public key"))
		}
		y, _, ok := parseMpint(rest)
		if !ok {
			return nil, newError(ErrHostKeySignature, errors.New("ssh: invalid dsa public key"))
		}
		return dsaPublicKey{&dsa.PublicKey{Parameters: dsa.Parameters{P: p, Q: q, G: g}, Y: y}}, nil

	default:
		return nil, newError(ErrNoCommonHostKey, fmt.Errorf("ssh: unsupported host key algorithm %q", algo))
	}
}

func hashWith(h crypto.Hash, data []byte) []byte {
	switch h {
	case crypto.SHA1:
		sum := sha1.Sum(data)
		return sum[:]
	case crypto.SHA256:
		sum := sha256.Sum256(data)
		return sum[:]
	case crypto.SHA384:
		sum := sha512.Sum384(data)
		return sum[:]
	case crypto.SHA512:
		sum := sha512.Sum512(data)
		return sum[:]
	default:
		return data
	}
}
