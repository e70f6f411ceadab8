// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
)

// packetCipher encrypts and decrypts full on-wire records for one
// direction of the transport. For non-ETM modes that is the whole
// serialized packet (length+padding+payload); for ETM modes encryption
// excludes the leading packet_length field, which travels in clear (see
// packet.go).
type packetCipher interface {
	// encrypt encrypts src into dst (which may alias src); dst must be
	// len(src) bytes.
	encrypt(dst, src []byte)
	decrypt(dst, src []byte)
	blockSize() int
}

// cipherMode describes one negotiable cipher algorithm: its key/IV sizes
// and a constructor for each direction. Registered by name so negotiation
// (findAgreedAlgorithms, kex.go) only ever deals in strings, the same shape as common.go's
// cipherModes table.
type cipherMode struct {
	keySize   int
	ivSize    int
	blockSize int
	etm       bool
	create    func(key, iv []byte) (packetCipher, error)
}

// defaultCiphers is the default cipher preference order, spec.md §6.
var defaultCiphers = []string{
	"aes128-ctr", "aes192-ctr", "aes256-ctr",
	"aes128-cbc", "aes192-cbc", "aes256-cbc",
	"3des-cbc",
}

var cipherModes = map[string]*cipherMode{
	"aes128-ctr": {16, aes.BlockSize, aes.BlockSize, false, newCTRCipher},
	"aes192-ctr": {24, aes.BlockSize, aes.BlockSize, false, newCTRCipher},
	"aes256-ctr": {32, aes.BlockSize, aes.BlockSize, false, newCTRCipher},

	"aes128-cbc": {16, aes.BlockSize, aes.BlockSize, false, newCBCCipher(16)},
	"aes192-cbc": {24, aes.BlockSize, aes.BlockSize, false, newCBCCipher(24)},
	"aes256-cbc": {32, aes.BlockSize, aes.BlockSize, false, newCBCCipher(32)},

	"3des-cbc": {24, des.BlockSize, des.BlockSize, false, newTripleDESCBCCipher},

	"none": {0, 0, 8, false, newNoneCipher},
}

func newCTRCipher(key, iv []byte) (packetCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &ctrCipher{ctr: cipher.NewCTR(block, iv), blockSz: block.BlockSize()}, nil
}

type ctrCipher struct {
	ctr     cipher.Stream
	blockSz int
}

func (c *ctrCipher) encrypt(dst, src []byte) { c.ctr.XORKeyStream(dst, src) }
func (c *ctrCipher) decrypt(dst, src []byte) { c.ctr.XORKeyStream(dst, src) }
func (c *ctrCipher) blockSize() int          { return c.blockSz }

// newCBCCipher returns a constructor for AES-CBC with the given key size;
// the encrypt and decrypt streams are kept separate because CBC is not
// symmetric between the two directions (the decrypt side needs the
// previous ciphertext block, not the previous plaintext block).
func newCBCCipher(keySize int) func(key, iv []byte) (packetCipher, error) {
	return func(key, iv []byte) (packetCipher, error) {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return newCBCCipherState(block, iv), nil
	}
}

func newTripleDESCBCCipher(key, iv []byte) (packetCipher, error) {
	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, err
	}
	return newCBCCipherState(block, iv), nil
}

type cbcCipher struct {
	block   cipher.Block
	encIV   []byte
	decIV   []byte
	blockSz int
}

func newCBCCipherState(block cipher.Block, iv []byte) *cbcCipher {
	return &cbcCipher{block: block, encIV: append([]byte(nil), iv...), decIV: append([]byte(nil), iv...), blockSz: block.BlockSize()}
}

func (c *cbcCipher) encrypt(dst, src []byte) {
	cipher.NewCBCEncrypter(c.block, c.encIV).CryptBlocks(dst, src)
	if len(src) >= c.blockSz {
		copy(c.encIV, dst[len(dst)-c.blockSz:])
	}
}

func (c *cbcCipher) decrypt(dst, src []byte) {
	if len(src) >= c.blockSz {
		next := append([]byte(nil), src[len(src)-c.blockSz:]...)
		cipher.NewCBCDecrypter(c.block, c.decIV).CryptBlocks(dst, src)
		c.decIV = next
	}
}

func (c *cbcCipher) blockSize() int { return c.blockSz }

// noneCipher implements cipher "none": no confidentiality, used only for
// negotiation-matrix completeness and local testing.
type noneCipher struct{}

func newNoneCipher(key, iv []byte) (packetCipher, error) { return noneCipher{}, nil }
func (noneCipher) encrypt(dst, src []byte)                { copy(dst, src) }
func (noneCipher) decrypt(dst, src []byte)                { copy(dst, src) }
func (noneCipher) blockSize() int { return 8 }
