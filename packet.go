// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/subtle"
	"encoding/binary"
	"hash"
	"io"
)

// defaultMaxPayload is the default cap on decoded payload size (spec.md
// §4.1: "packet_length MUST be ≤ 35000 bytes in practice ... default
// 32 KiB payload").
const defaultMaxPayload = 32 * 1024

const maxPacketLength = 1<<35 - 1

// directionState is one half of a transportPair (spec.md §3): the
// cipher/MAC/compression state and sequence number for a single
// direction (rx or tx) of the transport.
type directionState struct {
	cipher packetCipher
	mac    *macMode
	macKey hash.Hash
	comp   compressor
	seq    uint32

	bytesSinceRekey   uint64
	packetsSinceRekey uint64
}

func newDirectionState(c packetCipher, mm *macMode, macKey hash.Hash, comp compressor) *directionState {
	return &directionState{cipher: c, mac: mm, macKey: macKey, comp: comp}
}

func (d *directionState) blockSize() int {
	bs := d.cipher.blockSize()
	if bs < 8 {
		bs = 8
	}
	return bs
}

// encode implements spec.md §4.1's "Encode order": compress, pad to a
// block-size-aligned frame, then either MAC-then-encrypt or (for ETM
// modes) encrypt-then-MAC, and bump the sequence number.
func (d *directionState) encode(payload []byte, rand randReader) ([]byte, error) {
	compressed, err := d.comp.compress(payload)
	if err != nil {
		return nil, newError(ErrDecompress, err)
	}

	blockSize := d.blockSize()
	length := len(compressed) + 1
	// Non-ETM frames align the whole packet, length field included; ETM
	// frames send the length in clear and align only what follows it.
	aligned := length
	if d.mac == nil || !d.mac.etm {
		aligned += 4
	}
	paddingLength := blockSize - (aligned % blockSize)
	if paddingLength < 4 {
		paddingLength += blockSize
	}
	packetLength := length + paddingLength

	packet := make([]byte, 4+packetLength)
	binary.BigEndian.PutUint32(packet, uint32(packetLength))
	packet[4] = byte(paddingLength)
	copy(packet[5:], compressed)
	readRandom(rand, packet[5+len(compressed):])

	var mac []byte
	var frame []byte

	if d.mac != nil && d.mac.etm {
		ciphertext := make([]byte, len(packet))
		copy(ciphertext[:4], packet[:4])
		d.cipher.encrypt(ciphertext[4:], packet[4:])
		if d.macKey != nil {
			mac = macFor(d.macKey, d.seq, ciphertext)
		}
		frame = append(ciphertext, mac...)
	} else {
		if d.macKey != nil {
			mac = macFor(d.macKey, d.seq, packet)
		}
		ciphertext := make([]byte, len(packet))
		d.cipher.encrypt(ciphertext, packet)
		frame = append(ciphertext, mac...)
	}

	d.seq++
	d.bytesSinceRekey += uint64(len(frame))
	d.packetsSinceRekey++
	return frame, nil
}

// decode implements spec.md §4.1's "Decode order", reading directly from r
// since the packet_length is not known until the first cipher block (or,
// for ETM, the clear length prefix) has been consumed.
func (d *directionState) decode(r io.Reader, maxPayload uint32) ([]byte, error) {
	macSize := 0
	if d.mac != nil {
		macSize = d.mac.size
	}

	if d.mac != nil && d.mac.etm {
		var lengthBuf [4]byte
		if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
			return nil, newError(ErrShortRead, err)
		}
		packetLength := binary.BigEndian.Uint32(lengthBuf[:])
		if err := checkPacketLength(packetLength, maxPayload); err != nil {
			return nil, err
		}

		rest := make([]byte, packetLength+uint32(macSize))
		if _, err := io.ReadFull(r, rest); err != nil {
			return nil, newError(ErrShortRead, err)
		}
		ciphertext, macBytes := rest[:packetLength], rest[packetLength:]

		if d.macKey != nil {
			want := macFor(d.macKey, d.seq, append(append([]byte(nil), lengthBuf[:]...), ciphertext...))
			if subtle.ConstantTimeCompare(want, macBytes) != 1 {
				return nil, newError(ErrBadMAC, nil)
			}
		}

		plain := make([]byte, len(ciphertext))
		d.cipher.decrypt(plain, ciphertext)
		return d.finishDecode(plain, maxPayload)
	}

	blockSize := d.blockSize()
	firstBlock := make([]byte, blockSize)
	if _, err := io.ReadFull(r, firstBlock); err != nil {
		return nil, newError(ErrShortRead, err)
	}
	plainFirst := make([]byte, blockSize)
	d.cipher.decrypt(plainFirst, firstBlock)
	packetLength := binary.BigEndian.Uint32(plainFirst[:4])
	if err := checkPacketLength(packetLength, maxPayload); err != nil {
		return nil, err
	}

	remaining := int(packetLength) + 4 - blockSize + macSize
	if remaining < macSize {
		return nil, newError(ErrInvalidLength, nil)
	}
	rest := make([]byte, remaining)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, newError(ErrShortRead, err)
	}
	cipherRest, macBytes := rest[:len(rest)-macSize], rest[len(rest)-macSize:]

	plainRest := make([]byte, len(cipherRest))
	d.cipher.decrypt(plainRest, cipherRest)

	plain := append(plainFirst, plainRest...)
	plain = plain[:4+packetLength]

	if d.macKey != nil {
		want := macFor(d.macKey, d.seq, plain)
		if subtle.ConstantTimeCompare(want, macBytes) != 1 {
			return nil, newError(ErrBadMAC, nil)
		}
	}

	return d.finishDecode(plain[4:], maxPayload)
}

// finishDecode strips padding and decompresses. Both call sites normalize
// plain to paddingLength+payload+padding (the length field stripped)
// before calling in.
func (d *directionState) finishDecode(plain []byte, maxPayload uint32) ([]byte, error) {
	if len(plain) < 1 {
		return nil, newError(ErrInvalidLength, nil)
	}
	paddingLength := int(plain[0])
	if paddingLength < 4 || len(plain)-1-paddingLength < 0 {
		return nil, newError(ErrInvalidLength, nil)
	}
	payload := plain[1 : len(plain)-paddingLength]

	out, err := d.comp.decompress(payload)
	if err != nil {
		return nil, err
	}
	if uint32(len(out)) > maxPayload {
		return nil, newError(ErrInvalidLength, nil)
	}

	d.seq++
	d.bytesSinceRekey += uint64(len(plain))
	d.packetsSinceRekey++
	return out, nil
}

func checkPacketLength(packetLength, maxPayload uint32) error {
	if packetLength < 5 {
		return newError(ErrInvalidLength, nil)
	}
	if uint64(packetLength) > maxPacketLength {
		return newError(ErrInvalidLength, nil)
	}
	// Generous upper bound: padding_length(1) + payload(maxPayload) +
	// padding(255) must fit; rejects absurd lengths before allocating.
	if packetLength > maxPayload+256 {
		return newError(ErrInvalidLength, nil)
	}
	return nil
}
