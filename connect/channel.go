// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package connect

import (
	"io"
	"sync"

	zssh "github.com/zmap/zssh"
)

// Response is a channel request's outcome (spec.md §4.8's
// request(ctx) -> {Success | Failure}), grounded on original_source's
// assh-connect channel::Response enum.
type Response bool

const (
	Success Response = true
	Failure Response = false
)

// RequestContext is one incoming or outgoing CHANNEL_REQUEST (RFC 4254
// §5.4): Type names the request ("exec", "shell", "pty-req", ...); Data
// is its type-specific payload, left for the caller to decode.
type RequestContext struct {
	Type      string
	WantReply bool
	Data      []byte
}

// Channel is one multiplexed bidirectional stream over a Conn (spec.md
// §3/§4.8). Its lifetime ends once both sides have exchanged
// CHANNEL_CLOSE; dropping a Channel (Close) queues the local close if it
// hasn't already been sent.
type Channel struct {
	conn     *Conn
	localID  uint32
	remoteID uint32

	maxPacket  uint32
	initWindow uint32

	winMu      sync.Mutex
	winDrained uint32

	remoteWin *window

	data    *dataPipe
	extData sync.Map // uint32 data-type-code -> *dataPipe

	reqCh   chan RequestContext
	replyCh chan Response

	closeMu   sync.Mutex
	closeOnce sync.Once
	closeSent bool
	closeRecv bool
	finalized bool
	closed    chan struct{}
}

func newChannel(conn *Conn, localID, remoteID, initWindow, maxPacket uint32) *Channel {
	c := &Channel{
		conn:       conn,
		localID:    localID,
		remoteID:   remoteID,
		maxPacket:  maxPacket,
		initWindow: initWindow,
		remoteWin:  newWindow(0),
		reqCh:      make(chan RequestContext, 16),
		replyCh:    make(chan Response, 1),
		closed:     make(chan struct{}),
	}
	c.data = newDataPipe(c.noteDrained)
	return c
}

// noteDrained implements the half-window restore rule (spec.md §4.7):
// once the consumer has drained at least half the initial window since
// the last adjust, the drained amount is sent back as WINDOW_ADJUST.
func (c *Channel) noteDrained(n int) {
	c.winMu.Lock()
	c.winDrained += uint32(n)
	var restore uint32
	if c.initWindow > 0 && c.winDrained >= c.initWindow/2 {
		restore = c.winDrained
		c.winDrained = 0
	}
	c.winMu.Unlock()
	if restore > 0 {
		c.conn.sendWindowAdjust(c.remoteID, restore)
	}
}

// Reader returns the channel's normal-data stream.
//
// Concurrency caveat: more than one active reader on the same stream
// type yields an undefined partition of the byte sequence (spec.md
// §4.8); the design permits, but does not coordinate, multiple readers.
func (c *Channel) Reader() io.Reader { return c.data }

// ReaderExt returns the channel's extended-data stream for dataType
// (e.g. SSH_EXTENDED_DATA_STDERR = 1), lazily created on first use. Data
// arriving for a type code with no reader created yet is silently
// dropped, not buffered (spec.md §9's open-question decision).
func (c *Channel) ReaderExt(dataType uint32) io.Reader {
	return c.extPipe(dataType)
}

func (c *Channel) extPipe(dataType uint32) *dataPipe {
	v, _ := c.extData.LoadOrStore(dataType, newDataPipe(c.noteDrained))
	return v.(*dataPipe)
}

// Writer returns a writer for the channel's normal-data stream. Each
// Write is fragmented to chunks no larger than the peer's advertised max
// packet size and is emitted subject to the peer's advertised window;
// when the window is exhausted, Write blocks until a WINDOW_ADJUST
// arrives or the channel closes.
func (c *Channel) Writer() io.Writer { return &chanWriter{c: c} }

// WriterExt returns a writer for the channel's extended-data stream of
// dataType.
func (c *Channel) WriterExt(dataType uint32) io.Writer {
	t := dataType
	return &chanWriter{c: c, extType: &t}
}

// Request sends a CHANNEL_REQUEST with want_reply=true and awaits the
// matching SUCCESS/FAILURE (spec.md §4.8). Interleaved data is never
// consumed by this path; it is delivered to the data reader as usual.
func (c *Channel) Request(ctx RequestContext) (Response, error) {
	ctx.WantReply = true
	if err := c.conn.sendChannelRequest(c.remoteID, ctx); err != nil {
		return Failure, err
	}
	select {
	case r := <-c.replyCh:
		return r, nil
	case <-c.closed:
		return Failure, zssh.Kind(zssh.ErrChannelClosed)
	}
}

// Notify sends a CHANNEL_REQUEST with want_reply=false: fire-and-forget.
func (c *Channel) Notify(ctx RequestContext) error {
	ctx.WantReply = false
	return c.conn.sendChannelRequest(c.remoteID, ctx)
}

// OnRequest awaits the next CHANNEL_REQUEST and invokes handler; if the
// request set want_reply, the matching reply is emitted automatically
// (spec.md §4.8).
func (c *Channel) OnRequest(handler func(RequestContext) Response) (Response, error) {
	select {
	case req := <-c.reqCh:
		resp := handler(req)
		if req.WantReply {
			if err := c.conn.sendChannelRequestReply(c.remoteID, resp); err != nil {
				return resp, err
			}
		}
		return resp, nil
	case <-c.closed:
		return Failure, zssh.Kind(zssh.ErrChannelClosed)
	}
}

// Close emits CHANNEL_CLOSE if it hasn't already been sent; idempotent.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.closeChannel(c)
	})
	return err
}

// ID returns this side's local channel identifier.
func (c *Channel) ID() uint32 { return c.localID }

type chanWriter struct {
	c       *Channel
	extType *uint32
}

func (w *chanWriter) Write(p []byte) (n int, err error) {
	for len(p) > 0 {
		chunk := p
		if uint32(len(chunk)) > w.c.maxPacket {
			chunk = chunk[:w.c.maxPacket]
		}
		granted, rerr := w.c.remoteWin.reserve(uint32(len(chunk)))
		if granted > 0 {
			send := chunk[:granted]
			if w.extType == nil {
				err = w.c.conn.sendData(w.c.remoteID, send)
			} else {
				err = w.c.conn.sendExtendedData(w.c.remoteID, *w.extType, send)
			}
			if err != nil {
				return n, err
			}
			n += int(granted)
			p = p[granted:]
		}
		if rerr != nil {
			return n, rerr
		}
	}
	return n, nil
}
