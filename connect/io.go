// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package connect

import (
	"bytes"
	"io"
	"sync"
)

// window tracks the flow-control budget available to a writer wishing to
// send channel data, adapted from github.com/zmap/zssh's teacher
// lineage (its common.go window type): a sync.Cond-guarded counter that
// blocks reserve() until WINDOW_ADJUST (add) makes room, or the channel
// closes.
type window struct {
	*sync.Cond
	win          uint32
	writeWaiters int
	closed       bool
}

func newWindow(initial uint32) *window {
	return &window{Cond: sync.NewCond(new(sync.Mutex)), win: initial}
}

// add applies a CHANNEL_WINDOW_ADJUST, saturating at 2^32-1 (spec.md
// §4.7); an add that would overflow returns false, a protocol error to
// the caller.
func (w *window) add(win uint32) bool {
	if win == 0 {
		return true
	}
	w.L.Lock()
	defer w.L.Unlock()
	if w.win+win < win {
		return false
	}
	w.win += win
	w.Broadcast()
	return true
}

func (w *window) close() {
	w.L.Lock()
	w.closed = true
	w.Broadcast()
	w.L.Unlock()
}

// reserve blocks until window capacity is available, returning up to win
// bytes (possibly less) or io.EOF once the channel has closed.
func (w *window) reserve(win uint32) (uint32, error) {
	w.L.Lock()
	defer w.L.Unlock()
	w.writeWaiters++
	w.Broadcast()
	for w.win == 0 && !w.closed {
		w.Wait()
	}
	w.writeWaiters--
	if w.win < win {
		win = w.win
	}
	w.win -= win
	if w.closed {
		return win, io.EOF
	}
	return win, nil
}

// dataPipe is an unbounded byte queue feeding one Channel.Reader or
// Channel.ReaderExt: conn.go's dispatch loop writes inbound CHANNEL_DATA/
// EXTENDED_DATA into it, and onDrain (when set) is invoked with however
// many bytes a Read call consumed, so the channel can track the
// half-window restore threshold (spec.md §4.7).
type dataPipe struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     bytes.Buffer
	eof     bool
	closed  bool
	onDrain func(n int)
}

func newDataPipe(onDrain func(n int)) *dataPipe {
	p := &dataPipe{onDrain: onDrain}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *dataPipe) write(b []byte) {
	p.mu.Lock()
	p.buf.Write(b)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// setEOF marks CHANNEL_EOF received: buffered data still drains normally,
// io.EOF is returned only once it runs dry (spec.md §4.7).
func (p *dataPipe) setEOF() {
	p.mu.Lock()
	p.eof = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *dataPipe) setClosed() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *dataPipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	for p.buf.Len() == 0 && !p.eof && !p.closed {
		p.cond.Wait()
	}
	if p.buf.Len() > 0 {
		n, _ := p.buf.Read(b)
		p.mu.Unlock()
		if p.onDrain != nil {
			p.onDrain(n)
		}
		return n, nil
	}
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	return 0, io.EOF
}
