// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package connect

import (
	"sync"

	log "github.com/sirupsen/logrus"

	zssh "github.com/zmap/zssh"
)

// MaximumPacketSize/InitialWindowSize/WindowAdjustThreshold mirror
// original_source's assh-connect constants of the same ratio
// (INITIAL_WINDOW_SIZE = 64 * MAXIMUM_PACKET_SIZE, threshold = half of
// that), used as this side's own defaults when opening or accepting a
// channel.
const (
	MaximumPacketSize     = 32768
	InitialWindowSize     = 64 * MaximumPacketSize
	WindowAdjustThreshold = InitialWindowSize / 2
)

// OpenRequest describes a peer-initiated CHANNEL_OPEN (spec.md §4.7).
// ChanType carries the raw RFC 4254 name; Context classifies it into the
// closed set this package recognizes, so an OpenHandler can dispatch on
// Context without re-parsing ChanType itself.
type OpenRequest struct {
	ChanType      string
	Context       ChannelOpenContext
	PeerID        uint32
	PeerWindow    uint32
	PeerMaxPacket uint32
	Data          []byte
}

// OpenDecision is an OpenHandler's verdict on an OpenRequest.
type OpenDecision struct {
	Accept      bool
	Window      uint32 // this side's advertised initial window, if Accept
	MaxPacket   uint32 // this side's advertised max packet size, if Accept
	Data        []byte // TypeSpecificData for CHANNEL_OPEN_CONFIRMATION
	Reason      OpenFailureReason
	Description string
}

// OpenHandler decides whether to accept a peer-initiated channel open
// (spec.md §4.7).
type OpenHandler func(OpenRequest) OpenDecision

// rejectAll is the default OpenHandler when none is supplied.
func rejectAll(OpenRequest) OpenDecision {
	return OpenDecision{Reason: OpenAdministrativelyProhibited}
}

type openResult struct {
	ch  *Channel
	err error
}

// Conn is the "ssh-connection" event loop: it exclusively owns the
// Session for its lifetime (spec.md §3's ownership rule), demultiplexing
// channel and global-request traffic until Run returns.
type Conn struct {
	sess        *zssh.Session
	openHandler OpenHandler

	mu       sync.Mutex
	channels map[uint32]*Channel
	pending  map[uint32]chan openResult
	nextID   uint32

	outgoing globalRequestQueue
	incoming chan globalRequestMsg

	done    chan struct{}
	errOnce sync.Once
	err     error
}

// NewConn constructs a Conn over an already-accepted session. openHandler
// may be nil, in which case every peer-initiated CHANNEL_OPEN is
// rejected with OpenAdministrativelyProhibited.
func NewConn(sess *zssh.Session, openHandler OpenHandler) *Conn {
	if openHandler == nil {
		openHandler = rejectAll
	}
	return &Conn{
		sess:        sess,
		openHandler: openHandler,
		channels:    make(map[uint32]*Channel),
		pending:     make(map[uint32]chan openResult),
		incoming:    make(chan globalRequestMsg, 16),
		done:        make(chan struct{}),
	}
}

func encode(tag byte, msg interface{}) []byte {
	return append([]byte{tag}, zssh.Marshal(msg)...)
}

// Run drains the session until disconnect or a fatal protocol error,
// dispatching every connection-layer message (spec.md §4.7). It returns
// the terminal error (nil only if the caller stops it some other way,
// which this design does not expose; disconnect is always an error).
func (c *Conn) Run() error {
	for {
		payload, err := c.sess.Recv()
		if err != nil {
			return c.fail(err)
		}
		if len(payload) == 0 {
			continue
		}
		if err := c.dispatch(payload[0], payload[1:]); err != nil {
			return c.fail(err)
		}
	}
}

func (c *Conn) fail(err error) error {
	c.errOnce.Do(func() {
		c.err = err
		c.mu.Lock()
		for _, ch := range c.channels {
			c.finalizeLocked(ch)
		}
		c.mu.Unlock()
		close(c.done)
	})
	return err
}

func (c *Conn) dispatch(tag byte, body []byte) error {
	switch tag {
	case msgGlobalRequest:
		msg := new(globalRequestMsg)
		if err := zssh.Unmarshal(body, msg); err != nil {
			return err
		}
		select {
		case c.incoming <- *msg:
		case <-c.done:
		}
		return nil

	case msgRequestSuccess:
		msg := new(requestSuccessMsg)
		if err := zssh.Unmarshal(body, msg); err != nil {
			return err
		}
		if !c.outgoing.deliver(globalReply{ok: true, data: msg.Data}) {
			return zssh.Kind(zssh.ErrProtocolViolation)
		}
		return nil

	case msgRequestFailure:
		if !c.outgoing.deliver(globalReply{ok: false}) {
			return zssh.Kind(zssh.ErrProtocolViolation)
		}
		return nil

	case msgChannelOpen:
		return c.handleOpen(body)
	case msgChannelOpenConfirmation:
		return c.handleOpenConfirm(body)
	case msgChannelOpenFailure:
		return c.handleOpenFailure(body)
	case msgChannelWindowAdjust:
		return c.handleWindowAdjust(body)
	case msgChannelData:
		return c.handleData(body)
	case msgChannelExtendedData:
		return c.handleExtendedData(body)
	case msgChannelEOF:
		return c.handleEOF(body)
	case msgChannelClose:
		return c.handleClose(body)
	case msgChannelRequest:
		return c.handleChannelRequest(body)
	case msgChannelSuccess:
		return c.handleChannelReply(body, Success)
	case msgChannelFailure:
		return c.handleChannelReply(body, Failure)
	default:
		// Unknown connection-layer tag: RFC 4254 §3.2 says to reply
		// SSH_MSG_UNIMPLEMENTED, but that lives at the transport/session
		// layer, not here; one unrecognized message does not tear down
		// the connection (spec.md §4.7).
		log.WithFields(log.Fields{"tag": tag}).Debug("connect: ignoring unrecognized message")
		return nil
	}
}

func (c *Conn) lookup(localID uint32) (*Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[localID]
	if !ok {
		if m := c.sess.Metrics(); m != nil {
			m.DroppedPackets.Inc()
		}
	}
	return ch, ok
}

func (c *Conn) handleOpen(body []byte) error {
	msg := new(channelOpenMsg)
	if err := zssh.Unmarshal(body, msg); err != nil {
		return err
	}
	decision := c.openHandler(OpenRequest{
		ChanType:      msg.ChanType,
		Context:       parseChannelOpenContext(msg.ChanType),
		PeerID:        msg.PeersID,
		PeerWindow:    msg.PeersWindow,
		PeerMaxPacket: msg.MaxPacketSize,
		Data:          msg.TypeSpecificData,
	})
	if !decision.Accept {
		return c.sess.SendRaw(encode(msgChannelOpenFailure, &channelOpenFailureMsg{
			PeersID: msg.PeersID,
			Reason:  uint32(decision.Reason),
			Message: decision.Description,
		}))
	}

	window, maxPacket := decision.Window, decision.MaxPacket
	if window == 0 {
		window = InitialWindowSize
	}
	if maxPacket == 0 {
		maxPacket = MaximumPacketSize
	}

	c.mu.Lock()
	localID := c.nextID
	c.nextID++
	ch := newChannel(c, localID, msg.PeersID, window, msg.MaxPacketSize)
	ch.remoteWin.add(msg.PeersWindow)
	c.channels[localID] = ch
	c.mu.Unlock()
	if m := c.sess.Metrics(); m != nil {
		m.ChannelsOpened.Inc()
		m.ActiveChannels.Inc()
	}

	return c.sess.SendRaw(encode(msgChannelOpenConfirmation, &channelOpenConfirmMsg{
		PeersID:          msg.PeersID,
		MyID:             localID,
		MyWindow:         window,
		MaxPacketSize:    maxPacket,
		TypeSpecificData: decision.Data,
	}))
}

// OpenChannel opens a new channel of chanType and blocks until the peer
// confirms or rejects it (spec.md §4.7/§4.8).
func (c *Conn) OpenChannel(chanType string, data []byte) (*Channel, error) {
	c.mu.Lock()
	localID := c.nextID
	c.nextID++
	ch := newChannel(c, localID, 0, InitialWindowSize, MaximumPacketSize)
	c.channels[localID] = ch
	result := make(chan openResult, 1)
	c.pending[localID] = result
	c.mu.Unlock()

	err := c.sess.SendRaw(encode(msgChannelOpen, &channelOpenMsg{
		ChanType:         chanType,
		PeersID:          localID,
		PeersWindow:      InitialWindowSize,
		MaxPacketSize:    MaximumPacketSize,
		TypeSpecificData: data,
	}))
	if err != nil {
		c.mu.Lock()
		delete(c.channels, localID)
		delete(c.pending, localID)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case r := <-result:
		return r.ch, r.err
	case <-c.done:
		return nil, c.err
	}
}

func (c *Conn) handleOpenConfirm(body []byte) error {
	msg := new(channelOpenConfirmMsg)
	if err := zssh.Unmarshal(body, msg); err != nil {
		return err
	}
	c.mu.Lock()
	result, ok := c.pending[msg.PeersID]
	if ok {
		delete(c.pending, msg.PeersID)
	}
	ch := c.channels[msg.PeersID]
	c.mu.Unlock()
	if !ok || ch == nil {
		log.WithFields(log.Fields{"id": msg.PeersID}).Debug("connect: open confirmation for unknown channel")
		return nil
	}
	ch.remoteID = msg.MyID
	ch.maxPacket = msg.MaxPacketSize
	ch.remoteWin.add(msg.MyWindow)
	if m := c.sess.Metrics(); m != nil {
		m.ChannelsOpened.Inc()
		m.ActiveChannels.Inc()
	}
	result <- openResult{ch: ch}
	return nil
}

func (c *Conn) handleOpenFailure(body []byte) error {
	msg := new(channelOpenFailureMsg)
	if err := zssh.Unmarshal(body, msg); err != nil {
		return err
	}
	c.mu.Lock()
	result, ok := c.pending[msg.PeersID]
	if ok {
		delete(c.pending, msg.PeersID)
		delete(c.channels, msg.PeersID)
	}
	c.mu.Unlock()
	if !ok {
		log.WithFields(log.Fields{"id": msg.PeersID}).Debug("connect: open failure for unknown channel")
		return nil
	}
	result <- openResult{err: &zssh.Error{Kind: zssh.ErrChannelOpenRejected, Description: msg.Message}}
	return nil
}

func (c *Conn) handleWindowAdjust(body []byte) error {
	msg := new(windowAdjustMsg)
	if err := zssh.Unmarshal(body, msg); err != nil {
		return err
	}
	ch, ok := c.lookup(msg.PeersID)
	if !ok {
		return nil
	}
	if !ch.remoteWin.add(msg.AdditionalBytes) {
		return zssh.Kind(zssh.ErrWindowOverflow)
	}
	return nil
}

func (c *Conn) handleData(body []byte) error {
	msg := new(channelDataMsg)
	if err := zssh.Unmarshal(body, msg); err != nil {
		return err
	}
	ch, ok := c.lookup(msg.PeersID)
	if !ok {
		return nil
	}
	ch.data.write(msg.Data)
	return nil
}

func (c *Conn) handleExtendedData(body []byte) error {
	msg := new(channelExtendedDataMsg)
	if err := zssh.Unmarshal(body, msg); err != nil {
		return err
	}
	ch, ok := c.lookup(msg.PeersID)
	if !ok {
		return nil
	}
	// Only deliver to a reader the consumer already asked for; an
	// unclaimed type code is silently filtered rather than buffered.
	if v, ok := ch.extData.Load(msg.DataType); ok {
		v.(*dataPipe).write(msg.Data)
	}
	return nil
}

func (c *Conn) handleEOF(body []byte) error {
	msg := new(channelEOFMsg)
	if err := zssh.Unmarshal(body, msg); err != nil {
		return err
	}
	ch, ok := c.lookup(msg.PeersID)
	if !ok {
		return nil
	}
	ch.data.setEOF()
	ch.extData.Range(func(_, v interface{}) bool {
		v.(*dataPipe).setEOF()
		return true
	})
	return nil
}

func (c *Conn) handleClose(body []byte) error {
	msg := new(channelCloseMsg)
	if err := zssh.Unmarshal(body, msg); err != nil {
		return err
	}
	ch, ok := c.lookup(msg.PeersID)
	if !ok {
		return nil
	}

	ch.closeMu.Lock()
	ch.closeRecv = true
	needSend := !ch.closeSent
	if needSend {
		ch.closeSent = true
	}
	ch.closeMu.Unlock()

	if needSend {
		if err := c.sess.SendRaw(encode(msgChannelClose, &channelCloseMsg{PeersID: ch.remoteID})); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.finalizeLocked(ch)
	c.mu.Unlock()
	return nil
}

// finalizeLocked removes ch from the channel table and releases anything
// blocked on it; called with c.mu held.
func (c *Conn) finalizeLocked(ch *Channel) {
	_, existed := c.channels[ch.localID]
	delete(c.channels, ch.localID)
	ch.closeMu.Lock()
	if !ch.finalized {
		ch.finalized = true
		close(ch.closed)
		ch.remoteWin.close()
		ch.data.setClosed()
		ch.extData.Range(func(_, v interface{}) bool {
			v.(*dataPipe).setClosed()
			return true
		})
		if existed {
			if m := c.sess.Metrics(); m != nil {
				m.ActiveChannels.Dec()
			}
		}
	}
	ch.closeMu.Unlock()
}

func (c *Conn) handleChannelRequest(body []byte) error {
	msg := new(channelRequestMsg)
	if err := zssh.Unmarshal(body, msg); err != nil {
		return err
	}
	ch, ok := c.lookup(msg.PeersID)
	if !ok {
		return nil
	}
	ctx := RequestContext{Type: msg.Request, WantReply: msg.WantReply, Data: msg.RequestSpecificData}
	select {
	case ch.reqCh <- ctx:
	case <-ch.closed:
	}
	return nil
}

func (c *Conn) handleChannelReply(body []byte, resp Response) error {
	msg := new(channelRequestSuccessMsg)
	if err := zssh.Unmarshal(body, msg); err != nil {
		return err
	}
	ch, ok := c.lookup(msg.PeersID)
	if !ok {
		return nil
	}
	select {
	case ch.replyCh <- resp:
	default:
	}
	return nil
}

// closeChannel sends CHANNEL_CLOSE for ch if not already sent.
func (c *Conn) closeChannel(ch *Channel) error {
	ch.closeMu.Lock()
	if ch.closeSent {
		ch.closeMu.Unlock()
		return nil
	}
	ch.closeSent = true
	ch.closeMu.Unlock()

	err := c.sess.SendRaw(encode(msgChannelClose, &channelCloseMsg{PeersID: ch.remoteID}))

	ch.closeMu.Lock()
	done := ch.closeRecv
	ch.closeMu.Unlock()
	if done {
		c.mu.Lock()
		c.finalizeLocked(ch)
		c.mu.Unlock()
	}
	return err
}

func (c *Conn) sendWindowAdjust(remoteID, n uint32) error {
	return c.sess.SendRaw(encode(msgChannelWindowAdjust, &windowAdjustMsg{PeersID: remoteID, AdditionalBytes: n}))
}

func (c *Conn) sendData(remoteID uint32, data []byte) error {
	return c.sess.SendRaw(encode(msgChannelData, &channelDataMsg{PeersID: remoteID, Data: data}))
}

func (c *Conn) sendExtendedData(remoteID, dataType uint32, data []byte) error {
	return c.sess.SendRaw(encode(msgChannelExtendedData, &channelExtendedDataMsg{PeersID: remoteID, DataType: dataType, Data: data}))
}

func (c *Conn) sendChannelRequest(remoteID uint32, ctx RequestContext) error {
	return c.sess.SendRaw(encode(msgChannelRequest, &channelRequestMsg{
		PeersID:             remoteID,
		Request:             ctx.Type,
		WantReply:           ctx.WantReply,
		RequestSpecificData: ctx.Data,
	}))
}

func (c *Conn) sendChannelRequestReply(remoteID uint32, resp Response) error {
	if resp == Success {
		return c.sess.SendRaw(encode(msgChannelSuccess, &channelRequestSuccessMsg{PeersID: remoteID}))
	}
	return c.sess.SendRaw(encode(msgChannelFailure, &channelRequestFailureMsg{PeersID: remoteID}))
}

// GlobalRequest sends a GLOBAL_REQUEST (RFC 4254 §4). When wantReply,
// replies are matched strictly in the FIFO order requests were sent
// (spec.md §4.7).
func (c *Conn) GlobalRequest(name string, wantReply bool, data []byte) (bool, []byte, error) {
	var waiter chan globalReply
	if wantReply {
		waiter = c.outgoing.push()
	}
	if err := c.sess.SendRaw(encode(msgGlobalRequest, &globalRequestMsg{Name: name, WantReply: wantReply, Data: data})); err != nil {
		return false, nil, err
	}
	if !wantReply {
		return true, nil, nil
	}
	select {
	case r := <-waiter:
		return r.ok, r.data, nil
	case <-c.done:
		return false, nil, c.err
	}
}

// IncomingGlobalRequest is a peer-sent GLOBAL_REQUEST awaiting a reply
// from this side.
type IncomingGlobalRequest struct {
	conn      *Conn
	Name      string
	WantReply bool
	Data      []byte
}

// Reply answers a want-reply request; a no-op for one that didn't ask.
func (r *IncomingGlobalRequest) Reply(ok bool, data []byte) error {
	if !r.WantReply {
		return nil
	}
	if ok {
		return r.conn.sess.SendRaw(encode(msgRequestSuccess, &requestSuccessMsg{Data: data}))
	}
	return r.conn.sess.SendRaw(encode(msgRequestFailure, &requestFailureMsg{}))
}

// NextGlobalRequest blocks until the peer sends a GLOBAL_REQUEST or the
// connection ends.
func (c *Conn) NextGlobalRequest() (*IncomingGlobalRequest, error) {
	select {
	case m := <-c.incoming:
		return &IncomingGlobalRequest{conn: c, Name: m.Name, WantReply: m.WantReply, Data: m.Data}, nil
	case <-c.done:
		return nil, c.err
	}
}
