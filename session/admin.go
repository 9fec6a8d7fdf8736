package session

import (
	"time"

	"github.com/kprime/fixengine/fixerr"
	"github.com/kprime/fixengine/message"
)

// getStr returns a field's value or "" if absent, for call sites that
// treat an absent field the same as an empty one.
func getStr(msg *message.Message, tag int) string {
	v, _ := msg.Get(tag)
	return v
}

// requiredHeaderTags are checked on every inbound message before any
// message-type-specific handling runs (spec §4.4 "Header validation").
// BodyLength and CheckSum are framing tags the codec consumes during
// Extract and never materializes as Message fields, so they are not
// checked here.
var requiredHeaderTags = []int{
	message.TagBeginString,
	message.TagMsgType,
	message.TagMsgSeqNum,
	message.TagSenderCompID,
	message.TagTargetCompID,
	message.TagSendingTime,
}

// handleInbound dispatches one parsed inbound frame: header validation,
// then sequence-number discipline, then message-type routing (spec §4.4
// "Message dispatch").
func (s *Session) handleInbound(msg *message.Message) error {
	if err := s.validateHeader(msg); err != nil {
		return s.reject(msg, err)
	}

	s.st.mu.Lock()
	s.st.lastInbound = time.Now()
	s.st.mu.Unlock()

	seq, err := message.ValidateInt(getStr(msg, message.TagMsgSeqNum))
	if err != nil {
		return s.reject(msg, err)
	}
	incoming := int(seq)

	expected := s.st.snapshot().NextIn
	switch {
	case incoming == expected:
		return s.dispatchInOrder(msg, incoming)
	case incoming > expected:
		return s.handleGap(msg, expected, incoming)
	default: // incoming < expected
		if getStr(msg, message.TagPossDupFlag) == "Y" {
			// Duplicate resend, already applied; no sequence side effects.
			return nil
		}
		s.log.Warn("lower than expected seq without PossDupFlag", "session", s.id.String(),
			"expected", expected, "got", incoming)
		return nil
	}
}

func (s *Session) validateHeader(msg *message.Message) error {
	for _, tag := range requiredHeaderTags {
		if getStr(msg, tag) == "" {
			return fixerr.SessionErr("missing required header tag")
		}
	}
	if getStr(msg, message.TagBeginString) != s.cfg.BeginString {
		return fixerr.SessionErr("BeginString mismatch")
	}
	cp := s.id.Counterparty()
	if getStr(msg, message.TagSenderCompID) != cp.SenderCompID || getStr(msg, message.TagTargetCompID) != cp.TargetCompID {
		return fixerr.SessionErr("CompID mismatch")
	}
	return nil
}

// handleGap responds to a higher-than-expected incoming sequence number
// by requesting a resend of exactly the missing range and buffering the
// out-of-order message until the gap closes (spec §4.4 "Gap detection",
// §5 "out-of-order messages are buffered ... and released to the
// callback only when contiguous").
func (s *Session) handleGap(msg *message.Message, expected, incoming int) error {
	if err := s.persistInbound(incoming, msg); err != nil {
		return err
	}

	s.bufMu.Lock()
	if s.pendingIn == nil {
		s.pendingIn = make(map[int]*message.Message)
	}
	s.pendingIn[incoming] = msg
	s.bufMu.Unlock()

	alreadyRecovering := s.st.getStatus() == StatusRecovering
	s.setStatus(StatusRecovering)
	if alreadyRecovering {
		// A resend for this gap is already outstanding; don't ask again.
		return nil
	}

	rr := message.New(message.MsgTypeResendRequest)
	rr.Set(message.TagBeginSeqNo, itoa(expected))
	rr.Set(message.TagEndSeqNo, itoa(incoming-1))
	return s.sendAdmin(rr)
}

// dispatchInOrder persists the inbound message durably (spec §4.4
// "Persistence discipline": no message is considered consumed without a
// durable record) before delivering it to the callback and advancing
// NextIn, then releases any now-contiguous buffered messages.
func (s *Session) dispatchInOrder(msg *message.Message, incoming int) error {
	if err := s.persistInbound(incoming, msg); err != nil {
		return err
	}
	if err := s.dispatchByType(msg); err != nil {
		return err
	}
	if msg.MsgType() == message.MsgTypeSequenceReset {
		// onSequenceReset already sets NextIn directly (to NewSeqNo) and
		// drains any now-contiguous buffered messages itself; it must not
		// also be advanced by the normal +1 below.
		return nil
	}
	s.advanceNextIn()
	s.drainPending()
	return nil
}

// persistInbound durably records msg at seqNum in the session's inbound
// log, inside a transaction, before it is acknowledged as consumed (spec
// §4.4 "Persistence discipline"). Inbound and outbound sequence spaces
// are independent counters, so they are kept in separate store logs
// under a ":in" suffix rather than sharing session.go's send-path key.
func (s *Session) persistInbound(seqNum int, msg *message.Message) error {
	key := s.inboundStoreKey()
	if err := s.store.BeginTx(key); err != nil {
		return fixerr.Wrap(fixerr.KindStore, "persist inbound: begin_tx", err)
	}
	if err := s.store.Store(key, seqNum, msg); err != nil {
		_ = s.store.RollbackTx(key)
		return fixerr.Wrap(fixerr.KindStore, "persist inbound: store", err)
	}
	if err := s.store.CommitTx(key); err != nil {
		return fixerr.Wrap(fixerr.KindStore, "persist inbound: commit_tx", err)
	}
	return nil
}

func (s *Session) inboundStoreKey() string {
	return s.id.String() + ":in"
}

// drainPending releases buffered out-of-order messages to the callback in
// strictly increasing NextIn order, for as long as the next expected
// seqNum is already buffered (spec §4.4 "releases the buffered messages
// to the callback in order").
func (s *Session) drainPending() {
	for {
		expected := s.st.snapshot().NextIn

		s.bufMu.Lock()
		msg, ok := s.pendingIn[expected]
		if ok {
			delete(s.pendingIn, expected)
		}
		remaining := len(s.pendingIn)
		s.bufMu.Unlock()

		if !ok {
			if remaining == 0 && s.st.getStatus() == StatusRecovering {
				s.setStatus(StatusConnected)
			}
			return
		}

		if err := s.dispatchByType(msg); err != nil {
			s.log.Error("buffered message dispatch failed", "session", s.id.String(),
				"seq", expected, "err", err)
			return
		}
		s.advanceNextIn()
	}
}

func (s *Session) advanceNextIn() {
	s.st.mu.Lock()
	s.st.nextIn++
	n := s.st.nextIn
	s.st.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetStoreNextSeq(s.id.String()+":in", n)
	}
}

func (s *Session) dispatchByType(msg *message.Message) error {
	switch msg.MsgType() {
	case message.MsgTypeLogon:
		return s.onLogon(msg)
	case message.MsgTypeHeartbeat:
		return s.onHeartbeat(msg)
	case message.MsgTypeTestRequest:
		return s.onTestRequest(msg)
	case message.MsgTypeResendRequest:
		return s.onResendRequest(msg)
	case message.MsgTypeSequenceReset:
		return s.onSequenceReset(msg)
	case message.MsgTypeReject:
		return s.onReject(msg)
	case message.MsgTypeLogout:
		return s.onLogout(msg)
	default:
		return s.app.FromApp(msg, s.id)
	}
}

func (s *Session) onLogon(msg *message.Message) error {
	if err := s.app.FromAdmin(msg, s.id); err != nil {
		return err
	}
	if getStr(msg, message.TagResetSeqNumFlag) == "Y" {
		_ = s.store.ResetSeq(s.id.String())
		s.st.mu.Lock()
		s.st.nextIn = 1
		s.st.mu.Unlock()
	}

	wasInitiateLogon := s.st.getStatus() == StatusInitiateLogon
	s.setStatus(StatusConnected)
	if !wasInitiateLogon {
		// We were AwaitLogon (acceptor side): answer with our own Logon.
		if err := s.sendLogon(); err != nil {
			return err
		}
	}
	s.app.OnLogon(s.id)
	return nil
}

func (s *Session) onHeartbeat(msg *message.Message) error {
	if id := getStr(msg, message.TagTestReqID); id != "" {
		s.st.mu.Lock()
		if s.st.pendingTestReqID == id {
			s.st.pendingTestReqID = ""
		}
		s.st.mu.Unlock()
	}
	return s.app.FromAdmin(msg, s.id)
}

func (s *Session) onTestRequest(msg *message.Message) error {
	if err := s.app.FromAdmin(msg, s.id); err != nil {
		return err
	}
	hb := message.New(message.MsgTypeHeartbeat)
	if id := getStr(msg, message.TagTestReqID); id != "" {
		hb.Set(message.TagTestReqID, id)
	}
	return s.sendAdmin(hb)
}

// onResendRequest replays stored messages in [BeginSeqNo, EndSeqNo] with
// PossDupFlag=Y, substituting GapFill for any contiguous run of
// administrative messages (spec §4.4 "Resend").
func (s *Session) onResendRequest(msg *message.Message) error {
	if err := s.app.FromAdmin(msg, s.id); err != nil {
		return err
	}
	beginSeq, err := message.ValidateInt(getStr(msg, message.TagBeginSeqNo))
	if err != nil {
		return err
	}
	endSeq, err := message.ValidateInt(getStr(msg, message.TagEndSeqNo))
	if err != nil {
		endSeq = 0
	}
	to := int(endSeq)
	if to == 0 {
		to = s.store.PeekNextSeq(s.id.String()) - 1
	}

	from := int(beginSeq)
	gapStart := from
	for n := from; n <= to; n++ {
		stored, _, ok := s.store.Get(s.id.String(), n)
		if !ok || isAdminMsgType(stored.MsgType()) {
			continue
		}
		if gapStart < n {
			if err := s.sendGapFill(gapStart, n); err != nil {
				return err
			}
		}
		dup := stored.Clone()
		dup.Set(message.TagPossDupFlag, "Y")
		dup.Set(message.TagOrigSendingTime, getStr(stored, message.TagSendingTime))
		if err := s.sendRaw(dup); err != nil {
			return err
		}
		gapStart = n + 1
	}
	if gapStart <= to {
		return s.sendGapFill(gapStart, to+1)
	}
	return nil
}

func isAdminMsgType(t string) bool {
	switch t {
	case message.MsgTypeLogon, message.MsgTypeHeartbeat, message.MsgTypeTestRequest,
		message.MsgTypeResendRequest, message.MsgTypeReject, message.MsgTypeSequenceReset, message.MsgTypeLogout:
		return true
	default:
		return false
	}
}

func (s *Session) sendGapFill(from, newSeqNo int) error {
	gf := message.New(message.MsgTypeSequenceReset)
	gf.Set(message.TagMsgSeqNum, itoa(from))
	gf.Set(message.TagGapFillFlag, "Y")
	gf.Set(message.TagNewSeqNo, itoa(newSeqNo))
	return s.sendRaw(gf)
}

// sendRaw writes a pre-sequenced admin message (GapFill, resend replay)
// directly to the wire without drawing a fresh outbound sequence number.
func (s *Session) sendRaw(msg *message.Message) error {
	msg.Set(message.TagBeginString, s.cfg.BeginString)
	msg.Set(message.TagSenderCompID, s.cfg.SenderCompID)
	msg.Set(message.TagTargetCompID, s.cfg.TargetCompID)
	if getStr(msg, message.TagSendingTime) == "" {
		msg.Set(message.TagSendingTime, message.FormatUTCTimestamp(time.Now()))
	}
	frame, err := message.Encode(msg)
	if err != nil {
		return fixerr.Wrap(fixerr.KindParse, "encode admin message", err)
	}
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return fixerr.TransportErr("sendRaw: no active connection")
	}
	s.log.LogMessage("out", string(frame))
	return c.Send(frame)
}

// onSequenceReset applies GapFill (advance NextIn without requiring the
// skipped messages) or Reset (unconditional jump), rejecting a NewSeqNo
// that would move NextIn backward (spec §4.4 invariant "SequenceReset").
func (s *Session) onSequenceReset(msg *message.Message) error {
	if err := s.app.FromAdmin(msg, s.id); err != nil {
		return err
	}
	newSeqNoStr := getStr(msg, message.TagNewSeqNo)
	newSeqNo, err := message.ValidateInt(newSeqNoStr)
	if err != nil {
		return s.reject(msg, err)
	}

	current := s.st.snapshot().NextIn
	if int(newSeqNo) < current {
		return s.sendReject(current, "NewSeqNo less than current NextIn")
	}

	s.st.mu.Lock()
	s.st.nextIn = int(newSeqNo)
	s.st.mu.Unlock()

	s.bufMu.Lock()
	for seq := range s.pendingIn {
		if seq < int(newSeqNo) {
			delete(s.pendingIn, seq)
		}
	}
	s.bufMu.Unlock()
	s.drainPending()
	return nil
}

func (s *Session) onReject(msg *message.Message) error {
	return s.app.FromAdmin(msg, s.id)
}

func (s *Session) onLogout(msg *message.Message) error {
	if err := s.app.FromAdmin(msg, s.id); err != nil {
		return err
	}
	if s.st.getStatus() == StatusConnected {
		_ = s.sendAdmin(message.New(message.MsgTypeLogout))
	}
	if s.cfg.ResetOnLogout {
		_ = s.store.ResetSeq(s.id.String())
		s.st.mu.Lock()
		s.st.nextIn = 1
		s.st.mu.Unlock()
	}
	s.setStatus(StatusDisconnecting)
	s.app.OnLogout(s.id)

	s.mu.Lock()
	c := s.conn
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if c != nil {
		_ = c.Close()
	}
	return nil
}

// reject sends a session-level Reject (35=3) for a message that failed
// header or field validation, without advancing NextIn (spec §4.4
// "Reject has no sequence side effects beyond the normal increment").
func (s *Session) reject(msg *message.Message, cause error) error {
	seq := 0
	if raw := getStr(msg, message.TagMsgSeqNum); raw != "" {
		if n, err := message.ValidateInt(raw); err == nil {
			seq = int(n)
		}
	}
	return s.sendReject(seq, cause.Error())
}

func (s *Session) sendReject(refSeqNum int, text string) error {
	rej := message.New(message.MsgTypeReject)
	rej.Set(message.TagRefSeqNum, itoa(refSeqNum))
	rej.Set(message.TagSessionRejectReason, "0")
	rej.Set(message.TagText, text)
	return s.sendAdmin(rej)
}
