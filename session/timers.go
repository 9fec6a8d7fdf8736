package session

import (
	"context"
	"time"

	"github.com/kprime/fixengine/message"
)

// timerLoop drives the heartbeat/test-request cycle of spec §4.4
// "Heartbeat and TestRequest": a Heartbeat is sent after HeartBtInt of
// outbound silence, a TestRequest after 1.2x HeartBtInt of inbound
// silence, and the session is disconnected if that TestRequest goes
// unanswered for another HeartBtInt.
func (s *Session) timerLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.st.heartBtInt
	if interval <= 0 {
		interval = 30 * time.Second
	}
	tick := interval / 4
	if tick < time.Second {
		tick = interval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkTimers(interval)
		}
	}
}

func (s *Session) checkTimers(interval time.Duration) {
	if s.st.getStatus() != StatusConnected {
		return
	}

	now := time.Now()

	s.st.mu.Lock()
	sinceOut := now.Sub(s.st.lastOutbound)
	sinceIn := now.Sub(s.st.lastInbound)
	pending := s.st.pendingTestReqID
	s.st.mu.Unlock()

	if pending != "" {
		// The TestRequest went out once inbound silence reached 1.2x
		// HeartBtInt; the answer gets one more HeartBtInt after that.
		if sinceIn > time.Duration(float64(interval)*2.2) {
			s.log.Warn("test request unanswered, disconnecting", "session", s.id.String())
			s.setStatus(StatusError)
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
		}
		return
	}

	switch {
	case sinceOut >= interval:
		_ = s.sendAdmin(message.New(message.MsgTypeHeartbeat))
	case sinceIn >= time.Duration(float64(interval)*1.2):
		id := newTestReqID()
		s.st.mu.Lock()
		s.st.pendingTestReqID = id
		s.st.mu.Unlock()
		tr := message.New(message.MsgTypeTestRequest)
		tr.Set(message.TagTestReqID, id)
		_ = s.sendAdmin(tr)
	}
}
