package message

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kprime/fixengine/fixerr"
)

func buildLogon(t *testing.T) *Message {
	t.Helper()
	msg := New(MsgTypeLogon)
	msg.Set(TagBeginString, "FIX.4.2")
	msg.Set(TagMsgSeqNum, "1")
	msg.Set(TagSenderCompID, "A")
	msg.Set(TagTargetCompID, "B")
	msg.Set(TagSendingTime, "20250124-12:00:00.000")
	msg.Set(98, "0")
	msg.Set(TagHeartBtInt, "30")
	return msg
}

func TestEncodeFieldOrderAndChecksum(t *testing.T) {
	msg := buildLogon(t)
	frame, err := Encode(msg)
	require.NoError(t, err)

	s := string(frame)
	assert.True(t, len(s) > 0)
	assert.Equal(t, byte('8'), frame[0])
	// 8=FIX.4.2<SOH>9=<len><SOH>35=A<SOH>...
	assert.Contains(t, s, "8=FIX.4.2\x01")
	assert.Contains(t, s, "35=A\x01")
	assert.True(t, frame[len(frame)-1] == soh)

	assert.Equal(t, "8=FIX.4.2\x019=", s[:len("8=FIX.4.2\x019=")])
	afterBodyLen := indexSOH(s, len("8=FIX.4.2\x01")) + 1
	assert.Equal(t, "35=A\x01", s[afterBodyLen:afterBodyLen+len("35=A\x01")])

	trailerStart := len(frame) - trailerLen
	assert.Equal(t, fmt.Sprintf("10=%03d\x01", checksum(frame[:trailerStart])), s[trailerStart:])
}

func TestFramingRoundTrip(t *testing.T) {
	msg := buildLogon(t)
	frame, err := Encode(msg)
	require.NoError(t, err)

	parsed, n, err := Extract(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)
	assert.Equal(t, msg.MsgType(), parsed.MsgType())

	for _, f := range msg.Fields() {
		v, ok := parsed.Get(f.Tag)
		require.True(t, ok, "tag %d missing after round trip", f.Tag)
		assert.Equal(t, f.Value, v)
	}
}

func TestExtractNeedMoreOnShortBuffer(t *testing.T) {
	msg := buildLogon(t)
	frame, err := Encode(msg)
	require.NoError(t, err)

	for cut := 0; cut < len(frame); cut++ {
		_, _, err := Extract(frame[:cut])
		assert.ErrorIs(t, err, ErrNeedMore, "cut at %d should be NeedMore, got %v", cut, err)
	}
}

func TestExtractBodyLengthOvershootIsParseError(t *testing.T) {
	// Declared BodyLength (8) overshoots the real body ("35=A\x01", 5
	// bytes) by 3, landing inside the next field instead of on "10=".
	// Enough trailing bytes are present that this is not NeedMore.
	buf := "8=FIX.4.2\x019=8\x0135=A\x0149=ABCDEFG\x01"

	_, _, err := Extract([]byte(buf))
	var fe *fixerr.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fixerr.KindParse, fe.Kind)
}

func TestExtractChecksumMismatch(t *testing.T) {
	msg := buildLogon(t)
	frame, err := Encode(msg)
	require.NoError(t, err)

	corrupted := append([]byte(nil), frame...)
	// Flip the checksum digits near the end, before the trailing SOH.
	corrupted[len(corrupted)-2] = corrupted[len(corrupted)-2] ^ 0x1

	_, _, err = Extract(corrupted)
	var fe *fixerr.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fixerr.KindParse, fe.Kind)
}

func indexSOH(s string, from int) int {
	for i := from; i < len(s); i++ {
		if s[i] == 1 {
			return i
		}
	}
	return -1
}
