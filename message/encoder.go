package message

import (
	"bytes"
	"fmt"

	"github.com/kprime/fixengine/fixerr"
)

const soh = byte(1)

// Encode serializes msg per spec §4.1: tag order 8, 9, 35, then remaining
// fields in insertion order, then 10. Tag 9 (BodyLength) and tag 10
// (CheckSum) are always computed fresh; any values the caller set for
// those two tags are ignored. BeginString (tag 8) is read from msg like
// any other field and must be set before Encode is called.
func Encode(msg *Message) ([]byte, error) {
	beginString, ok := msg.Get(TagBeginString)
	if !ok || beginString == "" {
		return nil, fixerr.ParseErr("encode: missing BeginString")
	}
	if msg.msgType == "" {
		return nil, fixerr.ParseErr("encode: empty MsgType")
	}

	var body bytes.Buffer
	body.WriteString("35=")
	if err := writeValue(&body, msg.msgType); err != nil {
		return nil, err
	}
	body.WriteByte(soh)

	for _, f := range msg.fields {
		switch f.Tag {
		case TagBeginString, TagBodyLength, TagMsgType, TagCheckSum:
			continue // header/trailer tags are synthesized, never copied verbatim
		}
		fmt.Fprintf(&body, "%d=", f.Tag)
		if err := writeValue(&body, f.Value); err != nil {
			return nil, err
		}
		body.WriteByte(soh)
	}

	var out bytes.Buffer
	out.WriteString("8=")
	out.WriteString(beginString)
	out.WriteByte(soh)
	fmt.Fprintf(&out, "9=%d", body.Len())
	out.WriteByte(soh)
	out.Write(body.Bytes())

	sum := checksum(out.Bytes())
	fmt.Fprintf(&out, "10=%03d", sum)
	out.WriteByte(soh)

	return out.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, value string) error {
	if bytes.IndexByte([]byte(value), soh) >= 0 {
		return fixerr.ParseErr("encode: value contains SOH")
	}
	buf.WriteString(value)
	return nil
}

// checksum is the unsigned sum of all bytes modulo 256 (spec §4.1).
func checksum(b []byte) int {
	var sum int
	for _, c := range b {
		sum += int(c)
	}
	return sum % 256
}
