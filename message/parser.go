package message

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/kprime/fixengine/fixerr"
)

// ErrNeedMore signals the buffer does not yet hold a complete frame; the
// caller should read more bytes and retry with the same (or a grown)
// buffer. It is never wrapped — callers compare with errors.Is directly.
var ErrNeedMore = errors.New("message: need more data")

// trailerLen is len("10=") + 3 digits + SOH.
const trailerLen = 3 + 3 + 1

// Extract implements the streaming parse contract of spec §4.1:
// extract_message(buf) -> (Message, bytesConsumed) | NeedMore | Err(Parse).
// It never blocks and never consumes input on failure or NeedMore.
func Extract(buf []byte) (*Message, int, error) {
	if len(buf) < 2 || buf[0] != '8' || buf[1] != '=' {
		if len(buf) < 2 {
			return nil, 0, ErrNeedMore
		}
		return nil, 0, fixerr.ParseErr("frame does not start with BeginString")
	}

	sohIdxBegin := bytes.IndexByte(buf, soh)
	if sohIdxBegin < 0 {
		return nil, 0, ErrNeedMore
	}
	beginString := string(buf[2:sohIdxBegin])
	if beginString == "" {
		return nil, 0, fixerr.ParseErr("empty BeginString")
	}

	rest := buf[sohIdxBegin+1:]
	if len(rest) < 2 || rest[0] != '9' || rest[1] != '=' {
		if len(rest) < 2 {
			return nil, 0, ErrNeedMore
		}
		return nil, 0, fixerr.ParseErr("BodyLength (tag 9) must follow BeginString")
	}
	sohIdxLen := bytes.IndexByte(rest, soh)
	if sohIdxLen < 0 {
		return nil, 0, ErrNeedMore
	}
	bodyLenStr := string(rest[2:sohIdxLen])
	bodyLen, err := strconv.Atoi(bodyLenStr)
	if err != nil || bodyLen < 0 {
		return nil, 0, fixerr.ParseErr("malformed BodyLength")
	}

	bodyStart := sohIdxBegin + 1 + sohIdxLen + 1
	need := bodyStart + bodyLen + trailerLen
	if len(buf) < need {
		return nil, 0, ErrNeedMore
	}

	body := buf[bodyStart : bodyStart+bodyLen]
	trailer := buf[bodyStart+bodyLen : need]

	if trailer[0] != '1' || trailer[1] != '0' || trailer[2] != '=' || trailer[need-bodyStart-bodyLen-1] != soh {
		return nil, 0, fixerr.ParseErr("BodyLength does not land on CheckSum field")
	}
	checksumDigits := string(trailer[3:6])
	declaredSum, err := strconv.Atoi(checksumDigits)
	if err != nil || len(checksumDigits) != 3 {
		return nil, 0, fixerr.ParseErr("malformed CheckSum")
	}

	// CheckSum covers every byte up to but not including the "10=" tag
	// itself (spec §4.1); Encode computes the embedded sum at exactly
	// this point, before appending "10=".
	preChecksum := buf[:bodyStart+bodyLen]
	if checksum(preChecksum) != declaredSum {
		return nil, 0, fixerr.ParseErr("checksum mismatch")
	}

	if len(body) < 3 || body[0] != '3' || body[1] != '5' || body[2] != '=' {
		return nil, 0, fixerr.ParseErr("MsgType (tag 35) must be third field")
	}

	msg := &Message{}
	firstField := true
	for _, raw := range bytes.Split(body, []byte{soh}) {
		if len(raw) == 0 {
			continue
		}
		eq := bytes.IndexByte(raw, '=')
		if eq < 0 {
			return nil, 0, fixerr.ParseErr("malformed field, missing '='")
		}
		tagStr := string(raw[:eq])
		tag, err := strconv.Atoi(tagStr)
		if err != nil {
			return nil, 0, fixerr.ParseErr("non-numeric tag")
		}
		value := string(raw[eq+1:])
		if firstField && tag != TagMsgType {
			return nil, 0, fixerr.ParseErr("MsgType (tag 35) must be first body field")
		}
		firstField = false
		msg.fields = append(msg.fields, Field{Tag: tag, Value: value})
		if tag == TagMsgType {
			msg.msgType = value
		}
	}
	if msg.msgType == "" {
		return nil, 0, fixerr.ParseErr("missing MsgType")
	}

	// BeginString isn't a body field but callers (session validation)
	// need to read it back; stash it under its tag like any other field.
	msg.fields = append([]Field{{Tag: TagBeginString, Value: beginString}}, msg.fields...)
	return msg, need, nil
}
