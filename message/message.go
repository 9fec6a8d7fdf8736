package message

import "github.com/kprime/fixengine/fixerr"

// Message is an ordered sequence of Fields plus a cached MsgType. The
// header/trailer order from spec §3 (tag 8 first, 9 second, 35 third, 10
// last) is produced by Encode and checked by Extract, not on every
// mutation. Neither Encode nor Extract checks that other tags appear only
// once; Set overwrites an existing tag instead of adding a second one.
type Message struct {
	fields  []Field
	msgType string
}

// New creates an empty message for the given MsgType; BodyLength and
// CheckSum are filled in by Encode, while BeginString must be set by the
// caller before Encode.
func New(msgType string) *Message {
	m := &Message{}
	m.Set(TagMsgType, msgType)
	return m
}

// MsgType returns the cached message type, set either by New or by the
// first 35= field seen during parsing.
func (m *Message) MsgType() string { return m.msgType }

// Set appends a field, or overwrites the first existing field with the
// same tag if present. Encode ignores any values set for BodyLength (9)
// and CheckSum (10) and computes them itself; MsgType (35) is set by New,
// and BeginString (8) is set by the caller before Encode.
func (m *Message) Set(tag int, value string) {
	for i := range m.fields {
		if m.fields[i].Tag == tag {
			m.fields[i].Value = value
			if tag == TagMsgType {
				m.msgType = value
			}
			return
		}
	}
	m.fields = append(m.fields, Field{Tag: tag, Value: value})
	if tag == TagMsgType {
		m.msgType = value
	}
}

// SetField appends/overwrites using a Field value.
func (m *Message) SetField(f Field) { m.Set(f.Tag, f.Value) }

// Get returns the value of the first field with the given tag.
func (m *Message) Get(tag int) (string, bool) {
	for _, f := range m.fields {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return "", false
}

// MustGet returns the field value or a *fixerr.Error{Kind: Parse} if
// absent.
func (m *Message) MustGet(tag int) (string, error) {
	v, ok := m.Get(tag)
	if !ok {
		return "", fixerr.ParseErr("required field missing")
	}
	return v, nil
}

// Fields returns the fields in insertion order, excluding nothing — the
// caller is trusted not to mutate the returned slice's backing array via
// index tricks; copy if needed.
func (m *Message) Fields() []Field {
	return m.fields
}

// Clone returns a deep copy safe for independent mutation (used when a
// stored message is replayed with PossDupFlag added).
func (m *Message) Clone() *Message {
	clone := &Message{msgType: m.msgType, fields: make([]Field, len(m.fields))}
	copy(clone.fields, m.fields)
	return clone
}

// Remove deletes the first field with the given tag, if present.
func (m *Message) Remove(tag int) {
	for i := range m.fields {
		if m.fields[i].Tag == tag {
			m.fields = append(m.fields[:i], m.fields[i+1:]...)
			return
		}
	}
}
