package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetOverwritesExistingTag(t *testing.T) {
	m := New(MsgTypeHeartbeat)
	m.Set(TagTestReqID, "TR1")
	m.Set(TagTestReqID, "TR2")

	v, ok := m.Get(TagTestReqID)
	assert.True(t, ok)
	assert.Equal(t, "TR2", v)

	count := 0
	for _, f := range m.Fields() {
		if f.Tag == TagTestReqID {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCloneIsIndependent(t *testing.T) {
	m := New(MsgTypeLogon)
	m.Set(TagSenderCompID, "A")

	clone := m.Clone()
	clone.Set(TagSenderCompID, "B")

	v, _ := m.Get(TagSenderCompID)
	assert.Equal(t, "A", v)
	cv, _ := clone.Get(TagSenderCompID)
	assert.Equal(t, "B", cv)
}

func TestRemoveField(t *testing.T) {
	m := New(MsgTypeLogon)
	m.Set(TagTestReqID, "TR1")
	m.Remove(TagTestReqID)

	_, ok := m.Get(TagTestReqID)
	assert.False(t, ok)
}
