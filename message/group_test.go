package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractGroupPreservesOrder(t *testing.T) {
	m := New(MsgTypeLogon)
	m.Set(268, "2") // NoMDEntries
	m.fields = append(m.fields,
		Field{Tag: 269, Value: "0"},
		Field{Tag: 270, Value: "100.5"},
		Field{Tag: 269, Value: "1"},
		Field{Tag: 270, Value: "101.0"},
	)

	group, ok := ExtractGroup(m, 268, 269)
	require.True(t, ok)
	assert.Equal(t, 2, group.Count)
	assert.Equal(t, []Field{
		{Tag: 269, Value: "0"},
		{Tag: 270, Value: "100.5"},
		{Tag: 269, Value: "1"},
		{Tag: 270, Value: "101.0"},
	}, group.Fields)
}

func TestExtractGroupMissingCountTag(t *testing.T) {
	m := New(MsgTypeLogon)
	_, ok := ExtractGroup(m, 268, 269)
	assert.False(t, ok)
}
