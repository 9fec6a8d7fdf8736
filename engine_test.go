package fixengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kprime/fixengine/session"
)

func TestNewRegistersEveryConfiguredSession(t *testing.T) {
	cfg := EngineConfig{
		Sessions: []session.Config{
			{BeginString: "FIX.4.2", SenderCompID: "A", TargetCompID: "B", HeartBtInt: 30, Role: session.RoleInitiator},
			{BeginString: "FIX.4.2", SenderCompID: "C", TargetCompID: "D", HeartBtInt: 30, Role: session.RoleAcceptor},
		},
	}

	e := New(cfg, session.NopApplication{}, nil, nil)
	require.Len(t, e.Sessions(), 2)

	id := session.ID{BeginString: "FIX.4.2", SenderCompID: "A", TargetCompID: "B"}
	s, ok := e.GetSession(id)
	require.True(t, ok)
	assert.Equal(t, session.StatusCreated, s.Status())
}

func TestAddSessionRegistersAfterConstruction(t *testing.T) {
	e := New(EngineConfig{}, session.NopApplication{}, nil, nil)
	require.Len(t, e.Sessions(), 0)

	s := e.AddSession(session.Config{
		BeginString: "FIX.4.2", SenderCompID: "X", TargetCompID: "Y", HeartBtInt: 10, Role: session.RoleAcceptor,
	})
	require.Len(t, e.Sessions(), 1)
	assert.Equal(t, session.StatusCreated, s.Status())
}
