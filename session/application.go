package session

import "github.com/kprime/fixengine/message"

// Application is the user-supplied callback the session dispatches
// application messages and lifecycle notifications to (spec §2 "dispatches
// application messages to a user-supplied callback"). Shaped after the
// quickfix.Application interface used throughout the example pack
// (internal/fix-acceptor, other_examples/gurre-prime-fix-md-go) so a
// reader already familiar with that convention recognizes the hooks.
type Application interface {
	// OnCreate is called once when the session is registered.
	OnCreate(id ID)
	// OnLogon is called when the session reaches Connected.
	OnLogon(id ID)
	// OnLogout is called when the session leaves Connected via Logout.
	OnLogout(id ID)
	// ToAdmin is called immediately before an administrative message is
	// sent, letting the application add custom authentication fields to
	// Logon (mirrors quickfix's ToAdmin).
	ToAdmin(msg *message.Message, id ID)
	// FromAdmin is called after an administrative message passes
	// structural validation, before the session applies it.
	FromAdmin(msg *message.Message, id ID) error
	// ToApp is called immediately before an application message is sent.
	ToApp(msg *message.Message, id ID) error
	// FromApp is called for every inbound application (non-administrative)
	// message, in strict NextIn order (spec invariant 5).
	FromApp(msg *message.Message, id ID) error
}

// NopApplication is a zero-value Application useful in tests and as an
// embeddable base for applications that only care about a subset of
// hooks.
type NopApplication struct{}

func (NopApplication) OnCreate(ID)                             {}
func (NopApplication) OnLogon(ID)                               {}
func (NopApplication) OnLogout(ID)                              {}
func (NopApplication) ToAdmin(*message.Message, ID)              {}
func (NopApplication) FromAdmin(*message.Message, ID) error      { return nil }
func (NopApplication) ToApp(*message.Message, ID) error          { return nil }
func (NopApplication) FromApp(*message.Message, ID) error        { return nil }
