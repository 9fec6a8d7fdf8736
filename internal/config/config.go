// Package config loads engine settings from a YAML file via
// spf13/viper, the settings-loading library the teacher and
// Aidin1998-finalex both depend on directly.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/kprime/fixengine/session"
	"github.com/kprime/fixengine/transport"
)

// TransportSettings is the YAML shape for one session's transport block.
type TransportSettings struct {
	UseTLS            bool          `mapstructure:"use_tls"`
	CertFile          string        `mapstructure:"cert_file"`
	KeyFile           string        `mapstructure:"key_file"`
	CAFile            string        `mapstructure:"ca_file"`
	VerifyPeer        bool          `mapstructure:"verify_peer"`
	BufferSize        int           `mapstructure:"buffer_size"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
}

func (t TransportSettings) toTransportConfig() transport.Config {
	return transport.Config{
		UseTLS:            t.UseTLS,
		CertFile:          t.CertFile,
		KeyFile:           t.KeyFile,
		CAFile:            t.CAFile,
		VerifyPeer:        t.VerifyPeer,
		BufferSize:        t.BufferSize,
		ConnectionTimeout: t.ConnectionTimeout,
	}
}

// SessionSettings is the YAML shape for one [[sessions]] entry (spec §6
// "Session configuration (enumerated)").
type SessionSettings struct {
	BeginString  string `mapstructure:"begin_string"`
	SenderCompID string `mapstructure:"sender_comp_id"`
	TargetCompID string `mapstructure:"target_comp_id"`
	TargetAddr   string `mapstructure:"target_addr"`
	HeartBtInt   int    `mapstructure:"heart_bt_int"`
	Role         string `mapstructure:"role"` // "initiator" or "acceptor"

	ResetOnLogon      bool `mapstructure:"reset_on_logon"`
	ResetOnLogout     bool `mapstructure:"reset_on_logout"`
	ResetOnDisconnect bool `mapstructure:"reset_on_disconnect"`

	LogonTimeout      time.Duration     `mapstructure:"logon_timeout"`
	ReconnectInterval time.Duration     `mapstructure:"reconnect_interval"`
	Transport         TransportSettings `mapstructure:"transport"`
}

func (s SessionSettings) toSessionConfig() (session.Config, error) {
	var role session.Role
	switch s.Role {
	case "initiator", "":
		role = session.RoleInitiator
	case "acceptor":
		role = session.RoleAcceptor
	default:
		return session.Config{}, fmt.Errorf("config: unknown session role %q", s.Role)
	}

	return session.Config{
		BeginString:       s.BeginString,
		SenderCompID:      s.SenderCompID,
		TargetCompID:      s.TargetCompID,
		TargetAddr:        s.TargetAddr,
		HeartBtInt:        s.HeartBtInt,
		Role:              role,
		ResetOnLogon:      s.ResetOnLogon,
		ResetOnLogout:     s.ResetOnLogout,
		ResetOnDisconnect: s.ResetOnDisconnect,
		Transport:         s.Transport.toTransportConfig(),
		LogonTimeout:      s.LogonTimeout,
		ReconnectInterval: s.ReconnectInterval,
	}, nil
}

// Settings is the full YAML document: engine-level fields plus a
// [[sessions]] array.
type Settings struct {
	StoreDirectory string            `mapstructure:"store_directory"`
	ListenAddr     string            `mapstructure:"listen_addr"`
	LogDirectory   string            `mapstructure:"log_directory"`
	LogLevel       string            `mapstructure:"log_level"`
	LogEvents      bool              `mapstructure:"log_events"`
	LogMessages    bool              `mapstructure:"log_messages"`
	Sessions       []SessionSettings `mapstructure:"sessions"`
}

// Load reads and parses the settings file at path using viper, matching
// the teacher's own viper-based configuration loading.
func Load(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return s, nil
}

// SessionConfigs converts every parsed SessionSettings into a
// session.Config, failing on the first invalid role.
func (s Settings) SessionConfigs() ([]session.Config, error) {
	out := make([]session.Config, 0, len(s.Sessions))
	for i, ss := range s.Sessions {
		sc, err := ss.toSessionConfig()
		if err != nil {
			return nil, fmt.Errorf("config: sessions[%d]: %w", i, err)
		}
		out = append(out, sc)
	}
	return out, nil
}
