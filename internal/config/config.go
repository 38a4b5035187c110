// Package config loads the fabric's start-time tunables from an optional
// TOML file.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

// Tunables are the only knobs the fabric exposes: node capacities and the
// three timer intervals. Zero-value fields are replaced by defaults.
type Tunables struct {
	Croot             int
	Cnode             int
	HeartbeatSeconds  int
	SweepSeconds      int
	RebalanceSeconds  int
}

// Defaults returns the built-in tunable constants.
func Defaults() Tunables {
	return Tunables{
		Croot:            2,
		Cnode:            2,
		HeartbeatSeconds: 15,
		SweepSeconds:     5,
		RebalanceSeconds: 8,
	}
}

// Load reads an optional TOML file and overlays it onto Defaults(). A
// missing file is not an error: the defaults are returned unchanged.
func Load(path string) (Tunables, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return t, nil
	}
	var file Tunables
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return t, xerrors.Errorf("decoding %s: %v", path, err)
	}
	if file.Croot > 0 {
		t.Croot = file.Croot
	}
	if file.Cnode > 0 {
		t.Cnode = file.Cnode
	}
	if file.HeartbeatSeconds > 0 {
		t.HeartbeatSeconds = file.HeartbeatSeconds
	}
	if file.SweepSeconds > 0 {
		t.SweepSeconds = file.SweepSeconds
	}
	if file.RebalanceSeconds > 0 {
		t.RebalanceSeconds = file.RebalanceSeconds
	}
	return t, nil
}

// Heartbeat is T_heartbeat as a time.Duration.
func (t Tunables) Heartbeat() time.Duration {
	return time.Duration(t.HeartbeatSeconds) * time.Second
}

// Sweep is T_heartbeat_sweep as a time.Duration.
func (t Tunables) Sweep() time.Duration {
	return time.Duration(t.SweepSeconds) * time.Second
}

// Rebalance is T_rebalance as a time.Duration.
func (t Tunables) Rebalance() time.Duration {
	return time.Duration(t.RebalanceSeconds) * time.Second
}

// Port returns the PORT env var, defaulting to 3000.
func Port() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return "3000"
}
