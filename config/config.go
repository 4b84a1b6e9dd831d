// Package config carries environment-derived settings into the core.
// Reading the environment happens only here, at the outermost adapter;
// components receive explicit values and never touch os.Getenv themselves.
package config

import "os"

// Environment variable names consumed by the CLI adapter.
const (
	EnvKubectl        = "KUBECTL"
	EnvKillSwitch     = "TRAINGUARD_KILL_SWITCH"
	EnvKillSwitchFile = "TRAINGUARD_KILL_SWITCH_FILE"
	EnvLicensePath    = "TRAINGUARD_LICENSE_PATH"
	EnvPublicKeysPath = "TRAINGUARD_LICENSE_PUBLIC_KEYS_PATH"
)

// Config is the environment-derived configuration snapshot.
type Config struct {
	KubectlBin string

	// KillSwitchSet distinguishes "variable absent" from "set to a value".
	KillSwitchValue string
	KillSwitchSet   bool
	KillSwitchFile  string

	LicensePath    string
	PublicKeysPath string
}

// FromEnv snapshots the process environment using lookup; pass os.LookupEnv
// in production and a map-backed closure in tests.
func FromEnv(lookup func(string) (string, bool)) Config {
	cfg := Config{KubectlBin: "kubectl"}
	if v, ok := lookup(EnvKubectl); ok && v != "" {
		cfg.KubectlBin = v
	}
	cfg.KillSwitchValue, cfg.KillSwitchSet = lookup(EnvKillSwitch)
	if v, ok := lookup(EnvKillSwitchFile); ok {
		cfg.KillSwitchFile = v
	}
	if v, ok := lookup(EnvLicensePath); ok {
		cfg.LicensePath = v
	}
	if v, ok := lookup(EnvPublicKeysPath); ok {
		cfg.PublicKeysPath = v
	}
	return cfg
}

// Default reads the real process environment.
func Default() Config {
	return FromEnv(os.LookupEnv)
}
