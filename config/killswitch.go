package config

import (
	"os"
	"strings"
)

// Kill-switch signal identifiers recorded in reports and logs.
const (
	KillSwitchEnvSignal        = "env:" + EnvKillSwitch
	KillSwitchFileSignal       = "file:" + EnvKillSwitchFile
	KillSwitchUnreliableSignal = "kill_switch_unreliable"
)

// KillSwitchState is the evaluated kill-switch signal. Reliable=false means
// the signal could not be read and the switch is reported active (fail
// closed).
type KillSwitchState struct {
	Active   bool   `json:"active"`
	Signal   string `json:"signal,omitempty"`
	Reliable bool   `json:"reliable"`
}

// EvaluateKillSwitch resolves the kill switch from the config snapshot.
// Any set environment value other than an explicit falsy string activates
// the switch. A configured file activates the switch when it holds a truthy
// value; a file that exists but cannot be read counts as active/unreliable,
// never as inactive.
func (c Config) EvaluateKillSwitch() KillSwitchState {
	if c.KillSwitchSet && truthy(c.KillSwitchValue) {
		return KillSwitchState{Active: true, Signal: KillSwitchEnvSignal, Reliable: true}
	}
	if c.KillSwitchFile != "" {
		data, err := os.ReadFile(c.KillSwitchFile)
		if err != nil {
			if os.IsNotExist(err) {
				return KillSwitchState{Active: false, Reliable: true}
			}
			return KillSwitchState{Active: true, Signal: KillSwitchUnreliableSignal, Reliable: false}
		}
		if truthy(string(data)) {
			return KillSwitchState{Active: true, Signal: KillSwitchFileSignal, Reliable: true}
		}
	}
	return KillSwitchState{Active: false, Reliable: true}
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}
