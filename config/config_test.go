package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv(envLookup(nil))
	assert.Equal(t, "kubectl", cfg.KubectlBin)
	assert.False(t, cfg.KillSwitchSet)
	assert.Empty(t, cfg.LicensePath)
}

func TestFromEnv_ReadsAllVariables(t *testing.T) {
	cfg := FromEnv(envLookup(map[string]string{
		EnvKubectl:        "/usr/local/bin/kubectl",
		EnvKillSwitch:     "1",
		EnvKillSwitchFile: "/run/kill",
		EnvLicensePath:    "/etc/tg/license.json",
		EnvPublicKeysPath: "/etc/tg/keys.json",
	}))
	assert.Equal(t, "/usr/local/bin/kubectl", cfg.KubectlBin)
	assert.True(t, cfg.KillSwitchSet)
	assert.Equal(t, "1", cfg.KillSwitchValue)
	assert.Equal(t, "/run/kill", cfg.KillSwitchFile)
	assert.Equal(t, "/etc/tg/license.json", cfg.LicensePath)
	assert.Equal(t, "/etc/tg/keys.json", cfg.PublicKeysPath)
}

func TestEvaluateKillSwitch_EnvTruthyValues(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"on", true},
		{"anything", true},
		{"0", false},
		{"false", false},
		{"no", false},
		{"off", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run("value "+tc.value, func(t *testing.T) {
			cfg := Config{KillSwitchValue: tc.value, KillSwitchSet: true}
			state := cfg.EvaluateKillSwitch()
			assert.Equal(t, tc.want, state.Active)
			if tc.want {
				assert.Equal(t, KillSwitchEnvSignal, state.Signal)
			}
			assert.True(t, state.Reliable)
		})
	}
}

func TestEvaluateKillSwitch_FileMissing_Inactive(t *testing.T) {
	cfg := Config{KillSwitchFile: filepath.Join(t.TempDir(), "absent")}
	state := cfg.EvaluateKillSwitch()
	assert.False(t, state.Active)
	assert.True(t, state.Reliable)
}

func TestEvaluateKillSwitch_FileTruthy_Active(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kill")
	require.NoError(t, os.WriteFile(path, []byte("1\n"), 0o644))
	cfg := Config{KillSwitchFile: path}

	state := cfg.EvaluateKillSwitch()

	assert.True(t, state.Active)
	assert.Equal(t, KillSwitchFileSignal, state.Signal)
}

func TestEvaluateKillSwitch_FileFalsy_Inactive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kill")
	require.NoError(t, os.WriteFile(path, []byte("off"), 0o644))
	cfg := Config{KillSwitchFile: path}
	assert.False(t, cfg.EvaluateKillSwitch().Active)
}

func TestEvaluateKillSwitch_UnreadableFile_FailsClosed(t *testing.T) {
	// GIVEN a kill-switch path that exists but cannot be read as a file
	cfg := Config{KillSwitchFile: t.TempDir()}

	state := cfg.EvaluateKillSwitch()

	// THEN the switch reads active and the signal marks it unreliable
	assert.True(t, state.Active)
	assert.False(t, state.Reliable)
	assert.Equal(t, KillSwitchUnreliableSignal, state.Signal)
}

func TestEvaluateKillSwitch_EnvFalsyDoesNotMaskFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kill")
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o644))
	cfg := Config{KillSwitchValue: "0", KillSwitchSet: true, KillSwitchFile: path}
	assert.True(t, cfg.EvaluateKillSwitch().Active)
}
