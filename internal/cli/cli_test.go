package cli

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/kjlockhart/safer/pkg/config"
	"github.com/kjlockhart/safer/pkg/crypto/kdf"
	"github.com/kjlockhart/safer/pkg/crypto/safer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	capturedPacket  = "86f0cc032822b859cfd8e6351827b7fbf27ccf5c3fd04d33"
	capturedPayload = "0c062e0976010a033c0008004c4f47494e00"
)

// setupEnv points the config at a fresh directory and clears the
// environment variables that would bypass prompts.
func setupEnv(t *testing.T) string {
	t.Helper()
	color.NoColor = true
	dir := t.TempDir()
	t.Setenv("SAFER_CONFIG", filepath.Join(dir, "config.json"))
	for _, key := range []string{PassphraseEnv, PasswordEnv} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand("test")

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestBlockCommand(t *testing.T) {
	setupEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"encrypt default config", []string{"block", "encrypt", "3132333435363738", "-p", deltaPassphrase}, "30e3c537c84f7d4c"},
		{"decrypt profile", []string{"block", "decrypt", "30e3c537c84f7d4c", "--profile", config.DeltaProfile, "-p", deltaPassphrase}, "3132333435363738"},
		{"grouped hex", []string{"block", "decrypt", "86 f0 cc 03 28 22 b8 59", "-p", deltaPassphrase}, "0c062e0976010a03"},
		{"basic schedule", []string{"block", "encrypt", "3132333435363738", "-p", deltaPassphrase, "--rounds", "11", "--basic"}, "115d134f3e8fea55"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := run(t, "", tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"\n", out)
		})
	}
}

func TestBlockCommandJSON(t *testing.T) {
	setupEnv(t)

	out, _, err := run(t, "", "block", "encrypt", "0000000000000000", "-p", deltaPassphrase, "--json")
	require.NoError(t, err)

	var result BlockResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "encrypt", result.Op)
	assert.Equal(t, safer.SK128Rounds, result.Rounds)
	assert.Equal(t, "206b62af702b79d3", result.Output)
}

func TestBlockCommandPrompt(t *testing.T) {
	setupEnv(t)

	out, stderr, err := run(t, deltaPassphrase+"\n", "block", "encrypt", "3132333435363738")
	require.NoError(t, err)
	assert.Equal(t, "30e3c537c84f7d4c\n", out)
	assert.Contains(t, stderr, "Enter passphrase")
}

func TestBlockCommandErrors(t *testing.T) {
	setupEnv(t)

	_, _, err := run(t, "", "block", "encrypt", "0011", "-p", "x")
	assert.Error(t, err)

	_, _, err = run(t, "", "block", "encrypt", "0011223344556677", "-p", "x", "--rounds", "14")
	assert.ErrorIs(t, err, config.ErrInvalidRounds)

	_, _, err = run(t, "", "block", "encrypt", "0011223344556677", "-p", "x", "--profile", "missing")
	assert.ErrorIs(t, err, config.ErrProfileNotFound)

	_, _, err = run(t, "", "block", "encrypt", "0011223344556677", "-p", "x", "--kdf", "pbkdf2")
	assert.ErrorIs(t, err, kdf.ErrSaltRequired)
}

func TestTraceFlag(t *testing.T) {
	setupEnv(t)

	_, stderr, err := run(t, "", "block", "encrypt", "3132333435363738", "-p", deltaPassphrase, "--trace")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"msg":"cipher state"`)
	assert.Contains(t, stderr, `"stage":"whiten"`)
	assert.Contains(t, stderr, `"state":"30e3c537c84f7d4c"`)
}

func TestDecryptCapturedPacket(t *testing.T) {
	dir := setupEnv(t)

	packet, err := hex.DecodeString(capturedPacket)
	require.NoError(t, err)
	input := filepath.Join(dir, "capture.bin")
	require.NoError(t, os.WriteFile(input, packet, 0600))

	out, _, err := run(t, "", "decrypt", "-i", input, "-p", deltaPassphrase)
	require.NoError(t, err)
	assert.Equal(t, capturedPayload, hex.EncodeToString([]byte(out)))

	output := filepath.Join(dir, "payload.bin")
	_, stderr, err := run(t, "", "decrypt", "-i", input, "-o", output, "-p", deltaPassphrase)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Decrypted to")

	payload, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "LOGIN")
}

func TestEncryptDecryptArmor(t *testing.T) {
	setupEnv(t)

	armored, _, err := run(t, "", "encrypt", "--text", "hello, controller", "--armor", "-p", "secret")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(armored, "\n"))

	_, _, err = run(t, armored, "decrypt", "--armor")
	assert.ErrorIs(t, err, errNoPassphrase)

	t.Setenv(PassphraseEnv, "secret")
	out, _, err := run(t, armored, "decrypt", "--armor")
	require.NoError(t, err)
	assert.Equal(t, "hello, controller", out)

	t.Setenv(PassphraseEnv, "wrong")
	out, _, err = run(t, armored, "decrypt", "--armor")
	if err == nil {
		assert.NotEqual(t, "hello, controller", out)
	}
}

func TestArmorFromConfig(t *testing.T) {
	setupEnv(t)
	cm, err := config.NewConfigManager()
	require.NoError(t, err)
	cm.GetConfig().Defaults.Armor = true
	require.NoError(t, cm.SaveConfig())

	armored, _, err := run(t, "", "encrypt", "--text", "hello, controller", "-p", "secret")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(armored))
	require.NoError(t, err)
	assert.Len(t, raw, 24)

	t.Setenv(PassphraseEnv, "secret")
	out, _, err := run(t, armored, "decrypt")
	require.NoError(t, err)
	assert.Equal(t, "hello, controller", out)

	framed, _, err := run(t, "", "encrypt", "--text", "hello, controller", "--armor=false")
	require.NoError(t, err)
	assert.Equal(t, raw, []byte(framed))
}

func TestRoundsKeepProfileSchedule(t *testing.T) {
	setupEnv(t)
	cm, err := config.NewConfigManager()
	require.NoError(t, err)
	require.NoError(t, cm.AddProfile(&config.Profile{Name: "k128", Rounds: 8, KDF: kdf.MethodLegacy}))

	k1, k2 := safer.DeriveHalves(deltaPassphrase)
	flat := func(args ...string) string {
		t.Helper()
		out, _, err := run(t, "", append([]string{"schedule", "-p", deltaPassphrase, "--json"}, args...)...)
		require.NoError(t, err)
		var result ScheduleResult
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		return result.Flat
	}

	basic := hex.EncodeToString(safer.Expand(k1, k2, 6, false).Bytes())
	strong := hex.EncodeToString(safer.Expand(k1, k2, 6, true).Bytes())

	assert.Equal(t, basic, flat("--profile", "k128", "--rounds", "6"))
	assert.Equal(t, basic, flat("--profile", config.DeltaProfile, "--rounds", "6", "--basic"))
	assert.Equal(t, strong, flat("--profile", config.DeltaProfile, "--rounds", "6"))
}

func TestEncryptMatchesCapturedPacket(t *testing.T) {
	setupEnv(t)

	payload, err := hex.DecodeString(capturedPayload)
	require.NoError(t, err)

	t.Setenv(PassphraseEnv, deltaPassphrase)
	out, _, err := run(t, string(payload), "encrypt", "--profile", config.DeltaProfile)
	require.NoError(t, err)
	assert.Equal(t, capturedPacket, hex.EncodeToString([]byte(out)))
}

func TestScheduleCommand(t *testing.T) {
	setupEnv(t)

	out, _, err := run(t, "", "schedule", "-p", deltaPassphrase, "--json")
	require.NoError(t, err)

	var result ScheduleResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, safer.SK128Rounds, result.Rounds)
	assert.Len(t, result.Keys, safer.SK128Rounds)
	assert.Equal(t, hex.EncodeToString(safer.NewSK128(deltaPassphrase).Bytes()), result.Flat)
	assert.Equal(t, "d310ac6898573bbb", result.Keys[0].Mix)

	flat := "01090a0b0c0d0e0f101e83533eb6a0f5c68900e65934fa4b4a"
	out, _, err = run(t, "", "schedule", "--parse", flat, "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.Rounds)
	assert.Equal(t, flat, result.Flat)

	_, _, err = run(t, "", "schedule", "--parse", "0201020304050607")
	assert.ErrorIs(t, err, safer.ErrMalformedSchedule)

	out, _, err = run(t, "", "schedule", "-p", deltaPassphrase, "--rounds", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY SCHEDULE (2 rounds)")
	assert.Contains(t, out, "final")
}

func TestDeriveCommand(t *testing.T) {
	setupEnv(t)

	out, _, err := run(t, "", "derive", "-p", deltaPassphrase, "--json")
	require.NoError(t, err)

	var result DeriveResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "legacy", result.KDF)
	assert.Equal(t, "54fd49756c465513", result.K1)
	assert.Equal(t, "d310ac6898573bbb", result.K2)

	for _, flag := range []string{"--keyfile=k.json", "--rounds=8", "--basic"} {
		_, _, err := run(t, "", "derive", "-p", deltaPassphrase, flag)
		assert.ErrorContains(t, err, "unknown flag", flag)
	}
}

// cheapConfig writes a config whose hardened KDF costs suit unit tests.
func cheapConfig(t *testing.T) {
	t.Helper()
	cm, err := config.NewConfigManager()
	require.NoError(t, err)
	cm.GetConfig().Security.KDFParams = kdf.Params{Iterations: 1000, Time: 1, Memory: 1024, Threads: 1}
	require.NoError(t, cm.SaveConfig())
}

func TestKeygenAndKeyfile(t *testing.T) {
	dir := setupEnv(t)
	cheapConfig(t)
	keyPath := filepath.Join(dir, "delta.json")

	t.Setenv(PasswordEnv, "file password")
	out, _, err := run(t, "", "keygen", "--profile", config.DeltaProfile, "-p", deltaPassphrase, "-o", keyPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Key file written")

	out, _, err = run(t, "", "block", "encrypt", "3132333435363738", "--keyfile", keyPath)
	require.NoError(t, err)
	assert.Equal(t, "30e3c537c84f7d4c\n", out)

	_, _, err = run(t, "", "keygen", "-p", deltaPassphrase, "-o", keyPath)
	assert.Error(t, err, "existing key file needs --force")

	out, _, err = run(t, "", "keygen", "-p", "other", "--kdf", "argon2id", "-o", keyPath, "--force", "--json")
	require.NoError(t, err)
	var result KeygenResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "argon2id", result.KDF)
	assert.Len(t, result.Salt, 2*kdf.SaltSize)

	out, _, err = run(t, "", "block", "encrypt", "3132333435363738", "--keyfile", keyPath)
	require.NoError(t, err)
	assert.NotEqual(t, "30e3c537c84f7d4c\n", out, "--force must replace the old key")

	t.Setenv(PasswordEnv, "wrong password")
	_, _, err = run(t, "", "block", "encrypt", "3132333435363738", "--keyfile", keyPath)
	assert.Error(t, err)
}

func TestSelfTestCommand(t *testing.T) {
	setupEnv(t)

	out, _, err := run(t, "", "selftest")
	require.NoError(t, err)
	assert.Contains(t, out, "captured packet")
	assert.NotContains(t, out, "❌")

	out, _, err = run(t, "", "selftest", "--json")
	require.NoError(t, err)
	var results []CheckResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	for _, r := range results {
		assert.True(t, r.Passed, r.Name)
	}
}

func TestConfigCommands(t *testing.T) {
	setupEnv(t)

	out, _, err := run(t, "", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	_, _, err = run(t, "", "config", "init")
	assert.Error(t, err)
	_, _, err = run(t, "", "config", "init", "--force")
	assert.NoError(t, err)

	out, _, err = run(t, "", "config", "show")
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, safer.SK128Rounds, cfg.Defaults.Rounds)

	_, _, err = run(t, "", "config", "profiles", "add", "lab", "--rounds", "6", "--basic")
	require.NoError(t, err)

	out, _, err = run(t, "", "config", "profiles")
	require.NoError(t, err)
	assert.Contains(t, out, config.DeltaProfile)
	assert.Contains(t, out, "lab  rounds=6 strengthened=false kdf=legacy")

	k1, k2 := safer.DeriveHalves("x")
	want := safer.Expand(k1, k2, 6, false).EncryptBlock(safer.Block{})
	out, _, err = run(t, "", "block", "encrypt", "0000000000000000", "--profile", "lab", "-p", "x")
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:])+"\n", out)

	_, _, err = run(t, "", "config", "profiles", "delete", config.DeltaProfile)
	assert.ErrorIs(t, err, config.ErrBuiltinProfile)
	_, _, err = run(t, "", "config", "profiles", "delete", "lab")
	assert.NoError(t, err)
}

func TestKeygenPasswordPrompt(t *testing.T) {
	dir := setupEnv(t)
	cheapConfig(t)
	keyPath := filepath.Join(dir, "prompted.json")

	_, _, err := run(t, "one\ntwo\n", "keygen", "-p", deltaPassphrase, "-o", keyPath)
	assert.ErrorIs(t, err, errPasswordMismatch)

	_, stderr, err := run(t, "same\nsame\n", "keygen", "-p", deltaPassphrase, "-o", keyPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Confirm key file password")

	out, _, err := run(t, "same\n", "block", "encrypt", "3132333435363738", "--keyfile", keyPath)
	require.NoError(t, err)
	assert.Equal(t, "30e3c537c84f7d4c\n", out)
}

func TestReadLine(t *testing.T) {
	r := strings.NewReader("first\r\nsecond\nlast")

	line, err := readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "first\r", string(line))

	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "second", string(line))

	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "last", string(line))

	_, err = readLine(r)
	assert.Error(t, err)
}
