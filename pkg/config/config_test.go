package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String(KeyFolder, "", "")
	fs.String(KeyOutput, "", "")
	fs.Int(KeyWorkers, 0, "")
	fs.Bool(KeyDryRun, false, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func missingDotEnv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "none.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Sources{DotEnvFile: missingDotEnv(t)})
	require.NoError(t, err)

	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, "Local", cfg.Timezone)
	assert.Empty(t, cfg.Folder)
	assert.False(t, cfg.DryRun)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "reorder.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("folder: /from/file\noutput: /out/file\nworkers: 3\ndry-run: true\n"), 0o644))

	t.Setenv("PHOTO_REORDER_OUTPUT", "/out/env")

	cfg, err := Load(Sources{
		Flags:      newFlags(t, "--folder", "/from/flag"),
		ConfigFile: configFile,
		DotEnvFile: missingDotEnv(t),
	})
	require.NoError(t, err)

	assert.Equal(t, "/from/flag", cfg.Folder, "flag beats file")
	assert.Equal(t, "/out/env", cfg.Output, "env beats file")
	assert.Equal(t, 3, cfg.Workers, "file beats flag default")
	assert.True(t, cfg.DryRun)
}

func TestLoad_DashedKeysFromEnv(t *testing.T) {
	t.Setenv("PHOTO_REORDER_DRY_RUN", "true")

	cfg, err := Load(Sources{Flags: newFlags(t), DotEnvFile: missingDotEnv(t)})
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
}

func TestLoad_DotEnv(t *testing.T) {
	const key = "PHOTO_REORDER_TIMEZONE"
	require.Empty(t, os.Getenv(key))
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	dotEnv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotEnv, []byte(key+"=UTC\n"), 0o644))

	cfg, err := Load(Sources{DotEnvFile: dotEnv})
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Timezone)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(Sources{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml"), DotEnvFile: missingDotEnv(t)})
	require.Error(t, err)
}

func TestLoad_NegativeWorkers(t *testing.T) {
	_, err := Load(Sources{Flags: newFlags(t, "--workers=-1"), DotEnvFile: missingDotEnv(t)})
	require.Error(t, err)
}

func TestConfig_Location(t *testing.T) {
	loc, err := (&Config{}).Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = (&Config{Timezone: "UTC"}).Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = (&Config{Timezone: "Mars/Olympus_Mons"}).Location()
	require.Error(t, err)
}
