package config_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/chainbft/blockexec/internal/config"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := config.Default()
	cfg.ListenAddr = "0.0.0.0:7000"
	cfg.TermLength = 42

	require.NoError(t, config.Save(fs, "/etc/blockexecd/config.yaml", cfg))

	got, err := config.Load(fs, "/etc/blockexecd/config.yaml")
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}

func TestSaveCreatesParentDirectories(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, config.Save(fs, "/a/b/c/config.yaml", config.Default()))

	exists, err := afero.DirExists(fs, "/a/b/c")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestLoadPartialFileOverlaysDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/config.yaml", []byte("listen_addr: 10.0.0.1:1234\n"), 0o644))

	got, err := config.Load(fs, "/config.yaml")
	require.NoError(t, err)

	want := config.Default()
	want.ListenAddr = "10.0.0.1:1234"
	require.Equal(t, want, got)
}

func TestLoadRejectsZeroTermLength(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/config.yaml", []byte("term_length: 0\n"), 0o644))

	_, err := config.Load(fs, "/config.yaml")
	require.Error(t, err)
}

func TestLoadRejectsEmptyDataDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/config.yaml", []byte("data_dir: \"\"\n"), 0o644))

	_, err := config.Load(fs, "/config.yaml")
	require.Error(t, err)
}

func TestLoadMissingFileFails(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := config.Load(fs, "/nope.yaml")
	require.Error(t, err)
}
