package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blockwell/agentd/internal/config"
	"github.com/stretchr/testify/require"
)

func TestReadFileParsesKeyValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentd.conf")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nlisten = 127.0.0.1:4931\n\nloglevel=info\n"), 0o644))

	s, err := config.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:4931", s["listen"])
	require.Equal(t, "info", s["loglevel"])
}

func TestReadFileRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentd.conf")
	require.NoError(t, os.WriteFile(path, []byte("not-a-kv-line\n"), 0o644))

	_, err := config.ReadFile(path)
	require.Error(t, err)
}

func TestResolvePrefixDirDefaultsWhenUnset(t *testing.T) {
	b := config.New()
	b.ResolvePrefixDir("/opt/agentd")
	require.Equal(t, "/opt/agentd", b.PrefixDir)

	b2 := config.New().SetPrefixDir("/custom")
	b2.ResolvePrefixDir("/opt/agentd")
	require.Equal(t, "/custom", b2.PrefixDir)
}
