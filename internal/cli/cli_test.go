package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightnote/admission/internal/config"
)

func TestRenderPolicies(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)

	var buf bytes.Buffer
	renderPolicies(&buf, cfg)

	out := buf.String()
	assert.Contains(t, out, "analyze")
	assert.Contains(t, out, "rewrite")
	assert.Contains(t, out, "1m0s")
	assert.Contains(t, out, "per process")
}

func TestPoliciesCommandReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lightnote.yaml")
	yaml := "limits:\n  analyze:\n    quota: 42\nstore:\n  driver: redis\nredis:\n  addr: cache:6379\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"policies", "--config", path})
	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "cache:6379")
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")

	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "lightnote 1.2.3 (commit abc123, built 2026-01-01)\n", buf.String())
}
