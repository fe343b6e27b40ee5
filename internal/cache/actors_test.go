package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeActorFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestKnownActors_LoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	cfg := ActorsConfig{
		DeployersFile: writeActorFile(t, dir, "deployers.txt", "# known ruggers\ndep1\ndep2\n\n"),
		SnipersFile:   writeActorFile(t, dir, "snipers.txt", "snp1\n"),
		TrustedFile:   writeActorFile(t, dir, "trusted.txt", "tru1\n  tru2  \n"),
	}

	k := NewKnownActors(cfg)
	require.NoError(t, k.Load())

	assert.True(t, k.IsDeployer("dep1"))
	assert.True(t, k.IsDeployer("dep2"))
	assert.False(t, k.IsDeployer("# known ruggers"), "comments must be skipped")
	assert.True(t, k.IsSniper("snp1"))
	assert.True(t, k.IsTrusted("tru2"), "whitespace must be trimmed")
	assert.False(t, k.IsSniper("dep1"))

	st := k.Stats()
	assert.Equal(t, 2, st.Deployers)
	assert.Equal(t, 1, st.Snipers)
	assert.Equal(t, 2, st.Trusted)
	assert.Equal(t, int64(6), st.Checks)
}

func TestKnownActors_MissingFileKeepsOtherSets(t *testing.T) {
	dir := t.TempDir()
	cfg := ActorsConfig{
		DeployersFile: filepath.Join(dir, "does-not-exist.txt"),
		SnipersFile:   writeActorFile(t, dir, "snipers.txt", "snp1\n"),
		TrustedFile:   writeActorFile(t, dir, "trusted.txt", "tru1\n"),
	}

	k := NewKnownActors(cfg)
	err := k.Load()

	assert.Error(t, err, "missing deployers file must be reported")
	assert.True(t, k.IsSniper("snp1"), "other registries still load")
	assert.True(t, k.IsTrusted("tru1"))
}

func TestKnownActors_RuntimeAdds(t *testing.T) {
	k := NewKnownActors(DefaultActorsConfig())
	assert.True(t, k.Empty())

	k.AddDeployer("dep-new")
	k.AddSniper("snp-new")
	k.AddTrusted("tru-new")

	assert.False(t, k.Empty())
	assert.True(t, k.IsDeployer("dep-new"))
	assert.True(t, k.IsSniper("snp-new"))
	assert.True(t, k.IsTrusted("tru-new"))
}

func TestKnownActors_ReloadReplacesSets(t *testing.T) {
	dir := t.TempDir()
	path := writeActorFile(t, dir, "deployers.txt", "old1\nold2\n")
	cfg := ActorsConfig{
		DeployersFile: path,
		SnipersFile:   writeActorFile(t, dir, "s.txt", ""),
		TrustedFile:   writeActorFile(t, dir, "t.txt", ""),
	}

	k := NewKnownActors(cfg)
	require.NoError(t, k.Load())
	require.True(t, k.IsDeployer("old1"))

	// Rewrite the registry and reload: old entries must vanish.
	require.NoError(t, os.WriteFile(path, []byte("new1\n"), 0o644))
	require.NoError(t, k.Load())

	assert.True(t, k.IsDeployer("new1"))
	assert.False(t, k.IsDeployer("old1"), "reload replaces, not merges")
}
