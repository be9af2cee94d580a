package lockfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockfile")
	require.NoError(t, os.WriteFile(path, []byte("LeagueClient:2345:54321:shhhh:https"), 0o644))

	lf, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, "LeagueClient", lf.Name)
	assert.Equal(t, 2345, lf.PID)
	assert.Equal(t, 54321, lf.Port)
	assert.Equal(t, "shhhh", lf.Password)
	assert.Equal(t, "https", lf.Protocol)
}

func TestParse_TrimsTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockfile")
	require.NoError(t, os.WriteFile(path, []byte("LeagueClient:1:2:pw:https\r\n"), 0o644))

	lf, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, "https", lf.Protocol)
}

func TestParse_MalformedTooFewFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockfile")
	require.NoError(t, os.WriteFile(path, []byte("LeagueClient:1:2:pw"), 0o644))

	_, err := Parse(path)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParse_MalformedNonNumericPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockfile")
	require.NoError(t, os.WriteFile(path, []byte("LeagueClient:1:notaport:pw:https"), 0o644))

	_, err := Parse(path)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParse_MalformedOutOfRangePort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockfile")
	require.NoError(t, os.WriteFile(path, []byte("LeagueClient:1:70000:pw:https"), 0o644))

	_, err := Parse(path)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFind_ExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockfile")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	found, err := Find(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestFind_EnvVarFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockfile")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	t.Setenv(envVar, path)

	found, err := Find("")
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestFind_NotFound(t *testing.T) {
	t.Setenv(envVar, "")
	_, err := Find(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMtime_TracksModification(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockfile")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	m1, err := Mtime(path)
	require.NoError(t, err)

	future := time.Unix(0, m1).Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))
	m2, err := Mtime(path)
	require.NoError(t, err)

	assert.NotEqual(t, m1, m2)
}
