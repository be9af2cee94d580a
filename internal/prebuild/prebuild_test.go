package prebuild

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlol/chromabind/internal/skins"
)

func TestIsWithinDir(t *testing.T) {
	assert.True(t, isWithinDir("/a/b", "/a/b/c"))
	assert.True(t, isWithinDir("/a/b", "/a/b/c/d.txt"))
	assert.False(t, isWithinDir("/a/b", "/a/c"))
	assert.False(t, isWithinDir("/a/b", "/a/b/../../etc/passwd"))
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestExtractZip_ExtractsNormalEntries(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "mod.zip")
	writeZip(t, zipPath, map[string]string{
		"META/info.json": `{"name":"test"}`,
		"WAD/champ.wad":  "binary-ish content",
	})

	destDir := filepath.Join(dir, "out")
	require.NoError(t, extractZip(zipPath, destDir))

	content, err := os.ReadFile(filepath.Join(destDir, "META", "info.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"test"}`, string(content))
}

func TestExtractZip_RejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")
	writeZip(t, zipPath, map[string]string{
		"../../escaped.txt": "pwned",
	})

	destDir := filepath.Join(dir, "out")
	err := extractZip(zipPath, destDir)
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "escaped.txt"))
	assert.True(t, os.IsNotExist(statErr), "zip-slip entry must never land outside the destination")
}

func TestCleanupAllOverlays_RemovesEverything(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Ahri_Midnight Ahri"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Zed_Shockblade Zed"), 0o755))

	b := New(t.TempDir(), t.TempDir(), root, skins.New(t.TempDir(), nil))
	b.CleanupAllOverlays()

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanupUnusedOverlays_KeepsUsedSkinOnly(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Ahri_Midnight Ahri"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Ahri_Foxfire Ahri"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Zed_Shockblade Zed"), 0o755))

	b := New(t.TempDir(), t.TempDir(), root, skins.New(t.TempDir(), nil))
	b.CleanupUnusedOverlays("Ahri", "Midnight Ahri")

	_, err := os.Stat(filepath.Join(root, "Ahri_Midnight Ahri"))
	assert.NoError(t, err, "the used skin's overlay must survive cleanup")
	_, err = os.Stat(filepath.Join(root, "Ahri_Foxfire Ahri"))
	assert.True(t, os.IsNotExist(err), "other overlays for the same champion must be removed")
	_, err = os.Stat(filepath.Join(root, "Zed_Shockblade Zed"))
	assert.NoError(t, err, "another champion's overlay must be untouched")
}

func TestPrebuiltOverlayPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Ahri_Midnight Ahri"), 0o755))

	b := New(t.TempDir(), t.TempDir(), root, skins.New(t.TempDir(), nil))

	path, ok := b.PrebuiltOverlayPath("Ahri", "Midnight Ahri")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "Ahri_Midnight Ahri"), path)

	_, ok = b.PrebuiltOverlayPath("Ahri", "No Such Skin")
	assert.False(t, ok)
}

func TestCancelCurrentBuild_NoopWhenIdle(t *testing.T) {
	b := New(t.TempDir(), t.TempDir(), t.TempDir(), skins.New(t.TempDir(), nil))
	assert.NotPanics(t, func() { b.CancelCurrentBuild() })
}

func TestPrebuild_NoUnownedSkinsReturnsFalse(t *testing.T) {
	skinsRoot := t.TempDir()
	resolver := skins.New(skinsRoot, nil)
	b := New(t.TempDir(), t.TempDir(), t.TempDir(), resolver)

	ok := b.Prebuild("Ahri", 103, nil)
	assert.False(t, ok, "a champion with no on-disk archives has nothing to pre-build")
}

func TestPrebuild_MissingModToolsStillCompletesWithoutPanic(t *testing.T) {
	skinsRoot := t.TempDir()
	champDir := filepath.Join(skinsRoot, "103", "103001")
	require.NoError(t, os.MkdirAll(champDir, 0o755))
	// A valid archive, so the job gets past extraction and fails on the
	// missing tool.
	writeZip(t, filepath.Join(champDir, "103001.zip"), map[string]string{"META/info.json": `{}`})

	resolver := skins.New(skinsRoot, nil)
	b := New(t.TempDir(), t.TempDir(), t.TempDir(), resolver)

	ok := b.Prebuild("Ahri", 103, nil)
	assert.False(t, ok, "mkoverlay failures (missing tool) must surface as a failed build, not a panic")
}

func TestRunMkOverlay_NotTiedToCancelableBuildContext(t *testing.T) {
	b := New(t.TempDir(), t.TempDir(), t.TempDir(), skins.New(t.TempDir(), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // the build-level ctx is already cancelled before the call

	err := b.runMkOverlay(ctx, t.TempDir(), t.TempDir(), "mod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mod-tools.exe not found",
		"the subprocess must fail for its own reason, not because the cancelable build ctx was already done")

	// With a tool that exits 0, the already-cancelled build ctx must not
	// stop the subprocess from running to success.
	toolsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(toolsDir, "mod-tools.exe"), []byte("#!/bin/sh\nexit 0\n"), 0o755))
	withTool := New(toolsDir, t.TempDir(), t.TempDir(), skins.New(t.TempDir(), nil))
	assert.NoError(t, withTool.runMkOverlay(ctx, t.TempDir(), t.TempDir(), "mod"),
		"a cancelled build ctx must not cancel the mkoverlay subprocess")
}
