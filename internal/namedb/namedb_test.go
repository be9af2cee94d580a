package namedb

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_StripsAllSpacesNotJustEdges(t *testing.T) {
	assert.Equal(t, normalize("Miss Fortune"), normalize("MissFortune"))
}

func TestParseChampionData(t *testing.T) {
	raw := []byte(`{
		"data": {
			"Aatrox": {"key": "266", "name": "Aatrox"},
			"Ahri":   {"key": "103", "name": "Ahri"},
			"Akali":  {"key": "84",  "name": "Akali"}
		}
	}`)

	t.Run("unlimited", func(t *testing.T) {
		byID, byName, err := parseChampionData(raw, 0)
		require.NoError(t, err)
		assert.Len(t, byID, 3)
		assert.Equal(t, "Aatrox", byID[266].Name)
		assert.Equal(t, 266, byName["aatrox"].ID)
	})

	t.Run("capped", func(t *testing.T) {
		byID, _, err := parseChampionData(raw, 1)
		require.NoError(t, err)
		assert.Len(t, byID, 1)
	})

	t.Run("malformed", func(t *testing.T) {
		_, _, err := parseChampionData([]byte(`not json`), 0)
		assert.Error(t, err)
	})
}

func TestDB_ChampionLookups(t *testing.T) {
	d := New()
	byID, byName, err := parseChampionData([]byte(`{"data":{"Ahri":{"key":"103","name":"Ahri"}}}`), 0)
	require.NoError(t, err)
	d.mu.Lock()
	d.championsByID = byID
	d.championsByName = byName
	d.mu.Unlock()

	champ, ok := d.ChampionByID(103)
	require.True(t, ok)
	assert.Equal(t, "Ahri", champ.Name)

	champ, ok = d.ChampionByName("  ahri ")
	require.True(t, ok)
	assert.Equal(t, 103, champ.ID)

	_, ok = d.ChampionByID(999)
	assert.False(t, ok)
}

func TestDB_SkinMapping(t *testing.T) {
	dir := t.TempDir()
	writeSkinMapping(t, dir, "en_US", map[string]string{
		"1001": "Justicar Syndra",
		"1002": "Bare Syndra",
	})

	d := New()
	ok := d.LoadSkinMapping(dir, "en_US")
	require.True(t, ok)

	id, ok := d.FindSkinIDByName("Justicar Syndra")
	require.True(t, ok)
	assert.Equal(t, 1001, id)

	// Substring fallback, either direction.
	id, ok = d.FindSkinIDByName("justicar")
	require.True(t, ok)
	assert.Equal(t, 1001, id)

	_, ok = d.FindSkinIDByName("no such skin")
	assert.False(t, ok)

	d.ClearSkinMapping()
	_, ok = d.FindSkinIDByName("Justicar Syndra")
	assert.False(t, ok)
}

func TestDB_SkinMapping_MissingFile(t *testing.T) {
	d := New()
	ok := d.LoadSkinMapping(t.TempDir(), "en_US")
	assert.False(t, ok)
}

func writeSkinMapping(t *testing.T, root, language string, data map[string]string) {
	t.Helper()
	dir := root + "/skinid_mapping/" + language
	req := require.New(t)
	req.NoError(os.MkdirAll(dir, 0o755))
	b, err := json.Marshal(data)
	req.NoError(err)
	req.NoError(os.WriteFile(dir+"/skin_ids.json", b, 0o644))
}
