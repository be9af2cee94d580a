// Package namedb resolves champion and skin names to the numeric ids the
// LCU API deals in. Champion data comes from Data Dragon (grounded on the
// teacher's lcu.go fetchChampionMap); skin names come from a per-language
// skin id JSON file shipped alongside the skins archive (grounded on
// original_source/pengu/skin_mapping.py's SkinMapping).
package namedb

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const ddragonURL = "https://ddragon.leagueoflegends.com"

// Champion is a single Data Dragon champion record.
type Champion struct {
	ID   int    // numeric key, e.g. 266 for Aatrox
	Key  string // Data Dragon string id, e.g. "Aatrox"
	Name string // display name, e.g. "Aatrox"
}

// DB holds the champion map and the currently loaded skin-name mapping for
// one language. All lookups are normalized: lower-cased with every space
// removed (see normalize).
type DB struct {
	httpClient *http.Client

	mu            sync.RWMutex
	championsByID map[int]Champion
	championsByName map[string]Champion // normalized name -> champion

	skinsMu       sync.RWMutex
	skinLanguage  string
	skinByName    map[string]int // normalized skin name -> skin id
	skinMappingOK bool
}

// New builds an empty DB. LoadChampions and LoadSkinMapping populate it.
func New() *DB {
	return &DB{
		httpClient:      &http.Client{Timeout: 15 * time.Second},
		championsByID:   make(map[int]Champion),
		championsByName: make(map[string]Champion),
		skinByName:      make(map[string]int),
	}
}

// LoadChampions fetches the latest Data Dragon version and champion list,
// capped at maxChampions entries if maxChampions > 0 (spec.md §6
// --max-champions). Grounded on the teacher's fetchChampionMap.
func (d *DB) LoadChampions(maxChampions int) error {
	verRaw, err := d.httpGet(ddragonURL + "/api/versions.json")
	if err != nil {
		return errors.Wrap(err, "namedb: fetch versions")
	}

	var versions []string
	if err := json.Unmarshal(verRaw, &versions); err != nil || len(versions) == 0 {
		return errors.New("namedb: empty version list")
	}
	version := versions[0]

	champRaw, err := d.httpGet(fmt.Sprintf("%s/cdn/%s/data/en_US/champion.json", ddragonURL, version))
	if err != nil {
		return errors.Wrap(err, "namedb: fetch champion data")
	}

	byID, byName, err := parseChampionData(champRaw, maxChampions)
	if err != nil {
		return errors.Wrap(err, "namedb: parse champion data")
	}

	d.mu.Lock()
	d.championsByID = byID
	d.championsByName = byName
	d.mu.Unlock()

	log.Printf("[namedb] loaded %d champions (data dragon %s)", len(byID), version)
	return nil
}

// parseChampionData decodes a Data Dragon champion.json body into the two
// lookup maps, capped at maxChampions entries (0 = unlimited). Factored out
// of LoadChampions so the parsing/capping logic is testable without a
// network round trip.
func parseChampionData(raw []byte, maxChampions int) (byID map[int]Champion, byName map[string]Champion, err error) {
	var champData struct {
		Data map[string]struct {
			Key  string `json:"key"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &champData); err != nil {
		return nil, nil, err
	}

	byID = make(map[int]Champion, len(champData.Data))
	byName = make(map[string]Champion, len(champData.Data))
	count := 0
	for dragonID, c := range champData.Data {
		if maxChampions > 0 && count >= maxChampions {
			break
		}
		id, err := strconv.Atoi(c.Key)
		if err != nil {
			continue
		}
		champ := Champion{ID: id, Key: dragonID, Name: c.Name}
		byID[id] = champ
		byName[normalize(c.Name)] = champ
		count++
	}
	return byID, byName, nil
}

func (d *DB) httpGet(url string) ([]byte, error) {
	resp, err := d.httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// ChampionByID looks up a champion by its numeric id.
func (d *DB) ChampionByID(id int) (Champion, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.championsByID[id]
	return c, ok
}

// ChampionByName resolves a display name to a champion, exact match on the
// normalized name only (fuzzy matching is a skins.Resolver concern, not
// this one).
func (d *DB) ChampionByName(name string) (Champion, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.championsByName[normalize(name)]
	return c, ok
}

// LoadSkinMapping loads <skinsRoot>/skinid_mapping/<language>/skin_ids.json,
// a flat {"<skin id>": "<skin name>"} map, keyed by normalized name for
// lookup. Missing file is logged and reported, not fatal (grounded on
// SkinMapping.load_mapping's warn-and-return-False behavior).
func (d *DB) LoadSkinMapping(skinsRoot, language string) bool {
	path := filepath.Join(skinsRoot, "skinid_mapping", language, "skin_ids.json")

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[namedb] skin mapping missing: %s", path)
		d.skinsMu.Lock()
		d.skinMappingOK = false
		d.skinsMu.Unlock()
		return false
	}

	var data map[string]string
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("[namedb] failed to parse skin mapping %s: %v", path, err)
		d.skinsMu.Lock()
		d.skinMappingOK = false
		d.skinsMu.Unlock()
		return false
	}

	byName := make(map[string]int, len(data))
	for idStr, name := range data {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		n := normalize(name)
		if n == "" {
			continue
		}
		if _, exists := byName[n]; !exists {
			byName[n] = id
		}
	}

	d.skinsMu.Lock()
	d.skinLanguage = language
	d.skinByName = byName
	d.skinMappingOK = true
	d.skinsMu.Unlock()

	log.Printf("[namedb] loaded %d skin mappings for %q", len(byName), language)
	return true
}

// FindSkinIDByName resolves a skin name to an id: exact normalized match
// first, then substring match in either direction (grounded on
// find_skin_id_by_name's partial-match fallback).
func (d *DB) FindSkinIDByName(skinName string) (int, bool) {
	d.skinsMu.RLock()
	defer d.skinsMu.RUnlock()

	if !d.skinMappingOK {
		return 0, false
	}

	n := normalize(skinName)
	if id, ok := d.skinByName[n]; ok {
		return id, true
	}

	for mapped, id := range d.skinByName {
		if strings.Contains(n, mapped) || strings.Contains(mapped, n) {
			return id, true
		}
	}
	return 0, false
}

// ClearSkinMapping drops the cached mapping, forcing the next
// FindSkinIDByName-driven caller to reload via LoadSkinMapping.
func (d *DB) ClearSkinMapping() {
	d.skinsMu.Lock()
	d.skinMappingOK = false
	d.skinByName = make(map[string]int)
	d.skinsMu.Unlock()
}

// normalize case-folds and strips every space, not just leading/trailing,
// so names like "Program Vi" and "ProgramVi" compare equal (spec.md §9
// "Fuzzy name matching").
func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}
