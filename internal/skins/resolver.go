// Package skins implements the Skin Resolver (C6, spec.md §4.6): pure,
// filesystem-snapshot-driven resolution from (championId, skinName?,
// skinId?, ownedSkinSet) to a list of candidate mod archives. Grounded on
// original_source/injection/prebuilder.py's find_champion_skins, adapted
// from its glob-by-directory-name search to the numeric-id archive layout
// spec.md §6 defines.
package skins

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/aaronlol/chromabind/internal/namedb"
)

// Failure kinds named in spec.md §4.6.
var (
	ErrChampionNotKnown = errors.New("skins: champion not known")
	ErrSkinNotResolved  = errors.New("skins: skin not resolved")
	ErrArchiveMissing   = errors.New("skins: archive missing")
)

// Archive is one candidate mod: a skin's base zip, or one of its chromas.
type Archive struct {
	ChampionID int
	SkinID     int
	ChromaID   int // 0 for the base skin archive
	Path       string
	Name       string // the numeric skin id (or chroma id) as a string
}

// IsBase reports whether this archive is a champion's base skin (skinId ==
// championId*1000), which is always owned and never needs injecting
// (spec.md §4.6 step 4, §4.7 find_champion_skins' base-skin-filename rule).
func (a Archive) IsBase() bool {
	return a.SkinID == a.ChampionID*1000
}

// Resolver enumerates mod archives under a configured root directory.
type Resolver struct {
	root  string
	names *namedb.DB
}

// New builds a Resolver rooted at skinsRoot, using names for display-name
// lookups and fuzzy matching.
func New(skinsRoot string, names *namedb.DB) *Resolver {
	return &Resolver{root: skinsRoot, names: names}
}

// ResolveSkinID finds the skinId for a free-text skin name: exact match via
// the name database first, then fuzzy match by normalized edit distance
// above a minimum similarity threshold (spec.md §4.6 step 1).
func (r *Resolver) ResolveSkinID(skinName string) (int, error) {
	if id, ok := r.names.FindSkinIDByName(skinName); ok {
		return id, nil
	}

	best, bestScore := 0, 0.0
	for _, cand := range r.allKnownSkinNames() {
		score := similarity(normalize(skinName), normalize(cand.name))
		if score > bestScore {
			bestScore, best = score, cand.id
		}
	}
	const minSimilarity = 0.72
	if bestScore >= minSimilarity {
		return best, nil
	}
	return 0, ErrSkinNotResolved
}

type namedSkin struct {
	id   int
	name string
}

// allKnownSkinNames walks the skins root collecting (id, filename-derived
// name) pairs as a fuzzy-match corpus when the name database has no exact
// hit. The skins root is the only source of truth for what is installed.
func (r *Resolver) allKnownSkinNames() []namedSkin {
	var out []namedSkin
	champDirs, err := os.ReadDir(r.root)
	if err != nil {
		return out
	}
	for _, cd := range champDirs {
		if !cd.IsDir() {
			continue
		}
		champID, err := strconv.Atoi(cd.Name())
		if err != nil {
			continue
		}
		skinDirs, err := os.ReadDir(filepath.Join(r.root, cd.Name()))
		if err != nil {
			continue
		}
		for _, sd := range skinDirs {
			if !sd.IsDir() {
				continue
			}
			skinID, err := strconv.Atoi(sd.Name())
			if err != nil {
				continue
			}
			name := sd.Name()
			if champ, ok := r.names.ChampionByID(champID); ok {
				name = champ.Name + " " + sd.Name()
			}
			out = append(out, namedSkin{id: skinID, name: name})
		}
	}
	return out
}

// CandidateArchives enumerates every mod archive for championId, filtered
// per spec.md §4.6 step 4: archives whose id is in ownedSkinSet are
// dropped, and base skins are unconditionally dropped (spec.md §4.7).
// Grounded on find_champion_skins, adapted to the <championId>/<skinId>/…
// layout (spec.md §6) rather than the original's by-champion-name glob.
func (r *Resolver) CandidateArchives(championID int, ownedSkinSet map[int]struct{}) ([]Archive, error) {
	champDir := filepath.Join(r.root, strconv.Itoa(championID))
	entries, err := os.ReadDir(champDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrChampionNotKnown
		}
		return nil, errors.Wrapf(err, "skins: read %s", champDir)
	}

	var out []Archive
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		skinID, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if skinID == championID*1000 {
			continue // base skin, always owned (spec.md §4.7)
		}
		if _, owned := ownedSkinSet[skinID]; owned {
			continue
		}

		skinDir := filepath.Join(champDir, e.Name())
		base := filepath.Join(skinDir, e.Name()+".zip")
		if fileExists(base) {
			out = append(out, Archive{ChampionID: championID, SkinID: skinID, Path: base, Name: e.Name()})
		}

		chromaEntries, err := os.ReadDir(skinDir)
		if err != nil {
			continue
		}
		for _, ce := range chromaEntries {
			if !ce.IsDir() {
				continue
			}
			chromaID, err := strconv.Atoi(ce.Name())
			if err != nil {
				continue
			}
			if _, owned := ownedSkinSet[chromaID]; owned {
				continue
			}
			chromaZip := filepath.Join(skinDir, ce.Name(), ce.Name()+".zip")
			if fileExists(chromaZip) {
				out = append(out, Archive{ChampionID: championID, SkinID: skinID, ChromaID: chromaID, Path: chromaZip, Name: ce.Name()})
			}
		}
	}

	if len(out) == 0 {
		return nil, ErrArchiveMissing
	}
	return out, nil
}

// ArchiveForSkinID resolves a single known (championId, skinId) pair to its
// archive path directly, used by the Commit Controller's selection order
// when it already has a concrete skinId (spec.md §4.6 step 2, §4.8).
func (r *Resolver) ArchiveForSkinID(championID, skinID int) (Archive, error) {
	if skinID == championID*1000 {
		return Archive{}, ErrArchiveMissing // base skin needs no injection
	}
	skinDir := filepath.Join(r.root, strconv.Itoa(championID), strconv.Itoa(skinID))
	path := filepath.Join(skinDir, strconv.Itoa(skinID)+".zip")
	if !fileExists(path) {
		return Archive{}, ErrArchiveMissing
	}
	return Archive{ChampionID: championID, SkinID: skinID, Path: path, Name: strconv.Itoa(skinID)}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// normalize case-folds and strips every space, not just leading/trailing,
// so names like "Program Vi" and "ProgramVi" compare equal (spec.md §9
// "Fuzzy name matching").
func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}

// similarity returns a normalized [0,1] score based on Levenshtein distance:
// 1 - distance/maxLen. Used for the fuzzy skin-name match step in
// spec.md §4.6 ("fuzzy by edit distance with a minimum-similarity
// threshold").
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	d := levenshtein(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(d)/float64(maxLen)
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
