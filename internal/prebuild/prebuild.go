// Package prebuild implements the Pre-Builder (C7, spec.md §4.7): eagerly
// assembles an overlay filesystem for every unowned mod of the locked
// champion so the later commit step is near-instant. Grounded on
// original_source/injection/prebuilder.py's ChampionPreBuilder, translated
// from its ThreadPoolExecutor + concurrent.futures polling-cancellation
// loop into goroutines, a buffered job channel, and a context.Context.
package prebuild

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/aaronlol/chromabind/internal/procutil"
	"github.com/aaronlol/chromabind/internal/skins"
)

const mkoverlayTimeout = 60 * time.Second

// threadPoolSizes mirrors CHAMPIONS_USE_2_THREADS / CHAMPIONS_USE_3_THREADS:
// champions with especially large VFX get a smaller pool (spec.md §4.7 step
// 3). Keyed by Data Dragon champion id.
var threadPoolSizes = map[int]int{
	// Aurelion Sol, Azir, Viego: VFX-heavy, prone to mkoverlay memory spikes.
	136: 2,
	157: 2,
	234: 2,
}

const defaultThreadCount = 4

// Result is one job's outcome, surfaced for logging/telemetry.
type Result struct {
	Archive    skins.Archive
	OverlayDir string
	Err        error
}

// Builder runs the per-champion worker pool described in spec.md §4.7.
type Builder struct {
	toolsDir     string
	gameDir      string
	prebuiltRoot string
	resolver     *skins.Resolver

	mu              sync.Mutex
	currentChampion string
	cancel          context.CancelFunc
	inFlight        sync.WaitGroup
}

// New builds a Builder. prebuiltRoot is the staging+output root
// (<injection-dir>/prebuilt in the original).
func New(toolsDir, gameDir, prebuiltRoot string, resolver *skins.Resolver) *Builder {
	return &Builder{toolsDir: toolsDir, gameDir: gameDir, prebuiltRoot: prebuiltRoot, resolver: resolver}
}

func recommendedThreads(championID int) int {
	if n, ok := threadPoolSizes[championID]; ok {
		return n
	}
	return defaultThreadCount
}

// Prebuild builds overlays for every unowned archive of championName/ID.
// Idempotent per champion (spec.md §4.7 "Public contract"): a call for the
// champion already building is a no-op; a call for a different champion
// cancels the current build first.
func (b *Builder) Prebuild(championName string, championID int, ownedSkinSet map[int]struct{}) bool {
	b.mu.Lock()
	if b.currentChampion == championName && b.cancel != nil {
		b.mu.Unlock()
		return false
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()
	b.inFlight.Wait() // let the previous build's goroutines actually exit

	archives, err := b.resolver.CandidateArchives(championID, ownedSkinSet)
	if err != nil {
		log.Printf("[prebuild] no unowned skins for %s: %v", championName, err)
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.currentChampion = championName
	b.cancel = cancel
	b.mu.Unlock()

	go b.cleanupChampionOverlays(championName)

	workers := recommendedThreads(championID)
	log.Printf("[prebuild] building %d skins for %s with %d workers", len(archives), championName, workers)

	start := time.Now()
	results := b.runPool(ctx, championName, archives, workers)

	cancelled := ctx.Err() != nil
	b.mu.Lock()
	if b.currentChampion == championName {
		b.currentChampion = ""
		b.cancel = nil
	}
	b.mu.Unlock()

	if cancelled {
		go b.cleanupChampionOverlays(championName)
	}

	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		} else {
			log.Printf("[prebuild] %s: %v", r.Archive.Name, r.Err)
		}
	}
	log.Printf("[prebuild] %s: %d/%d built in %s (cancelled=%v)", championName, ok, len(archives), time.Since(start).Round(time.Millisecond), cancelled)
	return ok > 0
}

// runPool fans archives out across workers workers, collecting results as
// they complete. The feeder and the workers select on ctx.Done, so once ctx
// is cancelled no further job starts; runPool still returns only after the
// jobs already running have finished (spec.md §4.7 step 5).
func (b *Builder) runPool(ctx context.Context, championName string, archives []skins.Archive, workers int) []Result {
	jobs := make(chan skins.Archive)
	out := make(chan Result, len(archives))

	var wg sync.WaitGroup
	b.inFlight.Add(1)
	defer b.inFlight.Done()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(threadID int) {
			defer wg.Done()
			for archive := range jobs {
				select {
				case <-ctx.Done():
					out <- Result{Archive: archive, Err: ctx.Err()}
					continue
				default:
				}
				dir, err := b.buildOne(ctx, championName, archive, threadID)
				out <- Result{Archive: archive, OverlayDir: dir, Err: err}
			}
		}(w)
	}

	go func() {
		defer close(jobs)
		for _, a := range archives {
			select {
			case jobs <- a:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]Result, 0, len(archives))
	for r := range out {
		results = append(results, r)
	}
	return results
}

// buildOne extracts the archive into a thread-scoped staging directory,
// invokes mkoverlay, and moves the result to its final per-skin path. The
// staging subtree is always removed, success or failure (spec.md §4.7
// step 6).
func (b *Builder) buildOne(ctx context.Context, championName string, archive skins.Archive, threadID int) (string, error) {
	threadBase := filepath.Join(b.prebuiltRoot, fmt.Sprintf("%s_thread_%d", championName, threadID))
	modsDir := filepath.Join(threadBase, "mods")
	overlayDir := filepath.Join(threadBase, "overlay")
	defer os.RemoveAll(threadBase)

	if err := os.RemoveAll(threadBase); err != nil {
		return "", errors.Wrap(err, "prebuild: clean thread dir")
	}
	modName := filepath.Base(archive.Path)
	modName = modName[:len(modName)-len(filepath.Ext(modName))]
	targetModDir := filepath.Join(modsDir, modName)
	if err := os.MkdirAll(targetModDir, 0o755); err != nil {
		return "", errors.Wrap(err, "prebuild: mkdir mod dir")
	}
	if err := os.MkdirAll(overlayDir, 0o755); err != nil {
		return "", errors.Wrap(err, "prebuild: mkdir overlay dir")
	}

	if err := extractZip(archive.Path, targetModDir); err != nil {
		return "", errors.Wrapf(err, "prebuild: extract %s", archive.Path)
	}

	if err := b.runMkOverlay(ctx, modsDir, overlayDir, modName); err != nil {
		return "", err
	}

	finalDir := filepath.Join(b.prebuiltRoot, fmt.Sprintf("%s_%s", championName, archive.Name))
	if err := os.RemoveAll(finalDir); err != nil {
		return "", errors.Wrap(err, "prebuild: clean final dir")
	}
	if err := os.Rename(overlayDir, finalDir); err != nil {
		return "", errors.Wrap(err, "prebuild: move overlay to final path")
	}
	return finalDir, nil
}

// runMkOverlay deliberately does not derive its subprocess context from the
// cancelable build ctx: cancellation lets an already-started mod-tools.exe
// run to completion under its own timeout rather than killing it outright
// (spec.md §5 "Cancellation semantics").
func (b *Builder) runMkOverlay(ctx context.Context, modsDir, overlayDir, modName string) error {
	exePath := filepath.Join(b.toolsDir, "mod-tools.exe")
	if _, err := os.Stat(exePath); err != nil {
		return errors.Wrap(err, "prebuild: mod-tools.exe not found")
	}

	cctx, cancel := context.WithTimeout(context.Background(), mkoverlayTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, exePath, "mkoverlay", modsDir, overlayDir,
		"--game:"+b.gameDir, "--mods:"+modName, "--noTFT")
	cmd.SysProcAttr = procutil.HiddenProcAttr()

	outBuf, err := cmd.CombinedOutput()
	if cctx.Err() == context.DeadlineExceeded {
		return errors.Errorf("prebuild: mkoverlay timed out after %s for %s", mkoverlayTimeout, modName)
	}
	if err != nil {
		return errors.Wrapf(err, "prebuild: mkoverlay failed for %s: %s", modName, string(outBuf))
	}
	return nil
}

// CancelCurrentBuild cancels any in-progress build and schedules background
// cleanup of its partial output (spec.md §4.7 step 5, §5 "Cancellation
// semantics"). Idempotent; called by the Phase Tracker on ChampSelect entry
// and by a new Prebuild call for a different champion.
func (b *Builder) CancelCurrentBuild() {
	b.mu.Lock()
	champ := b.currentChampion
	cancel := b.cancel
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if champ != "" {
		log.Printf("[prebuild] cancelling build for %s", champ)
		go b.cleanupChampionOverlays(champ)
	}
}

func (b *Builder) cleanupChampionOverlays(championName string) {
	entries, err := os.ReadDir(b.prebuiltRoot)
	if err != nil {
		return
	}
	prefix := championName + "_"
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) >= len(prefix) && e.Name()[:len(prefix)] == prefix {
			os.RemoveAll(filepath.Join(b.prebuiltRoot, e.Name()))
		}
	}
}

// PrebuiltOverlayPath returns the final overlay directory for a skin if it
// exists, used by the Commit Controller to skip a synchronous build.
func (b *Builder) PrebuiltOverlayPath(championName, skinName string) (string, bool) {
	path := filepath.Join(b.prebuiltRoot, fmt.Sprintf("%s_%s", championName, skinName))
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return path, true
}

// CleanupUnusedOverlays removes every pre-built overlay for championName
// except the one matching usedSkinName, called after a successful commit.
func (b *Builder) CleanupUnusedOverlays(championName, usedSkinName string) {
	entries, err := os.ReadDir(b.prebuiltRoot)
	if err != nil {
		return
	}
	keep := fmt.Sprintf("%s_%s", championName, usedSkinName)
	prefix := championName + "_"
	for _, e := range entries {
		if !e.IsDir() || e.Name() == keep {
			continue
		}
		if len(e.Name()) >= len(prefix) && e.Name()[:len(prefix)] == prefix {
			os.RemoveAll(filepath.Join(b.prebuiltRoot, e.Name()))
		}
	}
}

// CleanupAllOverlays clears the entire prebuilt directory, used at startup
// to discard anything left by a prior crashed session.
func (b *Builder) CleanupAllOverlays() {
	entries, err := os.ReadDir(b.prebuiltRoot)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			os.RemoveAll(filepath.Join(b.prebuiltRoot, e.Name()))
		}
	}
	log.Println("[prebuild] cleaned up all pre-built overlays")
}

func extractZip(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		path := filepath.Join(destDir, f.Name)
		if !isWithinDir(destDir, path) {
			return errors.Errorf("prebuild: zip entry escapes destination: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := extractOne(f, path); err != nil {
			return err
		}
	}
	return nil
}

func isWithinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func extractOne(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
