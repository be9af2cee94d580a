package commit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlol/chromabind/internal/lcu"
	"github.com/aaronlol/chromabind/internal/namedb"
	"github.com/aaronlol/chromabind/internal/skins"
	"github.com/aaronlol/chromabind/internal/state"
)

type fakePrebuilder struct {
	prebuildCalls  []string
	prebuiltPaths  map[string]string
	prebuildResult bool
	cleanupCalls   []string
	// builtByPrebuild entries become visible through PrebuiltOverlayPath
	// only once Prebuild has been called.
	builtByPrebuild map[string]string
}

func (f *fakePrebuilder) Prebuild(championName string, championID int, owned map[int]struct{}) bool {
	f.prebuildCalls = append(f.prebuildCalls, championName)
	for k, v := range f.builtByPrebuild {
		if f.prebuiltPaths == nil {
			f.prebuiltPaths = map[string]string{}
		}
		f.prebuiltPaths[k] = v
	}
	return f.prebuildResult
}

func (f *fakePrebuilder) PrebuiltOverlayPath(championName, skinName string) (string, bool) {
	if f.prebuiltPaths == nil {
		return "", false
	}
	p, ok := f.prebuiltPaths[championName+"|"+skinName]
	return p, ok
}

func (f *fakePrebuilder) CleanupUnusedOverlays(championName, usedSkinName string) {
	f.cleanupCalls = append(f.cleanupCalls, championName+"|"+usedSkinName)
}

type fakeOverlayStarter struct {
	startErr    error
	startedDirs []string
}

func (f *fakeOverlayStarter) Start(dir string) error {
	f.startedDirs = append(f.startedDirs, dir)
	return f.startErr
}

type fakeFetcher struct {
	session        *lcu.ChampSelectSession
	sessionErr     error
	ownedIDs       []int
	ownedErr       error
	mySelection    int
	mySelectionErr error
}

func (f *fakeFetcher) ChampSelectSession(ctx context.Context) (*lcu.ChampSelectSession, error) {
	return f.session, f.sessionErr
}

func (f *fakeFetcher) OwnedSkinIDs(ctx context.Context) ([]int, error) {
	return f.ownedIDs, f.ownedErr
}

func (f *fakeFetcher) MySelection(ctx context.Context) (int, error) {
	return f.mySelection, f.mySelectionErr
}

func newTestController(t *testing.T, pb Prebuilder, ov OverlayStarter, fetcher SessionFetcher, skinsRoot string) *Controller {
	t.Helper()
	st := state.New()
	names := namedb.New()
	resolver := skins.New(skinsRoot, names)
	return New(st, resolver, pb, ov, fetcher, names, 250, 100)
}

func writeArchive(t *testing.T, root string, championID, skinID int) {
	t.Helper()
	dir := filepath.Join(root, itoa(championID), itoa(skinID))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, itoa(skinID)+".zip"), []byte("zip"), 0o644))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestOnHover_SetsHoveredChampionAndLastHoveredSkin(t *testing.T) {
	c := newTestController(t, &fakePrebuilder{}, &fakeOverlayStarter{}, &fakeFetcher{}, t.TempDir())

	c.OnHover(103, 103001)

	assert.Equal(t, 103, c.st.HoveredChampion())
	assert.Equal(t, 103001, c.st.LastHoveredSkinID())
	assert.Equal(t, 0, c.st.SelectedSkinID(), "hover alone must not populate the chroma-confirmed tier")
}

func TestOnHover_ZeroValuesLeaveStateUntouched(t *testing.T) {
	c := newTestController(t, &fakePrebuilder{}, &fakeOverlayStarter{}, &fakeFetcher{}, t.TempDir())
	c.st.SetLastHoveredSkinID(5)

	c.OnHover(0, 0)

	assert.Equal(t, 0, c.st.HoveredChampion())
	assert.Equal(t, 5, c.st.LastHoveredSkinID(), "a zero skinId hover must not clobber an existing last-hovered value")
}

func TestMaybeArm_PopulatesSelectedSkinIDFromMySelection(t *testing.T) {
	fetcher := &fakeFetcher{mySelection: 103042}
	c := newTestController(t, &fakePrebuilder{}, &fakeOverlayStarter{}, fetcher, t.TempDir())
	c.st.SetLockedChampion(103)

	c.maybeArm("FINALIZATION", 5000)

	assert.Equal(t, 103042, c.st.SelectedSkinID(), "the chroma-panel confirmed selection must win over any last-hovered skin")
	c.st.Stop()
}

func TestOnSessionTimer_ArmsOnFinalizationWithTimeLeft(t *testing.T) {
	c := newTestController(t, &fakePrebuilder{}, &fakeOverlayStarter{}, &fakeFetcher{}, t.TempDir())
	c.st.SetLockedChampion(103)

	// 5000ms left is far above the 250ms threshold, so the ticker does not
	// fire before Stop below.
	c.OnSessionTimer("FINALIZATION", 5000)

	assert.Equal(t, state.Armed, c.st.GetCommitState())
	c.st.Stop() // let runTicker's background goroutine exit promptly
}

func TestOnSessionTimer_IgnoresNonFinalizationPhase(t *testing.T) {
	c := newTestController(t, &fakePrebuilder{}, &fakeOverlayStarter{}, &fakeFetcher{}, t.TempDir())

	c.OnSessionTimer("PLANNING", 5000)

	assert.Equal(t, state.Disarmed, c.st.GetCommitState())
}

func TestMaybeArm_ArmedArmedSelfLoopRejected(t *testing.T) {
	c := newTestController(t, &fakePrebuilder{}, &fakeOverlayStarter{}, &fakeFetcher{}, t.TempDir())
	c.st.SetLockedChampion(103)

	c.maybeArm("FINALIZATION", 5000)
	first := c.st.Loadout().TickerID

	c.maybeArm("FINALIZATION", 3000)
	second := c.st.Loadout().TickerID

	assert.Equal(t, first, second, "a second FINALIZATION snapshot while already armed must not re-arm")
	c.st.Stop()
}

func TestMaybeArm_ProbesSessionWhenTimeNotYetPopulated(t *testing.T) {
	fetcher := &fakeFetcher{session: &lcu.ChampSelectSession{}}
	fetcher.session.Timer.Phase = "FINALIZATION"
	fetcher.session.Timer.AdjustedTimeLeftInPhase = 2500

	c := newTestController(t, &fakePrebuilder{}, &fakeOverlayStarter{}, fetcher, t.TempDir())
	c.st.SetLockedChampion(103)

	c.maybeArm("FINALIZATION", 0)

	assert.Equal(t, state.Armed, c.st.GetCommitState(), "a probed session with a populated time-left must still arm")
	c.st.Stop()
}

func TestMaybeArm_GivesUpWhenProbeNeverPopulates(t *testing.T) {
	fetcher := &fakeFetcher{session: &lcu.ChampSelectSession{}} // AdjustedTimeLeftInPhase stays 0
	fetcher.session.Timer.Phase = "FINALIZATION"

	c := newTestController(t, &fakePrebuilder{}, &fakeOverlayStarter{}, fetcher, t.TempDir())
	c.maybeArm("FINALIZATION", 0)

	assert.Equal(t, state.Disarmed, c.st.GetCommitState())
}

func TestRunTicker_FiresAndLaunchesOverlayAtThreshold(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, 103, 103001)

	pb := &fakePrebuilder{prebuiltPaths: map[string]string{"|103001": "/overlays/103001"}}
	ov := &fakeOverlayStarter{}
	c := newTestController(t, pb, ov, &fakeFetcher{}, root)

	c.st.SetLockedChampion(103)
	c.st.SetSelectedSkinID(103001)

	tickerID, started := c.st.StartLoadoutCountdown(0, time.Now())
	require.True(t, started)

	c.runTicker(tickerID)

	assert.True(t, c.st.InjectionCompleted())
	require.Len(t, ov.startedDirs, 1)
	assert.Equal(t, "/overlays/103001", ov.startedDirs[0])
	require.Len(t, pb.cleanupCalls, 1)
}

func TestRunTicker_StaleTickerExitsWithoutFiring(t *testing.T) {
	c := newTestController(t, &fakePrebuilder{}, &fakeOverlayStarter{}, &fakeFetcher{}, t.TempDir())
	tickerID, started := c.st.StartLoadoutCountdown(0, time.Now())
	require.True(t, started)

	c.runTicker(tickerID + 1) // not the currently active ticker

	assert.False(t, c.st.InjectionCompleted())
}

func TestCommit_NoLockedOrHoveredChampionIsNoop(t *testing.T) {
	ov := &fakeOverlayStarter{}
	c := newTestController(t, &fakePrebuilder{}, ov, &fakeFetcher{}, t.TempDir())

	c.commit()

	assert.Empty(t, ov.startedDirs)
}

func TestCommit_NoSkinSelectionIsNoop(t *testing.T) {
	ov := &fakeOverlayStarter{}
	c := newTestController(t, &fakePrebuilder{}, ov, &fakeFetcher{}, t.TempDir())
	c.st.SetLockedChampion(103)

	c.commit()

	assert.Empty(t, ov.startedDirs)
}

func TestCommit_SynchronousFallbackBuildWhenNotPrebuilt(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, 103, 103001)

	pb := &fakePrebuilder{prebuiltPaths: map[string]string{}}
	// After the fallback Prebuild call, pretend the overlay now exists.
	pb.prebuildResult = true
	ov := &fakeOverlayStarter{}
	c := newTestController(t, pb, ov, &fakeFetcher{}, root)
	c.st.SetLockedChampion(103)
	c.st.SetSelectedSkinID(103001)

	// Simulate the build having produced the overlay by the time
	// PrebuiltOverlayPath is consulted again.
	pb.builtByPrebuild = map[string]string{"|103001": "/overlays/103001"}

	c.commit()

	require.Len(t, pb.prebuildCalls, 1, "a commit with no pre-built overlay must trigger a synchronous fallback build")
	require.Len(t, ov.startedDirs, 1)
}

func TestSelectSkinID_PreferenceOrder(t *testing.T) {
	c := newTestController(t, &fakePrebuilder{}, &fakeOverlayStarter{}, &fakeFetcher{}, t.TempDir())

	assert.Equal(t, 0, c.selectSkinID())

	c.st.SetHistoricSkinID(7)
	assert.Equal(t, 7, c.selectSkinID(), "historic skin is the last resort")

	c.st.SetLastHoveredSkinID(5)
	assert.Equal(t, 5, c.selectSkinID(), "last-hovered beats historic")

	c.st.SetSelectedSkinID(3)
	assert.Equal(t, 3, c.selectSkinID(), "chroma-confirmed selection beats last-hovered")
}
