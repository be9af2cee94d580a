package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistedRandomID_StableAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	first := persistedRandomID(dir)
	second := persistedRandomID(dir)
	assert.Equal(t, first, second, "the persisted id must survive a second resolution")
	assert.FileExists(t, filepath.Join(dir, "machine_id"))
}

func TestPersistedRandomID_ReusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "machine_id"), []byte("fixed-id-123\n"), 0o644))

	id := persistedRandomID(dir)
	assert.Equal(t, "fixed-id-123", id)
}

func TestNew_ResolvesMachineID(t *testing.T) {
	h := New("", "1.0.0", t.TempDir(), time.Second)
	assert.NotEmpty(t, h.machineID)
}

func TestRun_NoEndpointIsNoop(t *testing.T) {
	h := New("", "1.0.0", t.TempDir(), time.Hour)
	stop := make(chan struct{})
	close(stop)

	done := make(chan struct{})
	go func() {
		h.Run(stop)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with an empty endpoint must return immediately")
	}
}

func TestRun_SendsImmediatelyThenOnInterval(t *testing.T) {
	hits := make(chan payload, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		hits <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := New(srv.URL, "1.2.3", t.TempDir(), 50*time.Millisecond)
	stop := make(chan struct{})
	defer close(stop)
	go h.Run(stop)

	select {
	case p := <-hits:
		assert.Equal(t, "1.2.3", p.AppVersion)
		assert.NotEmpty(t, p.MachineID)
	case <-time.After(time.Second):
		t.Fatal("expected an immediate heartbeat on Run")
	}

	select {
	case <-hits:
	case <-time.After(time.Second):
		t.Fatal("expected a second heartbeat after the interval elapsed")
	}
}

func TestSend_UnreachableEndpointDoesNotPanic(t *testing.T) {
	h := New("https://127.0.0.1:1", "1.0.0", t.TempDir(), time.Hour)
	assert.NotPanics(t, func() { h.send() })
}
