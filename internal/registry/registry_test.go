package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gamelinkhq/gamelink/internal/config"
	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/identity"
)

func testIdentity(t *testing.T) *identity.Manager {
	t.Helper()
	store, err := config.Load(filepath.Join(t.TempDir(), "general.json"))
	require.NoError(t, err)
	id, err := identity.Load(store)
	require.NoError(t, err)
	return id
}

// Hosts without addresses keep their pollers idle during tests.
func testHost(uuid, name string) *hostdb.Host {
	return &hostdb.Host{UUID: uuid, Name: name}
}

func TestUpsertInsertsAndMerges(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "hosts.ini"), testIdentity(t))
	defer r.Close()

	h, isNew := r.Upsert(testHost("uuid-1", "PC"))
	require.True(t, isNew)

	got, ok := r.Get("uuid-1")
	require.True(t, ok)
	require.Same(t, h, got)

	fresh := testHost("uuid-1", "PC-RENAMED")
	merged, isNew := r.Upsert(fresh)
	require.False(t, isNew)
	require.Same(t, h, merged)
	h.RLock()
	require.Equal(t, "PC-RENAMED", h.Name)
	h.RUnlock()
}

func TestHostsSortedByName(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "hosts.ini"), testIdentity(t))
	defer r.Close()

	r.Upsert(testHost("uuid-b", "zeta"))
	r.Upsert(testHost("uuid-a", "Alpha"))

	hosts := r.Hosts()
	require.Len(t, hosts, 2)
	hosts[0].RLock()
	require.Equal(t, "Alpha", hosts[0].Name)
	hosts[0].RUnlock()
}

func TestRemove(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "hosts.ini"), testIdentity(t))
	defer r.Close()

	r.Upsert(testHost("uuid-1", "PC"))
	require.True(t, r.Remove("uuid-1"))
	require.False(t, r.Remove("uuid-1"))
	_, ok := r.Get("uuid-1")
	require.False(t, ok)
}

func TestCloseFlushesPendingChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.ini")
	r := New(path, testIdentity(t))
	r.Upsert(testHost("uuid-1", "PC"))
	r.Close()

	snapshots, err := hostdb.LoadSnapshots(path)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.Equal(t, "PC", snapshots[0].Name)
}

func TestLoadRestoresHosts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.ini")
	id := testIdentity(t)

	r := New(path, id)
	r.Upsert(testHost("uuid-1", "PC"))
	r.Close()

	r2 := New(path, id)
	defer r2.Close()
	require.NoError(t, r2.Load())

	h, ok := r2.Get("uuid-1")
	require.True(t, ok)
	h.RLock()
	defer h.RUnlock()
	require.Equal(t, "PC", h.Name)
	require.Equal(t, hostdb.StateUnknown, h.State)
}

func TestFlushSkipsUnchangedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.ini")
	r := New(path, testIdentity(t))
	defer r.Close()

	r.Upsert(testHost("uuid-1", "PC"))
	r.flush()

	info, err := os.Stat(path)
	require.NoError(t, err)
	first := info.ModTime()

	r.flush()
	info, err = os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, first, info.ModTime())
}

func TestOnChangeFires(t *testing.T) {
	changes := 0
	r := New(filepath.Join(t.TempDir(), "hosts.ini"), testIdentity(t),
		WithOnChange(func(*hostdb.Host) { changes++ }))
	defer r.Close()

	r.Upsert(testHost("uuid-1", "PC"))
	require.Equal(t, 1, changes)

	r.Upsert(testHost("uuid-1", "PC-2"))
	require.Equal(t, 2, changes)

	// No field changed, no callback.
	r.Upsert(testHost("uuid-1", "PC-2"))
	require.Equal(t, 2, changes)
}
