package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/locale"
)

type recordingSink struct {
	streamHost string
	streamApp  int
	quitHost   string
	changed    int
}

func (s *recordingSink) HostChanged(*hostdb.Host) { s.changed++ }
func (s *recordingSink) StreamRequested(uuid string, appID int) {
	s.streamHost, s.streamApp = uuid, appID
}
func (s *recordingSink) QuitRequested(uuid string) { s.quitHost = uuid }

func streamableHost() *hostdb.Host {
	return &hostdb.Host{
		UUID:      "uuid-1",
		State:     hostdb.StateOnline,
		PairState: hostdb.Paired,
		Apps:      []hostdb.App{{ID: 17, Name: "Portal 2"}},
	}
}

func TestBeginClaimsSlot(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(sink)
	host := streamableHost()

	require.NoError(t, m.Begin(host, 17))
	require.Equal(t, "uuid-1", sink.streamHost)
	require.Equal(t, 17, sink.streamApp)

	active, ok := m.Active()
	require.True(t, ok)
	require.Equal(t, "uuid-1", active.HostUUID)

	host.RLock()
	app, _ := host.FindApp(17)
	host.RUnlock()
	require.NotZero(t, app.LastAppStartTime)
}

func TestBeginRejectsSecondSession(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Begin(streamableHost(), 17))

	err := m.Begin(streamableHost(), 17)
	require.Error(t, err)
	require.Equal(t, locale.MsgStreamBusy, err.Error())
}

func TestBeginRacingLaunchesClaimOnce(t *testing.T) {
	m := NewManager(nil)

	const attempts = 8
	start := make(chan struct{})
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = m.Begin(streamableHost(), 17)
		}(i)
	}
	close(start)
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			require.Equal(t, locale.MsgStreamBusy, err.Error())
		}
	}
	require.Equal(t, 1, won)
}

func TestBeginValidation(t *testing.T) {
	m := NewManager(nil)

	offline := streamableHost()
	offline.State = hostdb.StateOffline
	require.EqualError(t, m.Begin(offline, 17), locale.MsgStreamHostOffline)

	unpaired := streamableHost()
	unpaired.PairState = hostdb.NotPaired
	require.EqualError(t, m.Begin(unpaired, 17), locale.MsgStreamNotPaired)

	quitting := streamableHost()
	quitting.PendingQuit = true
	require.EqualError(t, m.Begin(quitting, 17), locale.MsgStreamQuitPending)

	require.EqualError(t, m.Begin(streamableHost(), 99), locale.MsgStreamAppMissing)
}

func TestEndReleasesSlot(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Begin(streamableHost(), 17))

	m.End("other-uuid")
	_, ok := m.Active()
	require.True(t, ok)

	m.End("uuid-1")
	_, ok = m.Active()
	require.False(t, ok)

	require.NoError(t, m.Begin(streamableHost(), 17))
}

func TestLastStreamLifecycle(t *testing.T) {
	m := NewManager(nil)

	_, ok := m.LastStream()
	require.False(t, ok)

	offline := streamableHost()
	offline.State = hostdb.StateOffline
	require.Error(t, m.Begin(offline, 17))
	last, ok := m.LastStream()
	require.True(t, ok)
	require.True(t, last.Completed)
	require.False(t, last.Succeeded)
	require.Equal(t, locale.MsgStreamHostOffline, last.Message)

	require.NoError(t, m.Begin(streamableHost(), 17))
	last, ok = m.LastStream()
	require.True(t, ok)
	require.False(t, last.Completed)

	m.End("uuid-1")
	last, ok = m.LastStream()
	require.True(t, ok)
	require.True(t, last.Completed)
	require.True(t, last.Succeeded)
	require.Empty(t, last.Message)
}

func TestFailPublishesTerminalState(t *testing.T) {
	m := NewManager(nil)
	m.Fail(locale.MsgStreamHostMissing)

	last, ok := m.LastStream()
	require.True(t, ok)
	require.True(t, last.Completed)
	require.False(t, last.Succeeded)
	require.Equal(t, locale.MsgStreamHostMissing, last.Message)
}

func TestRequestQuitForwards(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(sink)
	m.RequestQuit("uuid-1")
	require.Equal(t, "uuid-1", sink.quitHost)
}
