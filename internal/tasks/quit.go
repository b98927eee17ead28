// SPDX-License-Identifier: MIT

package tasks

import (
	"errors"
	"time"

	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/locale"
	"github.com/gamelinkhq/gamelink/internal/log"
	"github.com/gamelinkhq/gamelink/internal/nvhttp"
)

// quitSettleWait bounds the wait for the host to report the game gone
// after it acknowledged the quit.
const quitSettleWait = 3 * time.Second

// StartQuit begins ending the running app on a host. Progress is
// observed through the returned task id.
func (m *Manager) StartQuit(hostUUID string) (string, error) {
	host, ok := m.reg.Get(hostUUID)
	if !ok {
		return "", errors.New(locale.MsgHostNotExist)
	}

	host.RLock()
	state := host.State
	pairState := host.PairState
	running := host.CurrentGameID
	host.RUnlock()

	if state != hostdb.StateOnline || pairState != hostdb.Paired {
		return "", errors.New(locale.MsgStreamHostOffline)
	}

	t, started := m.begin(KindQuit, hostUUID)
	if !started {
		return t.id, nil
	}
	if running == 0 {
		t.finish(true, "")
		return t.id, nil
	}
	go m.runQuit(t, host, hostUUID)
	return t.id, nil
}

func (m *Manager) runQuit(t *task, host *hostdb.Host, hostUUID string) {
	ctx, logger := m.taskContext(t)
	host.Lock()
	host.PendingQuit = true
	host.Unlock()

	if m.sessions != nil {
		m.sessions.RequestQuit(hostUUID)
	}

	address, httpsPort, cert := host.ActiveTarget()
	client := nvhttp.NewClient(address, httpsPort, cert, m.id)
	err := client.Quit(ctx)
	if err != nil {
		host.Lock()
		host.PendingQuit = false
		host.Unlock()

		message := locale.MsgQuitNetworkError
		if nvhttp.IsStatus(err, nvhttp.StatusQuitNotOwner) {
			message = locale.MsgQuitNotOwner
		}
		logger.Warn().Err(err).
			Str(log.FieldHostUUID, hostUUID).
			Str(log.FieldEvent, "tasks.quit_failed").
			Msg("quit request failed")
		t.finish(false, message)
		return
	}

	// The host acknowledged; wait briefly for the poller to confirm the
	// game is gone so state readers do not flap.
	deadline := time.Now().Add(quitSettleWait)
	for time.Now().Before(deadline) {
		host.RLock()
		gone := host.CurrentGameID == 0
		host.RUnlock()
		if gone {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	host.Lock()
	host.CurrentGameID = 0
	host.PendingQuit = false
	host.Unlock()
	m.reg.MarkDirty()

	if m.sessions != nil {
		m.sessions.End(hostUUID)
	}
	logger.Info().
		Str(log.FieldHostUUID, hostUUID).
		Str(log.FieldEvent, "tasks.quit_completed").
		Msg("running app ended")
	t.finish(true, "")
}
