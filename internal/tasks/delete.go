// SPDX-License-Identifier: MIT

package tasks

import (
	"errors"

	"github.com/gamelinkhq/gamelink/internal/locale"
	"github.com/gamelinkhq/gamelink/internal/log"
)

// StartDelete begins removing a host: its poller stops, its record
// leaves the database, and its cached artwork is purged. Progress is
// observed through the returned task id.
func (m *Manager) StartDelete(hostUUID string) (string, error) {
	if _, ok := m.reg.Get(hostUUID); !ok {
		return "", errors.New(locale.MsgHostNotExist)
	}
	t, started := m.begin(KindDelete, hostUUID)
	if started {
		go m.runDelete(t, hostUUID)
	}
	return t.id, nil
}

func (m *Manager) runDelete(t *task, hostUUID string) {
	_, logger := m.taskContext(t)
	if !m.reg.Remove(hostUUID) {
		t.finish(false, locale.MsgHostNotExist)
		return
	}
	if m.sessions != nil {
		m.sessions.End(hostUUID)
	}
	if m.art != nil {
		if err := m.art.Purge(hostUUID); err != nil {
			logger.Warn().Err(err).
				Str(log.FieldHostUUID, hostUUID).
				Str(log.FieldEvent, "tasks.artwork_purge_failed").
				Msg("failed to purge cached artwork")
		}
	}
	t.finish(true, "")
}
