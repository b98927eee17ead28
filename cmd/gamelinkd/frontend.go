// SPDX-License-Identifier: MIT
package main

import (
	"github.com/rs/zerolog"

	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/log"
)

// frontendLog is the event sink used while no streaming frontend is
// attached: every outbound event becomes a log line the frontend bridge
// can be tailed against.
type frontendLog struct {
	logger zerolog.Logger
}

func newFrontendLog() *frontendLog {
	return &frontendLog{logger: log.WithComponent("frontend")}
}

func (f *frontendLog) HostChanged(h *hostdb.Host) {
	h.RLock()
	uuid := h.UUID
	state := h.State.String()
	h.RUnlock()
	f.logger.Debug().
		Str(log.FieldHostUUID, uuid).
		Str(log.FieldNewState, state).
		Str("event", "frontend.host_changed").
		Msg("host record changed")
}

func (f *frontendLog) StreamRequested(hostUUID string, appID int) {
	f.logger.Info().
		Str(log.FieldHostUUID, hostUUID).
		Int(log.FieldAppID, appID).
		Str("event", "frontend.stream_requested").
		Msg("stream launch handed to frontend")
}

func (f *frontendLog) QuitRequested(hostUUID string) {
	f.logger.Info().
		Str(log.FieldHostUUID, hostUUID).
		Str("event", "frontend.quit_requested").
		Msg("quit handed to frontend")
}
