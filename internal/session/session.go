// SPDX-License-Identifier: MIT

// Package session arbitrates the single streaming slot. Only one host
// may stream at a time; launch requests are validated here and handed to
// the streaming frontend through the event sink.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/locale"
	"github.com/gamelinkhq/gamelink/internal/log"
)

// EventSink receives the control plane's outbound events. The streaming
// frontend registers one implementation at startup.
type EventSink interface {
	HostChanged(h *hostdb.Host)
	StreamRequested(hostUUID string, appID int)
	QuitRequested(hostUUID string)
}

// Session is the active streaming slot.
type Session struct {
	HostUUID  string
	AppID     int
	StartedAt time.Time
}

// StreamResult is the published state of the most recent launch attempt.
// Completed stays false from a successful launch until the session ends.
type StreamResult struct {
	Completed bool
	Succeeded bool
	Message   string
}

// Manager owns the slot and the published launch state.
type Manager struct {
	mu     sync.Mutex
	active *Session
	last   *StreamResult
	sink   EventSink
	logger zerolog.Logger
}

func NewManager(sink EventSink) *Manager {
	return &Manager{
		sink:   sink,
		logger: log.WithComponent("session"),
	}
}

// Begin validates a launch request against the host record, stamps the
// app's launch time, claims the slot, and emits StreamRequested. The
// whole check runs under the slot mutex so two racing launches cannot
// both claim it. The returned error text is operator facing.
func (m *Manager) Begin(host *hostdb.Host, appID int) error {
	m.mu.Lock()
	if m.active != nil {
		m.last = &StreamResult{Completed: true, Message: locale.MsgStreamBusy}
		m.mu.Unlock()
		return fmt.Errorf("%s", locale.MsgStreamBusy)
	}

	host.Lock()
	uuid := host.UUID
	var message string
	switch {
	case host.State != hostdb.StateOnline:
		message = locale.MsgStreamHostOffline
	case host.PairState != hostdb.Paired:
		message = locale.MsgStreamNotPaired
	case host.PendingQuit:
		message = locale.MsgStreamQuitPending
	}
	var app hostdb.App
	if message == "" {
		var ok bool
		if app, ok = host.FindApp(appID); !ok {
			message = locale.MsgStreamAppMissing
		}
	}
	if message != "" {
		host.Unlock()
		m.last = &StreamResult{Completed: true, Message: message}
		m.mu.Unlock()
		return fmt.Errorf("%s", message)
	}
	app.LastAppStartTime = time.Now().Unix()
	host.UpdateApp(app)
	host.Unlock()

	m.active = &Session{HostUUID: uuid, AppID: appID, StartedAt: time.Now()}
	m.last = &StreamResult{} // in progress until the session ends
	m.mu.Unlock()

	m.logger.Info().
		Str(log.FieldHostUUID, uuid).
		Int(log.FieldAppID, appID).
		Str(log.FieldEvent, "session.stream_requested").
		Msg("stream launch requested")
	if m.sink != nil {
		m.sink.StreamRequested(uuid, appID)
	}
	return nil
}

// Fail publishes a terminal failure for a launch that never reached the
// slot, such as a request naming an unknown host.
func (m *Manager) Fail(message string) {
	m.mu.Lock()
	m.last = &StreamResult{Completed: true, Message: message}
	m.mu.Unlock()
}

// End releases the slot if the given host holds it and publishes the
// terminal state.
func (m *Manager) End(hostUUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active.HostUUID == hostUUID {
		m.logger.Info().
			Str(log.FieldHostUUID, hostUUID).
			Str(log.FieldEvent, "session.ended").
			Msg("streaming session ended")
		m.active = nil
		m.last = &StreamResult{Completed: true, Succeeded: true}
	}
}

// Active returns the current slot.
func (m *Manager) Active() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Session{}, false
	}
	return *m.active, true
}

// LastStream returns the published state of the most recent launch, or
// false when no launch was ever attempted.
func (m *Manager) LastStream() (StreamResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return StreamResult{}, false
	}
	return *m.last, true
}

// RequestQuit forwards a quit to the frontend for the streaming host.
func (m *Manager) RequestQuit(hostUUID string) {
	if m.sink != nil {
		m.sink.QuitRequested(hostUUID)
	}
}

// NotifyHostChanged forwards a host record change to the frontend.
func (m *Manager) NotifyHostChanged(h *hostdb.Host) {
	if m.sink != nil {
		m.sink.HostChanged(h)
	}
}
