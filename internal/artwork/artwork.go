// SPDX-License-Identifier: MIT

// Package artwork caches app box art images fetched from hosts. Fetches
// run on a small worker pool so a long app list does not serialize
// behind one slow download.
package artwork

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/identity"
	"github.com/gamelinkhq/gamelink/internal/log"
	"github.com/gamelinkhq/gamelink/internal/nvhttp"
)

const (
	workers   = 4
	queueSize = 64
)

type job struct {
	host  *hostdb.Host
	appID int
}

// Manager owns the on-disk cache, one directory per host UUID with one
// PNG per app id.
type Manager struct {
	dir string
	id  *identity.Manager

	jobs      chan job
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu       sync.Mutex
	inflight map[string]struct{}

	logger zerolog.Logger
}

// NewManager starts the worker pool over the cache rooted at dir.
func NewManager(dir string, id *identity.Manager) *Manager {
	m := &Manager{
		dir:      dir,
		id:       id,
		jobs:     make(chan job, queueSize),
		inflight: make(map[string]struct{}),
		logger:   log.WithComponent("artwork"),
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Close drains the queue and stops the workers.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.jobs) })
	m.wg.Wait()
}

// Path returns the cache location for one app's image.
func (m *Manager) Path(hostUUID string, appID int) string {
	return filepath.Join(m.dir, hostUUID, strconv.Itoa(appID)+".png")
}

// Cached returns the cached image bytes when present.
func (m *Manager) Cached(hostUUID string, appID int) ([]byte, bool) {
	data, err := os.ReadFile(m.Path(hostUUID, appID))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// DataURI returns the cached image as an inline data URI.
func (m *Manager) DataURI(hostUUID string, appID int) (string, bool) {
	data, ok := m.Cached(hostUUID, appID)
	if !ok {
		return "", false
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), true
}

// Request schedules a fetch for one app image unless it is already
// cached, queued, or the queue is full. Never blocks.
func (m *Manager) Request(host *hostdb.Host, appID int) {
	host.RLock()
	uuid := host.UUID
	host.RUnlock()

	if _, ok := m.Cached(uuid, appID); ok {
		return
	}

	key := uuid + "/" + strconv.Itoa(appID)
	m.mu.Lock()
	if _, busy := m.inflight[key]; busy {
		m.mu.Unlock()
		return
	}
	m.inflight[key] = struct{}{}
	m.mu.Unlock()

	select {
	case m.jobs <- job{host: host, appID: appID}:
	default:
		m.mu.Lock()
		delete(m.inflight, key)
		m.mu.Unlock()
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for j := range m.jobs {
		m.fetch(j)
	}
}

func (m *Manager) fetch(j job) {
	j.host.RLock()
	uuid := j.host.UUID
	online := j.host.State == hostdb.StateOnline
	paired := j.host.PairState == hostdb.Paired
	j.host.RUnlock()
	key := uuid + "/" + strconv.Itoa(j.appID)
	defer func() {
		m.mu.Lock()
		delete(m.inflight, key)
		m.mu.Unlock()
	}()

	if !online || !paired {
		return
	}
	address, httpsPort, cert := j.host.ActiveTarget()
	if address.IsZero() || len(cert) == 0 {
		return
	}

	client := nvhttp.NewClient(address, httpsPort, cert, m.id)
	data, err := client.AppAsset(context.Background(), j.appID)
	if err != nil || len(data) == 0 {
		m.logger.Debug().Err(err).
			Str(log.FieldHostUUID, uuid).
			Int(log.FieldAppID, j.appID).
			Str(log.FieldEvent, "artwork.fetch_failed").
			Msg("box art fetch failed")
		return
	}

	if err := m.store(uuid, j.appID, data); err != nil {
		m.logger.Warn().Err(err).
			Str(log.FieldHostUUID, uuid).
			Int(log.FieldAppID, j.appID).
			Str(log.FieldEvent, "artwork.store_failed").
			Msg("box art write failed")
	}
}

func (m *Manager) store(hostUUID string, appID int, data []byte) error {
	path := m.Path(hostUUID, appID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// Purge removes every cached image of one host.
func (m *Manager) Purge(hostUUID string) error {
	if hostUUID == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(m.dir, hostUUID))
}
