// SPDX-License-Identifier: MIT

// Package registry owns the set of known hosts: lookup, merge-or-insert,
// per-host polling lifecycles, and debounced persistence to hosts.ini.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/identity"
	"github.com/gamelinkhq/gamelink/internal/log"
	"github.com/gamelinkhq/gamelink/internal/poller"
)

// saveDebounce coalesces bursts of host changes into one write.
const saveDebounce = 500 * time.Millisecond

// Registry is the in-memory host database. A background worker flushes
// it to disk whenever the persisted view of any host changed.
type Registry struct {
	path string
	id   *identity.Manager

	// onChange fires after any host record changed, outside all locks.
	onChange func(*hostdb.Host)

	mu      sync.RWMutex
	hosts   map[string]*hostdb.Host
	pollers map[string]*poller.Poller

	saveMu     sync.Mutex
	saveCond   *sync.Cond
	needsFlush bool
	closed     bool
	saverDone  chan struct{}
	lastSaved  map[string]hostdb.Snapshot

	drains sync.WaitGroup
	logger zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithOnChange registers a callback invoked after any host changed.
func WithOnChange(fn func(*hostdb.Host)) Option {
	return func(r *Registry) { r.onChange = fn }
}

// New builds a registry persisting to path. Call Load before use and
// Close on shutdown.
func New(path string, id *identity.Manager, opts ...Option) *Registry {
	r := &Registry{
		path:      path,
		id:        id,
		hosts:     make(map[string]*hostdb.Host),
		pollers:   make(map[string]*poller.Poller),
		saverDone: make(chan struct{}),
		lastSaved: make(map[string]hostdb.Snapshot),
		logger:    log.WithComponent("registry"),
	}
	r.saveCond = sync.NewCond(&r.saveMu)
	for _, opt := range opts {
		opt(r)
	}
	go r.saveWorker()
	return r
}

// Load restores persisted hosts and starts polling each of them.
func (r *Registry) Load() error {
	snapshots, err := hostdb.LoadSnapshots(r.path)
	if err != nil {
		return fmt.Errorf("load hosts: %w", err)
	}

	r.mu.Lock()
	r.saveMu.Lock()
	for _, s := range snapshots {
		if s.UUID == "" {
			continue
		}
		host := s.Restore()
		r.hosts[s.UUID] = host
		r.lastSaved[s.UUID] = s
		r.startPollingLocked(host, s.UUID)
	}
	count := len(r.hosts)
	r.saveMu.Unlock()
	r.mu.Unlock()

	r.logger.Info().
		Int("hosts", count).
		Str(log.FieldEvent, "registry.loaded").
		Msg("host database loaded")
	return nil
}

// Get returns the host with the given UUID.
func (r *Registry) Get(uuid string) (*hostdb.Host, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hosts[uuid]
	return h, ok
}

// Hosts returns all hosts sorted by lowercase name.
func (r *Registry) Hosts() []*hostdb.Host {
	r.mu.RLock()
	out := make([]*hostdb.Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		out[i].RLock()
		a := strings.ToLower(out[i].Name)
		out[i].RUnlock()
		out[j].RLock()
		b := strings.ToLower(out[j].Name)
		out[j].RUnlock()
		return a < b
	})
	return out
}

// Upsert merges fresh into an existing record with the same UUID or
// inserts it as a new host with polling started. Returns the canonical
// record and whether it was newly inserted.
func (r *Registry) Upsert(fresh *hostdb.Host) (*hostdb.Host, bool) {
	fresh.RLock()
	uuid := fresh.UUID
	fresh.RUnlock()

	r.mu.Lock()
	existing, ok := r.hosts[uuid]
	if !ok {
		r.hosts[uuid] = fresh
		r.startPollingLocked(fresh, uuid)
		r.mu.Unlock()
		r.hostChanged(fresh)
		return fresh, true
	}
	r.mu.Unlock()

	if existing.Update(fresh) {
		r.hostChanged(existing)
	}
	return existing, false
}

// Remove deletes a host and stops its poller in the background.
func (r *Registry) Remove(uuid string) bool {
	r.mu.Lock()
	host, ok := r.hosts[uuid]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.hosts, uuid)
	p := r.pollers[uuid]
	delete(r.pollers, uuid)
	r.mu.Unlock()

	if p != nil {
		// The poller may be mid-request; drain it off the caller's path.
		r.drains.Add(1)
		go func() {
			defer r.drains.Done()
			p.Stop()
		}()
	}

	host.RLock()
	name := host.Name
	host.RUnlock()
	r.logger.Info().
		Str(log.FieldHostUUID, uuid).
		Str(log.FieldHostName, name).
		Str(log.FieldEvent, "registry.host_removed").
		Msg("host removed")
	r.MarkDirty()
	return true
}

// MarkDirty schedules a persistence flush.
func (r *Registry) MarkDirty() {
	r.saveMu.Lock()
	r.needsFlush = true
	r.saveMu.Unlock()
	r.saveCond.Signal()
}

// hostChanged runs the change hook and schedules a flush.
func (r *Registry) hostChanged(h *hostdb.Host) {
	r.MarkDirty()
	if r.onChange != nil {
		r.onChange(h)
	}
}

func (r *Registry) startPollingLocked(h *hostdb.Host, uuid string) {
	p := poller.New(h, r.id, r.hostChanged)
	r.pollers[uuid] = p
	p.Start()
}

// Close stops polling, drains removals, and writes a final flush.
func (r *Registry) Close() {
	r.mu.Lock()
	pollers := make([]*poller.Poller, 0, len(r.pollers))
	for _, p := range r.pollers {
		pollers = append(pollers, p)
	}
	r.pollers = make(map[string]*poller.Poller)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range pollers {
		wg.Add(1)
		go func(p *poller.Poller) {
			defer wg.Done()
			p.Stop()
		}(p)
	}
	wg.Wait()
	r.drains.Wait()

	r.saveMu.Lock()
	r.closed = true
	r.saveMu.Unlock()
	r.saveCond.Signal()
	<-r.saverDone
}

func (r *Registry) saveWorker() {
	defer close(r.saverDone)
	for {
		r.saveMu.Lock()
		for !r.needsFlush && !r.closed {
			r.saveCond.Wait()
		}
		closed := r.closed
		flush := r.needsFlush
		r.needsFlush = false
		r.saveMu.Unlock()

		if flush {
			if !closed {
				time.Sleep(saveDebounce)
			}
			r.flush()
		}
		if closed {
			return
		}
	}
}

// flush writes hosts.ini when any persisted field differs from the last
// written state.
func (r *Registry) flush() {
	r.mu.RLock()
	snapshots := make([]hostdb.Snapshot, 0, len(r.hosts))
	for _, h := range r.hosts {
		snapshots = append(snapshots, h.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].UUID < snapshots[j].UUID })

	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	dirty := len(snapshots) != len(r.lastSaved)
	if !dirty {
		for _, s := range snapshots {
			prev, ok := r.lastSaved[s.UUID]
			if !ok || !prev.Equal(s) {
				dirty = true
				break
			}
		}
	}
	if !dirty {
		return
	}

	if err := hostdb.SaveSnapshots(r.path, snapshots); err != nil {
		r.logger.Error().Err(err).
			Str(log.FieldPath, r.path).
			Str(log.FieldEvent, "registry.save_failed").
			Msg("failed to persist host database")
		return
	}
	saved := make(map[string]hostdb.Snapshot, len(snapshots))
	for _, s := range snapshots {
		saved[s.UUID] = s
	}
	r.lastSaved = saved
	r.logger.Debug().
		Int("hosts", len(snapshots)).
		Str(log.FieldEvent, "registry.saved").
		Msg("host database persisted")
}
