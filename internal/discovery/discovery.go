// SPDX-License-Identifier: MIT

// Package discovery browses the LAN for streaming hosts over mDNS and
// reports newly seen or re-addressed instances.
package discovery

import (
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"

	"github.com/gamelinkhq/gamelink/internal/log"
)

const (
	serviceType = "_rzstream._tcp"

	queryTimeout = 5 * time.Second
	// Hosts announce rarely; a browse every minute keeps the list fresh
	// without flooding multicast.
	browseInterval = 60 * time.Second
	// The wait is chunked so Stop takes effect promptly.
	sleepChunk = 100 * time.Millisecond
)

// Found is one discovered host instance. IPv6Address is empty when the
// instance announced no AAAA record.
type Found struct {
	Instance    string
	Address     string
	IPv6Address string
	Port        uint16
}

// Browser periodically queries for host instances and invokes the
// callback for every instance whose address or port changed since the
// last sighting.
type Browser struct {
	onFound func(Found)
	queryFn func(*mdns.QueryParam) error

	mu     sync.Mutex
	seen   map[string]Found
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func NewBrowser(onFound func(Found)) *Browser {
	return &Browser{
		onFound: onFound,
		queryFn: mdns.Query,
		seen:    make(map[string]Found),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  log.WithComponent("discovery"),
	}
}

// Start launches the browse loop. The first query fires immediately.
func (b *Browser) Start() {
	go func() {
		defer close(b.done)
		for {
			b.browseOnce()
			if !b.sleep(browseInterval) {
				return
			}
		}
	}()
}

// Stop ends the browse loop and waits for it to exit.
func (b *Browser) Stop() {
	b.once.Do(func() { close(b.stop) })
	<-b.done
}

func (b *Browser) sleep(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		select {
		case <-b.stop:
			return false
		case <-time.After(sleepChunk):
		}
	}
	return true
}

func (b *Browser) browseOnce() {
	entries := make(chan *mdns.ServiceEntry, 16)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for entry := range entries {
			b.record(entry)
		}
	}()

	err := b.queryFn(&mdns.QueryParam{
		Service: serviceType,
		Domain:  "local",
		Timeout: queryTimeout,
		Entries: entries,
	})
	close(entries)
	<-collected
	if err != nil {
		b.logger.Debug().Err(err).
			Str(log.FieldEvent, "discovery.query_failed").
			Msg("mdns query failed")
	}
}

func (b *Browser) record(entry *mdns.ServiceEntry) {
	// Instances without a resolved IPv4 address are useless to us.
	if entry.AddrV4 == nil {
		return
	}
	found := Found{
		Instance: entry.Name,
		Address:  entry.AddrV4.String(),
		Port:     uint16(entry.Port),
	}
	if entry.AddrV6 != nil {
		found.IPv6Address = entry.AddrV6.String()
	}

	b.mu.Lock()
	prev, ok := b.seen[found.Instance]
	changed := !ok || prev != found
	if changed {
		b.seen[found.Instance] = found
	}
	b.mu.Unlock()

	if !changed {
		return
	}
	b.logger.Info().
		Str("instance", found.Instance).
		Str(log.FieldAddress, found.Address).
		Str(log.FieldEvent, "discovery.host_found").
		Msg("discovered streaming host")
	if b.onFound != nil {
		b.onFound(found)
	}
}
