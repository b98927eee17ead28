// SPDX-License-Identifier: MIT

// Package poller keeps one host record fresh by polling its serverinfo
// endpoint and merging the responses into the record.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/identity"
	"github.com/gamelinkhq/gamelink/internal/log"
	"github.com/gamelinkhq/gamelink/internal/nvhttp"
)

const (
	pollInterval = 3 * time.Second
	// The wait is chunked so Stop takes effect promptly.
	sleepChunk = 100 * time.Millisecond
	// While the app list is empty a retry fires every N polls even
	// without a state transition, covering hosts that answered before
	// their app database was ready.
	appListRetryEvery = 10
)

// Poller polls one host record until stopped. Every poll that changed
// the record invokes the notify callback outside any record lock.
type Poller struct {
	host   *hostdb.Host
	id     *identity.Manager
	notify func(*hostdb.Host)

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	pollCount int
	logger    zerolog.Logger
}

func New(host *hostdb.Host, id *identity.Manager, notify func(*hostdb.Host)) *Poller {
	p := &Poller{
		host:   host,
		id:     id,
		notify: notify,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	host.RLock()
	p.logger = log.WithComponent("poller").With().
		Str(log.FieldHostUUID, host.UUID).
		Logger()
	host.RUnlock()
	return p
}

// Start launches the poll loop. The first poll fires immediately.
func (p *Poller) Start() {
	go func() {
		defer close(p.done)
		ctx := context.Background()
		for {
			p.pollOnce(ctx)
			if !p.sleep(pollInterval) {
				return
			}
		}
	}()
}

// Stop ends the loop and waits for any in-flight poll to finish.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *Poller) sleep(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		select {
		case <-p.stop:
			return false
		case <-time.After(sleepChunk):
		}
	}
	return true
}

// pollOnce runs one poll round.
func (p *Poller) pollOnce(ctx context.Context) {
	p.pollCount++

	p.host.RLock()
	uuid := p.host.UUID
	wasOnline := p.host.State == hostdb.StateOnline
	wasPaired := p.host.PairState == hostdb.Paired
	hadApps := len(p.host.Apps) > 0
	httpsPort := p.host.ActiveHTTPSPort
	cert := p.host.ServerCert
	p.host.RUnlock()

	addresses := p.host.UniqueAddresses()
	if len(addresses) == 0 {
		return
	}

	// A host that was answering gets a second chance before it is
	// declared offline; an offline one fails fast.
	attempts := 1
	if wasOnline {
		attempts = 2
	}

	var client *nvhttp.Client
	var info *nvhttp.ServerInfo
	var answered nvhttp.Address
	for attempt := 0; attempt < attempts && info == nil; attempt++ {
		for _, addr := range addresses {
			select {
			case <-p.stop:
				return
			default:
			}
			c := nvhttp.NewClient(addr, httpsPort, cert, p.id)
			i, err := c.ServerInfo(ctx, !wasOnline)
			if err != nil {
				continue
			}
			// Another machine answering on a reused address does not get
			// merged; keep trying the remaining addresses.
			if i.UniqueID != uuid {
				p.logger.Debug().
					Str(log.FieldAddress, addr.String()).
					Str("event", "poller.identity_mismatch").
					Msg("address answered with a foreign host identity")
				continue
			}
			client, info, answered = c, i, addr
			break
		}
	}

	if info == nil {
		recordPollCycle(false)
		p.markOffline(wasOnline)
		return
	}
	recordPollCycle(true)

	fresh := hostdb.FromServerInfo(info, answered.Port, answered, client.ServerCert())
	changed := p.host.Update(fresh)

	p.host.RLock()
	paired := p.host.PairState == hostdb.Paired
	p.host.RUnlock()

	cameOnline := !wasOnline || !wasPaired
	retryEmpty := !hadApps && p.pollCount%appListRetryEvery == 0
	if paired && (cameOnline || retryEmpty) {
		if p.refreshAppList(ctx, client) {
			changed = true
		}
	}

	if changed && p.notify != nil {
		p.notify(p.host)
	}
}

func (p *Poller) markOffline(wasOnline bool) {
	p.host.Lock()
	changed := p.host.State != hostdb.StateOffline
	p.host.State = hostdb.StateOffline
	p.host.ActiveAddress = nvhttp.Address{}
	p.host.Unlock()

	if !changed {
		return
	}
	if wasOnline {
		p.logger.Info().
			Str(log.FieldEvent, "poller.host_offline").
			Msg("host stopped answering")
	}
	if p.notify != nil {
		p.notify(p.host)
	}
}

func (p *Poller) refreshAppList(ctx context.Context, client *nvhttp.Client) bool {
	entries, err := client.AppList(ctx)
	if err != nil {
		p.logger.Debug().Err(err).
			Str(log.FieldEvent, "poller.applist_failed").
			Msg("app list fetch failed")
		return false
	}
	apps := hostdb.AppsFromEntries(entries)

	p.host.Lock()
	defer p.host.Unlock()
	return p.host.UpdateAppList(apps)
}
