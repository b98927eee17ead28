// SPDX-License-Identifier: MIT

// Package watchdog ties the daemon's lifetime to the launcher process
// that spawned it. When that process disappears the daemon shuts down
// instead of lingering headless.
package watchdog

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/gamelinkhq/gamelink/internal/log"
)

const scanInterval = time.Second

// Watchdog scans the process table for the configured process name.
type Watchdog struct {
	processName string
	onExit      func()

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

// New builds a watchdog that invokes onExit as soon as the named process
// is not running. An empty name disables the watchdog.
func New(processName string, onExit func()) *Watchdog {
	return &Watchdog{
		processName: processName,
		onExit:      onExit,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		logger:      log.WithComponent("watchdog"),
	}
}

// Start launches the scan loop.
func (w *Watchdog) Start() {
	if w.processName == "" {
		w.logger.Debug().
			Str(log.FieldEvent, "watchdog.disabled").
			Msg("no launcher process configured, watchdog disabled")
		close(w.done)
		return
	}
	go w.run()
}

// Stop ends the loop without firing onExit.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Watchdog) run() {
	defer close(w.done)
	w.logger.Info().
		Str("process", w.processName).
		Str(log.FieldEvent, "watchdog.started").
		Msg("watching launcher process")

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}

		if w.processRunning() {
			continue
		}
		w.logger.Info().
			Str("process", w.processName).
			Str(log.FieldEvent, "watchdog.launcher_exited").
			Msg("launcher process is gone, shutting down")
		if w.onExit != nil {
			w.onExit()
		}
		return
	}
}

func (w *Watchdog) processRunning() bool {
	procs, err := process.Processes()
	if err != nil {
		w.logger.Debug().Err(err).
			Str(log.FieldEvent, "watchdog.scan_failed").
			Msg("process table scan failed")
		return true // fail open rather than killing the daemon
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if strings.EqualFold(name, w.processName) {
			return true
		}
	}
	return false
}
