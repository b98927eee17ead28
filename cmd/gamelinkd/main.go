// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gamelinkhq/gamelink/internal/api"
	"github.com/gamelinkhq/gamelink/internal/artwork"
	"github.com/gamelinkhq/gamelink/internal/config"
	"github.com/gamelinkhq/gamelink/internal/discovery"
	"github.com/gamelinkhq/gamelink/internal/identity"
	"github.com/gamelinkhq/gamelink/internal/log"
	"github.com/gamelinkhq/gamelink/internal/persist"
	"github.com/gamelinkhq/gamelink/internal/razer"
	"github.com/gamelinkhq/gamelink/internal/registry"
	"github.com/gamelinkhq/gamelink/internal/session"
	"github.com/gamelinkhq/gamelink/internal/tasks"
	"github.com/gamelinkhq/gamelink/internal/watchdog"
)

var (
	version   = "2.1.0"
	commit    = "none"
	buildDate = "unknown"
)

// Exit code the launcher checks to detect a second daemon instance.
const exitAlreadyRunning = 255

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	dataDir := flag.String("data", "", "data directory (default: user config dir)")
	watchProcess := flag.String("watch-process", os.Getenv("GAMELINK_WATCH_PROCESS"),
		"streamer process name the watchdog monitors (empty disables)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	log.Configure(log.Config{
		Service: "gamelinkd",
		Version: version,
	})
	logger := log.WithComponent("daemon")

	dir, err := resolveDataDir(*dataDir)
	if err != nil {
		logger.Error().Err(err).
			Str("event", "daemon.data_dir_failed").
			Msg("could not prepare data directory")
		return 1
	}

	settings, err := config.Load(persist.SettingsPath(dir))
	if err != nil {
		logger.Error().Err(err).
			Str("event", "daemon.settings_failed").
			Str(log.FieldDataDir, dir).
			Msg("could not load settings")
		return 1
	}
	id, err := identity.Load(settings)
	if err != nil {
		logger.Error().Err(err).
			Str("event", "daemon.identity_failed").
			Msg("could not load client identity")
		return 1
	}

	// Binding the control port doubles as the single-instance lock.
	port := settings.Int(config.KeyUIHTTPPort, 51343)
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		logger.Error().Err(err).
			Int("port", port).
			Str("event", "daemon.already_running").
			Msg("control port is taken, another instance appears to be running")
		return exitAlreadyRunning
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := session.NewManager(newFrontendLog())
	reg := registry.New(persist.HostsPath(dir), id,
		registry.WithOnChange(sessions.NotifyHostChanged))
	if err := reg.Load(); err != nil {
		logger.Warn().Err(err).
			Str("event", "daemon.hostdb_load_failed").
			Msg("starting with an empty host list")
	}
	defer reg.Close()

	art := artwork.NewManager(persist.BoxartDir(dir), id)
	defer art.Close()

	tokens := &razer.TokenHolder{}
	deviceName, err := os.Hostname()
	if err != nil || deviceName == "" {
		deviceName = "gamelink-client"
	}
	taskMgr := tasks.NewManager(reg, id, art, sessions, tokens,
		razer.NewSecretClient(""), deviceName)

	if settings.Bool(config.KeyMDNS, true) {
		browser := discovery.NewBrowser(func(found discovery.Found) {
			addr := net.JoinHostPort(found.Address, strconv.Itoa(int(found.Port)))
			if _, err := taskMgr.StartDiscoveredAdd(addr, found.IPv6Address); err != nil {
				logger.Warn().Err(err).
					Str(log.FieldAddress, addr).
					Str("event", "daemon.discovery_add_failed").
					Msg("discovered host could not be added")
			}
		})
		browser.Start()
		defer browser.Stop()
	}

	wd := watchdog.New(*watchProcess, func() {
		if active, ok := sessions.Active(); ok {
			sessions.End(active.HostUUID)
		}
		stop()
	})
	wd.Start()
	defer wd.Stop()

	server := api.New(reg, taskMgr, sessions, art, settings, tokens,
		deviceName, version, api.WithShutdown(stop))
	httpSrv := &http.Server{
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str(log.FieldDataDir, dir).
		Int("port", port).
		Msg("starting gamelinkd")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).
			Str("event", "daemon.failed").
			Msg("daemon exited with error")
		return 1
	}
	logger.Info().Msg("server exiting")
	return 0
}

// resolveDataDir picks the data directory: the -data flag when given,
// otherwise the shared on-disk layout default.
func resolveDataDir(flagValue string) (string, error) {
	if flagValue != "" {
		if err := os.MkdirAll(flagValue, 0o700); err != nil {
			return "", fmt.Errorf("create data dir %s: %w", flagValue, err)
		}
		return flagValue, nil
	}
	return persist.DataDir()
}
