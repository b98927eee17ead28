// SPDX-License-Identifier: MIT

// Package api implements the local control surface the desktop UI talks
// to: host inventory, pairing, streaming, settings, and task polling.
// All responses carry permissive CORS headers because the UI runs in a
// separate embedded browser process.
package api

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gamelinkhq/gamelink/internal/artwork"
	"github.com/gamelinkhq/gamelink/internal/config"
	"github.com/gamelinkhq/gamelink/internal/log"
	"github.com/gamelinkhq/gamelink/internal/razer"
	"github.com/gamelinkhq/gamelink/internal/registry"
	"github.com/gamelinkhq/gamelink/internal/session"
	"github.com/gamelinkhq/gamelink/internal/tasks"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Server wires the HTTP handlers to the control plane components.
type Server struct {
	reg      *registry.Registry
	tasks    *tasks.Manager
	sessions *session.Manager
	art      *artwork.Manager
	settings *config.Store
	tokens   *razer.TokenHolder

	deviceName string
	version    string
	shutdown   func()
	screenInfo ScreenInfo

	logger zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithShutdown installs the callback the /exit endpoint invokes.
func WithShutdown(fn func()) Option {
	return func(s *Server) { s.shutdown = fn }
}

// WithScreenInfo overrides the default display capability set.
func WithScreenInfo(info ScreenInfo) Option {
	return func(s *Server) { s.screenInfo = info }
}

func New(reg *registry.Registry, taskMgr *tasks.Manager, sessions *session.Manager,
	art *artwork.Manager, settings *config.Store, tokens *razer.TokenHolder,
	deviceName, version string, opts ...Option) *Server {
	s := &Server{
		reg:        reg,
		tasks:      taskMgr,
		sessions:   sessions,
		art:        art,
		settings:   settings,
		tokens:     tokens,
		deviceName: deviceName,
		version:    version,
		screenInfo: DefaultScreenInfo(Adapter{}, false),
		logger:     log.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router. The UI contract is GET-heavy with empty
// bodies on validation failures; only task starts and state reads carry
// JSON payloads.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(corsHeaders)
	r.Use(s.requestLogger)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.Get("/computers", s.handleComputers)
	r.Get("/apps", s.handleApps)
	r.Put("/hideapp", s.handleHideApp)
	r.Get("/razerid/availability", s.handleRazerAvailability)

	// Task starts are rate limited; the matching state polls are not.
	r.Group(func(r chi.Router) {
		r.Use(taskRateLimit())
		r.Get("/pair", s.handlePair)
		r.Get("/stream", s.handleStream)
		r.Post("/addcomputer", s.handleAddComputer)
		r.Delete("/deletecomputer", s.handleDeleteComputer)
		r.Get("/quitapp", s.handleQuitApp)
	})

	r.Get("/pairstate", s.handlePairState)
	r.Get("/cancelpair", s.handleCancelPair)
	r.Get("/streamstate", s.handleStreamState)
	r.Get("/addstate", s.taskStateHandler(tasks.KindAdd))
	r.Get("/deletestate", s.taskStateHandler(tasks.KindDelete))
	r.Get("/quitstate", s.taskStateHandler(tasks.KindQuit))

	r.Get("/settings", s.handleSettingsGet)
	r.Put("/settings", s.handleSettingsPut)
	r.Put("/settings/reset", s.handleSettingsReset)
	r.Get("/settings/screeninfo", s.handleScreenInfo)

	r.Get("/something", s.handleSummary)
	r.Post("/XRazerJWT", s.handleRazerJWT)
	r.Get("/exit", s.handleExit)
	r.Get("/alive", s.handleAlive)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
