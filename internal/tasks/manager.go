// SPDX-License-Identifier: MIT

// Package tasks runs the long operations the control API exposes as
// start/poll-state pairs: pairing, adding, deleting, and quitting hosts.
// Every started operation gets a task id the UI polls; one operation per
// subject may run at a time.
package tasks

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gamelinkhq/gamelink/internal/artwork"
	"github.com/gamelinkhq/gamelink/internal/identity"
	"github.com/gamelinkhq/gamelink/internal/log"
	"github.com/gamelinkhq/gamelink/internal/pairing"
	"github.com/gamelinkhq/gamelink/internal/razer"
	"github.com/gamelinkhq/gamelink/internal/registry"
	"github.com/gamelinkhq/gamelink/internal/session"
)

// Result is the observable state of one task.
type Result struct {
	Completed bool
	Succeeded bool
	Message   string
}

// Kind partitions the task table by operation.
type Kind string

const (
	KindPair   Kind = "pair"
	KindAdd    Kind = "add"
	KindDelete Kind = "delete"
	KindQuit   Kind = "quit"
)

type task struct {
	id   string
	kind Kind
	key  string

	mu     sync.Mutex
	result Result
}

func (t *task) finish(succeeded bool, message string) {
	t.mu.Lock()
	t.result = Result{Completed: true, Succeeded: succeeded, Message: message}
	t.mu.Unlock()
}

func (t *task) state() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Manager owns the task table.
type Manager struct {
	reg      *registry.Registry
	id       *identity.Manager
	art      *artwork.Manager
	sessions *session.Manager
	tokens   *razer.TokenHolder
	secrets  *razer.SecretClient

	deviceName string
	stunServer string

	mu          sync.Mutex
	tasks       map[string]*task           // by task id
	slots       map[string]*task           // by kind+subject, latest attempt
	pairEngines map[string]*pairing.Engine // by task id

	logger zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithSTUNServer overrides the public address probe target.
func WithSTUNServer(addr string) Option {
	return func(m *Manager) { m.stunServer = addr }
}

func NewManager(reg *registry.Registry, id *identity.Manager, art *artwork.Manager,
	sessions *session.Manager, tokens *razer.TokenHolder, secrets *razer.SecretClient,
	deviceName string, opts ...Option) *Manager {
	m := &Manager{
		reg:         reg,
		id:          id,
		art:         art,
		sessions:    sessions,
		tokens:      tokens,
		secrets:     secrets,
		deviceName:  deviceName,
		stunServer:  defaultSTUNServer,
		tasks:       make(map[string]*task),
		slots:       make(map[string]*task),
		pairEngines: make(map[string]*pairing.Engine),
		logger:      log.WithComponent("tasks"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GeneratePIN returns a fresh zero-padded four digit pairing PIN.
func GeneratePIN() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		panic(err) // the platform CSPRNG never fails
	}
	return fmt.Sprintf("%04d", n.Int64())
}

// begin claims the slot for (kind, key). While an attempt for the same
// subject is in flight its task is returned instead of a new one.
func (m *Manager) begin(kind Kind, key string) (*task, bool) {
	slot := string(kind) + "\x00" + key
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.slots[slot]; ok && !existing.state().Completed {
		return existing, false
	}
	t := &task{id: uuid.NewString(), kind: kind, key: key}
	m.tasks[t.id] = t
	m.slots[slot] = t
	return t, true
}

// taskContext returns a context carrying the task id plus a logger that
// stamps it on every line the worker emits.
func (m *Manager) taskContext(t *task) (context.Context, zerolog.Logger) {
	ctx := log.ContextWithTaskID(context.Background(), t.id)
	return ctx, log.WithContext(ctx, m.logger)
}

// TaskResult returns the state of a task by id.
func (m *Manager) TaskResult(taskID string) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return Result{}, false
	}
	return t.state(), true
}

// TaskKind returns the kind of a task by id.
func (m *Manager) TaskKind(taskID string) (Kind, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return "", false
	}
	return t.kind, true
}
