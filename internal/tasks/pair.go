// SPDX-License-Identifier: MIT

package tasks

import (
	"context"
	"errors"

	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/locale"
	"github.com/gamelinkhq/gamelink/internal/log"
	"github.com/gamelinkhq/gamelink/internal/nvhttp"
	"github.com/gamelinkhq/gamelink/internal/pairing"
	"github.com/gamelinkhq/gamelink/internal/razer"
)

// StartPair begins a pair attempt against a known host. Preconditions
// are checked synchronously; the exchange itself runs in the background
// and is observed through the returned task id.
func (m *Manager) StartPair(hostUUID, pin string, useRazerJWT bool) (string, error) {
	host, ok := m.reg.Get(hostUUID)
	if !ok {
		return "", errors.New(locale.MsgHostNotExist)
	}

	host.RLock()
	state := host.State
	pairState := host.PairState
	currentGame := host.CurrentGameID
	serverMajor := majorVersion(host.AppVersion)
	mode := host.FederatedPairMode
	sameIdentity := host.UseSameIdentity
	host.RUnlock()

	switch {
	case state != hostdb.StateOnline:
		return "", errors.New(locale.MsgPairHostOffline)
	case pairState == hostdb.Paired:
		return "", errors.New(locale.MsgPairAlreadyPaired)
	case currentGame != 0:
		return "", errors.New(locale.MsgPairSessionRunning)
	case useRazerJWT && (m.tokens == nil || !m.tokens.Available()):
		return "", errors.New(locale.MsgPairIdentityFailed)
	}

	t, started := m.begin(KindPair, hostUUID)
	if !started {
		return "", errors.New(locale.MsgPairInProgress)
	}

	address, httpsPort, _ := host.ActiveTarget()
	client := nvhttp.NewClient(address, httpsPort, nil, m.id)
	engine := pairing.NewEngine(client, m.id, m.deviceName)

	m.mu.Lock()
	m.pairEngines[t.id] = engine
	m.mu.Unlock()

	go m.runPair(t, engine, client, host, hostUUID, pin, serverMajor, useRazerJWT, mode, sameIdentity)
	return t.id, nil
}

// CancelPair aborts a pair attempt blocked on the host PIN prompt.
func (m *Manager) CancelPair(taskID string) bool {
	m.mu.Lock()
	engine := m.pairEngines[taskID]
	m.mu.Unlock()
	if engine == nil {
		return false
	}
	engine.Cancel()
	return true
}

func (m *Manager) runPair(t *task, engine *pairing.Engine, client *nvhttp.Client,
	host *hostdb.Host, hostUUID, pin string, serverMajor int, useRazerJWT bool,
	mode hostdb.FederatedPairMode, sameIdentity bool) {
	defer func() {
		m.mu.Lock()
		delete(m.pairEngines, t.id)
		m.mu.Unlock()
	}()
	ctx, logger := m.taskContext(t)

	var fed *pairing.FederatedParams
	if useRazerJWT {
		var err error
		fed, err = m.federatedParams(ctx, mode, sameIdentity)
		if err != nil {
			t.finish(false, locale.MsgPairIdentityFailed)
			return
		}
	}

	outcome, err := engine.Pair(ctx, serverMajor, pin, fed)
	recordPairOutcome(outcome.String())
	if outcome != pairing.Paired {
		logger.Warn().Err(err).
			Str(log.FieldHostUUID, hostUUID).
			Str("outcome", outcome.String()).
			Str(log.FieldEvent, "tasks.pair_failed").
			Msg("pair attempt failed")
		t.finish(false, pairMessage(outcome, fed != nil))
		return
	}

	host.Lock()
	host.PairState = hostdb.Paired
	host.ServerCert = client.ServerCert()
	host.Unlock()
	m.reg.MarkDirty()

	logger.Info().
		Str(log.FieldHostUUID, hostUUID).
		Str(log.FieldEvent, "tasks.paired").
		Msg("host paired")
	t.finish(true, "")
}

// federatedParams fetches the identity service material when a signed-in
// account can federate against this host. nil params mean PIN pairing.
func (m *Manager) federatedParams(ctx context.Context, mode hostdb.FederatedPairMode, sameIdentity bool) (*pairing.FederatedParams, error) {
	if m.tokens == nil || !m.tokens.Available() {
		return nil, nil
	}
	if ok, _ := razer.Availability(mode, hostdb.NotPaired, sameIdentity); !ok {
		return nil, nil
	}
	secret, err := m.secrets.GenerateSecret(ctx, m.tokens.Token())
	if err != nil {
		return nil, err
	}
	return &pairing.FederatedParams{
		Secret:      secret.Secret,
		PincodeUUID: secret.UUID,
		AccountUUID: m.tokens.AccountUUID(),
	}, nil
}

func pairMessage(outcome pairing.Outcome, federated bool) string {
	switch outcome {
	case pairing.PinWrong:
		if federated {
			return locale.MsgPairIdentityFailed
		}
		return locale.MsgPairPinMismatch
	case pairing.AlreadyInProgress:
		return locale.MsgPairInProgress
	case pairing.FederationRejected:
		return locale.MsgPairIdentityFailed
	default:
		return locale.MsgPairFailed
	}
}

// majorVersion extracts the leading component of a dotted version.
func majorVersion(quad string) int {
	parts := nvhttp.ParseVersionQuad(quad)
	if len(parts) == 0 {
		return 0
	}
	return parts[0]
}
