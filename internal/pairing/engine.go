// SPDX-License-Identifier: MIT

// Package pairing implements the five round PIN exchange that
// establishes mutual certificate trust with a host.
package pairing

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamelinkhq/gamelink/internal/identity"
	"github.com/gamelinkhq/gamelink/internal/log"
	"github.com/gamelinkhq/gamelink/internal/nvhttp"
)

// Outcome is the terminal state of a pair attempt.
type Outcome int

const (
	Failed Outcome = iota
	Paired
	PinWrong
	AlreadyInProgress
	FederationRejected
)

func (o Outcome) String() string {
	switch o {
	case Paired:
		return "paired"
	case PinWrong:
		return "pin_wrong"
	case AlreadyInProgress:
		return "already_in_progress"
	case FederationRejected:
		return "federation_rejected"
	default:
		return "failed"
	}
}

// FederatedParams carry the identity service material for a federated
// pair attempt, where the host validates the PIN against the signed-in
// account instead of prompting its user.
type FederatedParams struct {
	Secret      string
	PincodeUUID string
	AccountUUID string
}

// A federated host answers the first round as soon as its own account
// check completes rather than waiting on user input.
const federatedRoundTimeout = 60 * time.Second

// Engine drives the pairing rounds over one host client. The first
// round blocks until the host user enters the PIN; Cancel aborts it.
type Engine struct {
	client     *nvhttp.Client
	id         *identity.Manager
	deviceName string
	logger     zerolog.Logger
}

func NewEngine(client *nvhttp.Client, id *identity.Manager, deviceName string) *Engine {
	return &Engine{
		client:     client,
		id:         id,
		deviceName: deviceName,
		logger:     log.WithComponent("pairing"),
	}
}

// Cancel aborts a pair attempt blocked on the host's PIN prompt.
func (e *Engine) Cancel() {
	e.client.Stop()
}

// Pair runs the full exchange. On success the host certificate is
// pinned on the client; every failure after the host accepted the
// attempt tears the half-pairing down with an unpair request.
func (e *Engine) Pair(ctx context.Context, serverMajor int, pin string, fed *FederatedParams) (Outcome, error) {
	hash, hashLen := hashFunc(serverMajor)

	salt := randomBytes(16)
	aesKey := hash(append(append([]byte(nil), salt...), []byte(pin)...))[:16]

	args := "devicename=roth&updateState=1&phrase=getservercert" +
		"&devicenickname=" + url.QueryEscape(e.deviceName) +
		"&salt=" + hex.EncodeToString(salt) +
		"&clientcert=" + hex.EncodeToString(e.id.CertPEM())
	timeout := time.Duration(nvhttp.NoTimeout)
	if fed != nil {
		cipherPIN, err := WrapFederatedPIN(fed.Secret, pin)
		if err != nil {
			return Failed, fmt.Errorf("wrap pin: %w", err)
		}
		args += "&razer_pincode=" + hex.EncodeToString(cipherPIN) +
			"&razer_pincode_uuid=" + url.QueryEscape(fed.PincodeUUID) +
			"&razer_uuid=" + url.QueryEscape(fed.AccountUUID) +
			"&env=prod"
		timeout = federatedRoundTimeout
	}

	e.logger.Info().
		Str(log.FieldAddress, e.client.Address().String()).
		Str(log.FieldEvent, "pairing.started").
		Bool("federated", fed != nil).
		Msg("waiting for host to accept pairing")

	doc, err := e.client.Request(ctx, false, "pair", args, timeout)
	if err != nil {
		return Failed, err
	}
	if err := pairAccepted(doc); err != nil {
		return Failed, err
	}
	serverCertPEM, err := nvhttp.XMLHex(doc, "plaincert")
	if err != nil {
		return Failed, err
	}
	if len(serverCertPEM) == 0 {
		// The host serves one pair attempt at a time and answers
		// concurrent ones with an empty certificate.
		e.unpair(ctx)
		return AlreadyInProgress, fmt.Errorf("host is pairing with another client")
	}
	e.client.SetServerCert(serverCertPEM)

	challenge := randomBytes(16)
	encrypted, err := ecbEncrypt(challenge, aesKey)
	if err != nil {
		return Failed, err
	}
	doc, err = e.client.Request(ctx, false, "pair",
		"devicename=roth&updateState=1&clientchallenge="+hex.EncodeToString(encrypted),
		nvhttp.RequestTimeout)
	if err != nil {
		return e.fail(ctx, err)
	}
	if err := pairAccepted(doc); err != nil {
		return e.fail(ctx, err)
	}
	challengeResponse, err := nvhttp.XMLHex(doc, "challengeresponse")
	if err != nil {
		return e.fail(ctx, err)
	}
	decrypted, err := ecbDecrypt(challengeResponse, aesKey)
	if err != nil {
		return e.fail(ctx, err)
	}
	if len(decrypted) < hashLen+16 {
		return e.fail(ctx, fmt.Errorf("challenge response too short: %d bytes", len(decrypted)))
	}
	serverResponse := decrypted[:hashLen]
	serverChallenge := decrypted[hashLen : hashLen+16]

	clientSecret := randomBytes(16)
	clientResponse := append(append(append([]byte(nil), serverChallenge...),
		e.id.SignatureBytes()...), clientSecret...)
	paddedHash := make([]byte, 32)
	copy(paddedHash, hash(clientResponse))
	encrypted, err = ecbEncrypt(paddedHash, aesKey)
	if err != nil {
		return e.fail(ctx, err)
	}
	doc, err = e.client.Request(ctx, false, "pair",
		"devicename=roth&updateState=1&serverchallengeresp="+hex.EncodeToString(encrypted),
		nvhttp.RequestTimeout)
	if err != nil {
		return e.fail(ctx, err)
	}
	if err := pairAccepted(doc); err != nil {
		return e.fail(ctx, err)
	}
	pairingSecret, err := nvhttp.XMLHex(doc, "pairingsecret")
	if err != nil {
		return e.fail(ctx, err)
	}
	if len(pairingSecret) < 16 {
		return e.fail(ctx, fmt.Errorf("pairing secret too short: %d bytes", len(pairingSecret)))
	}
	serverSecret := pairingSecret[:16]
	serverSignature := pairingSecret[16:]

	// An unsigned or wrongly signed secret means someone else answered.
	if !verifySignature(serverSecret, serverSignature, serverCertPEM) {
		e.unpair(ctx)
		e.logger.Warn().
			Str(log.FieldAddress, e.client.Address().String()).
			Str(log.FieldEvent, "pairing.signature_mismatch").
			Msg("host failed to prove ownership of its certificate")
		return Failed, fmt.Errorf("host signature invalid, possible man in the middle")
	}

	serverCertSig, err := certSignature(serverCertPEM)
	if err != nil {
		return e.fail(ctx, err)
	}
	expected := hash(append(append(append([]byte(nil), challenge...), serverCertSig...), serverSecret...))
	if !bytes.Equal(expected, serverResponse) {
		e.unpair(ctx)
		return PinWrong, fmt.Errorf("pin mismatch")
	}

	clientSignature, err := e.id.Sign(clientSecret)
	if err != nil {
		return e.fail(ctx, err)
	}
	clientPairingSecret := append(append([]byte(nil), clientSecret...), clientSignature...)
	doc, err = e.client.Request(ctx, false, "pair",
		"devicename=roth&updateState=1&clientpairingsecret="+hex.EncodeToString(clientPairingSecret),
		nvhttp.RequestTimeout)
	if err != nil {
		return e.fail(ctx, err)
	}
	if err := pairAccepted(doc); err != nil {
		return e.fail(ctx, err)
	}

	// The final round runs over TLS to prove both sides hold the keys
	// they just exchanged certificates for.
	doc, err = e.client.Request(ctx, true, "pair",
		"devicename=roth&updateState=1&phrase=pairchallenge",
		nvhttp.RequestTimeout)
	if err != nil {
		return e.fail(ctx, err)
	}
	if err := pairAccepted(doc); err != nil {
		return e.fail(ctx, err)
	}

	e.logger.Info().
		Str(log.FieldAddress, e.client.Address().String()).
		Str(log.FieldEvent, "pairing.completed").
		Msg("pairing completed")
	return Paired, nil
}

// fail tears down the half-established pairing and surfaces the cause.
func (e *Engine) fail(ctx context.Context, err error) (Outcome, error) {
	e.unpair(ctx)
	return Failed, err
}

func (e *Engine) unpair(ctx context.Context) {
	if err := e.client.Unpair(ctx); err != nil {
		e.logger.Debug().Err(err).
			Str(log.FieldEvent, "pairing.unpair_failed").
			Msg("cleanup unpair failed")
	}
}

// pairAccepted checks both the envelope status and the per-round paired
// flag the host sets to 1 while the exchange is on track.
func pairAccepted(doc []byte) error {
	if err := nvhttp.VerifyStatus(doc); err != nil {
		return err
	}
	if nvhttp.XMLString(doc, "paired") != "1" {
		return fmt.Errorf("host rejected pairing round")
	}
	return nil
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err) // the platform CSPRNG never fails
	}
	return b
}
