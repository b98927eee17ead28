// SPDX-License-Identifier: MIT

// Package identity owns the long-lived client credential: one RSA-2048 key
// pair and a self-signed certificate presented to every host. The pair is
// generated on first start and stored inside the settings file, newline
// encoded because the backend is line oriented.
package identity

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/gamelinkhq/gamelink/internal/config"
	"github.com/gamelinkhq/gamelink/internal/log"
	"github.com/gamelinkhq/gamelink/internal/persist"
)

// UniqueID is the fixed client identifier sent with every host request.
// Server software never keys on it; pairing trust comes from the
// certificate alone.
const UniqueID = "0123456789ABCDEF"

const (
	commonName    = "GameStream Client"
	validityYears = 20
)

// Manager holds the loaded credential. Read-only after construction.
type Manager struct {
	certPEM []byte
	keyPEM  []byte
	cert    *x509.Certificate
	key     *rsa.PrivateKey
	tlsCert tls.Certificate
}

// Load restores the credential from settings, generating and persisting a
// fresh one when none exists. Corrupt stored material is an error; callers
// treat it as fatal.
func Load(store *config.Store) (*Manager, error) {
	logger := log.WithComponent("identity")

	certPEM := persist.DecodeNewlines(store.String(config.KeyCertificate, ""))
	keyPEM := persist.DecodeNewlines(store.String(config.KeyKey, ""))

	if certPEM == "" || keyPEM == "" {
		logger.Info().Str("event", "identity.generate").Msg("generating client identity")
		var err error
		certPEM, keyPEM, err = generate()
		if err != nil {
			return nil, fmt.Errorf("generate identity: %w", err)
		}
		if err := store.SetString(config.KeyCertificate, persist.EncodeNewlines(certPEM)); err != nil {
			return nil, fmt.Errorf("store certificate: %w", err)
		}
		if err := store.SetString(config.KeyKey, persist.EncodeNewlines(keyPEM)); err != nil {
			return nil, fmt.Errorf("store key: %w", err)
		}
	}

	m, err := parse([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	logger.Debug().Str("event", "identity.loaded").Msg("client identity ready")
	return m, nil
}

func generate() (certPEM, keyPEM string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:       big.NewInt(0),
		Subject:            pkix.Name{CommonName: commonName},
		NotBefore:          now,
		NotAfter:           now.AddDate(validityYears, 0, 0),
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return "", "", err
	}

	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	return certPEM, keyPEM, nil
}

func parse(certPEM, keyPEM []byte) (*Manager, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, fmt.Errorf("certificate is not valid PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("private key is not valid PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("build TLS pair: %w", err)
	}

	return &Manager{
		certPEM: certPEM,
		keyPEM:  keyPEM,
		cert:    cert,
		key:     key,
		tlsCert: tlsCert,
	}, nil
}

// CertPEM returns the certificate in PEM form.
func (m *Manager) CertPEM() []byte { return m.certPEM }

// KeyPEM returns the private key in PEM form.
func (m *Manager) KeyPEM() []byte { return m.keyPEM }

// TLSCertificate returns the pair in the form the TLS stack expects.
func (m *Manager) TLSCertificate() tls.Certificate { return m.tlsCert }

// SignatureBytes returns the raw signature field of the client certificate,
// used verbatim in the pairing challenge material.
func (m *Manager) SignatureBytes() []byte { return m.cert.Signature }

// Sign produces a PKCS#1 v1.5 SHA-256 signature over data.
func (m *Manager) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, m.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}
