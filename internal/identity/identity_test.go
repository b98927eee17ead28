package identity

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gamelinkhq/gamelink/internal/config"
)

func newStore(t *testing.T) *config.Store {
	t.Helper()
	s, err := config.Load(filepath.Join(t.TempDir(), "general.json"))
	require.NoError(t, err)
	return s
}

func TestLoadGeneratesAndPersists(t *testing.T) {
	store := newStore(t)

	m, err := Load(store)
	require.NoError(t, err)
	require.NotEmpty(t, m.CertPEM())
	require.NotEmpty(t, m.KeyPEM())
	require.NotEmpty(t, m.SignatureBytes())

	// Stored form is newline-encoded.
	stored := store.String(config.KeyCertificate, "")
	require.NotContains(t, stored, "\n")
	require.Contains(t, stored, "$CR$")

	// A second load returns the same credential.
	m2, err := Load(store)
	require.NoError(t, err)
	require.Equal(t, m.CertPEM(), m2.CertPEM())
}

func TestCertificateShape(t *testing.T) {
	m, err := Load(newStore(t))
	require.NoError(t, err)

	block, _ := pem.Decode(m.CertPEM())
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	require.Equal(t, "GameStream Client", cert.Subject.CommonName)
	require.Equal(t, x509.SHA256WithRSA, cert.SignatureAlgorithm)
	require.Equal(t, int64(0), cert.SerialNumber.Int64())
	require.Equal(t, 2048, cert.PublicKey.(*rsa.PublicKey).N.BitLen())
	require.InDelta(t, 20, cert.NotAfter.Year()-cert.NotBefore.Year(), 1)
}

func TestSignVerifies(t *testing.T) {
	m, err := Load(newStore(t))
	require.NoError(t, err)

	payload := []byte("challenge material")
	sig, err := m.Sign(payload)
	require.NoError(t, err)

	block, _ := pem.Decode(m.CertPEM())
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	digest := sha256.Sum256(payload)
	require.NoError(t, rsa.VerifyPKCS1v15(cert.PublicKey.(*rsa.PublicKey), crypto.SHA256, digest[:], sig))
}

func TestLoadRejectsCorruptMaterial(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SetString(config.KeyCertificate, "not pem"))
	require.NoError(t, store.SetString(config.KeyKey, "not pem"))

	_, err := Load(store)
	require.Error(t, err)
}
