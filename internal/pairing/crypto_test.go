package pairing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestECBRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	plaintext := []byte("exactly 32 bytes of plain text!!")

	ciphertext, err := ecbEncrypt(plaintext, key)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := ecbDecrypt(ciphertext, key)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestECBRejectsUnalignedInput(t *testing.T) {
	key := []byte("0123456789abcdef")
	_, err := ecbEncrypt([]byte("short"), key)
	require.Error(t, err)
	_, err = ecbDecrypt([]byte("short"), key)
	require.Error(t, err)
}

func TestPKCS7Pad(t *testing.T) {
	padded := pkcs7Pad([]byte("1234"), 16)
	require.Len(t, padded, 16)
	require.Equal(t, byte(12), padded[15])

	// Full blocks still grow by one block.
	padded = pkcs7Pad(make([]byte, 16), 16)
	require.Len(t, padded, 32)
	require.Equal(t, byte(16), padded[31])
}

func TestHashFuncByGeneration(t *testing.T) {
	h, n := hashFunc(7)
	require.Equal(t, 32, n)
	require.Len(t, h([]byte("x")), 32)

	h, n = hashFunc(3)
	require.Equal(t, 20, n)
	require.Len(t, h([]byte("x")), 20)
}

func TestFederatedKeyDeterministic(t *testing.T) {
	a := federatedKey("secret")
	b := federatedKey("secret")
	require.Equal(t, a, b)
	require.Len(t, a, 16)
	require.NotEqual(t, a, federatedKey("other"))
}

func TestWrapFederatedPIN(t *testing.T) {
	wrapped, err := WrapFederatedPIN("secret", "1234")
	require.NoError(t, err)
	require.Len(t, wrapped, 16)

	decrypted, err := ecbDecrypt(wrapped, federatedKey("secret"))
	require.NoError(t, err)
	require.Equal(t, []byte("1234"), decrypted[:4])
	require.Equal(t, byte(12), decrypted[15])
}

func testCert(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber:       big.NewInt(0),
		Subject:            pkix.Name{CommonName: "test host"},
		NotBefore:          time.Now(),
		NotAfter:           time.Now().AddDate(1, 0, 0),
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestCertSignature(t *testing.T) {
	_, certPEM := testCert(t)
	sig, err := certSignature(certPEM)
	require.NoError(t, err)
	require.Len(t, sig, 256)

	_, err = certSignature([]byte("not pem"))
	require.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	key, certPEM := testCert(t)
	data := []byte("payload")
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)

	require.True(t, verifySignature(data, sig, certPEM))
	require.False(t, verifySignature([]byte("other"), sig, certPEM))

	otherKey, _ := testCert(t)
	otherSig, err := rsa.SignPKCS1v15(rand.Reader, otherKey, crypto.SHA256, digest[:])
	require.NoError(t, err)
	require.False(t, verifySignature(data, otherSig, certPEM))
}
