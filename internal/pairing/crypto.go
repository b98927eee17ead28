// SPDX-License-Identifier: MIT

package pairing

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/md5"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// ecbEncrypt runs AES-128-ECB without padding; input must be block
// aligned, which every pairing payload is.
func ecbEncrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, err
	}
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("plaintext length %d not block aligned", len(plaintext))
	}
	out := make([]byte, len(plaintext))
	for i := 0; i < len(plaintext); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], plaintext[i:i+aes.BlockSize])
	}
	return out, nil
}

func ecbDecrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d not block aligned", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}
	return out, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(pad)}, pad)...)
}

// hashFunc returns the round hash for a server generation: SHA-256 with
// length 32 for generation 7 and later, SHA-1 with length 20 before.
func hashFunc(serverMajor int) (func([]byte) []byte, int) {
	if serverMajor >= 7 {
		return func(b []byte) []byte { s := sha256.Sum256(b); return s[:] }, sha256.Size
	}
	return func(b []byte) []byte { s := sha1.Sum(b); return s[:] }, sha1.Size
}

// certSignature extracts the raw signature bytes from a PEM certificate.
func certSignature(certPEM []byte) ([]byte, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("certificate is not valid PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert.Signature, nil
}

// verifySignature checks an RSA PKCS#1 v1.5 SHA-256 signature over data
// with the public key of the given PEM certificate.
func verifySignature(data, signature, certPEM []byte) bool {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return false
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false
	}
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature) == nil
}

// federatedKey derives the AES key wrapping a federated PIN. The identity
// service secret is digested with MD5 and that raw digest hashed again
// with SHA-256; the first 16 bytes key the cipher.
func federatedKey(secret string) []byte {
	m := md5.Sum([]byte(secret)) //nolint:gosec // mandated by the wire format
	s := sha256.Sum256(m[:])
	return s[:16]
}

// WrapFederatedPIN encrypts a PIN for delivery in the first pairing round
// of a federated pair attempt.
func WrapFederatedPIN(secret, pin string) ([]byte, error) {
	return ecbEncrypt(pkcs7Pad([]byte(pin), aes.BlockSize), federatedKey(secret))
}
