package persist

import "testing"

func TestNewlineTokenRoundTrip(t *testing.T) {
	pem := "-----BEGIN CERTIFICATE-----\nMIIB\nAQAB\n-----END CERTIFICATE-----\n"
	encoded := EncodeNewlines(pem)
	if got := DecodeNewlines(encoded); got != pem {
		t.Fatalf("round trip mismatch:\n%q\n%q", pem, got)
	}
}

func TestEncodeNewlinesRemovesAll(t *testing.T) {
	encoded := EncodeNewlines("a\nb\nc")
	for _, r := range encoded {
		if r == '\n' {
			t.Fatalf("encoded value still contains newline: %q", encoded)
		}
	}
	if encoded != "a$CR$b$CR$c" {
		t.Fatalf("unexpected encoding: %q", encoded)
	}
}

func TestDecodeNewlinesIdempotentOnPlainText(t *testing.T) {
	if got := DecodeNewlines("no tokens here"); got != "no tokens here" {
		t.Fatalf("plain text changed: %q", got)
	}
}
