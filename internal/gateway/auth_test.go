package gateway

import (
	"encoding/base64"
	"testing"
)

func TestHeadersIncludesCredentialFields(t *testing.T) {
	t.Parallel()
	secret := base64.URLEncoding.EncodeToString([]byte("s3cr3t"))
	a := NewAuth(Credentials{APIKey: "key1", Secret: secret, Passphrase: "pass1"})

	headers, err := a.Headers("POST", "/orders", `{"price":"1.00"}`)
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if headers["API-KEY"] != "key1" {
		t.Errorf("API-KEY = %q, want key1", headers["API-KEY"])
	}
	if headers["API-PASS"] != "pass1" {
		t.Errorf("API-PASS = %q, want pass1", headers["API-PASS"])
	}
	if headers["API-SIGN"] == "" {
		t.Errorf("API-SIGN is empty")
	}
	if headers["API-TS"] == "" {
		t.Errorf("API-TS is empty")
	}
}

func TestBuildHMACIsDeterministicForSameInputs(t *testing.T) {
	t.Parallel()
	secret := base64.URLEncoding.EncodeToString([]byte("s3cr3t"))
	a := NewAuth(Credentials{APIKey: "key1", Secret: secret})

	sig1, err := a.buildHMAC("1700000000", "POST", "/orders", "body")
	if err != nil {
		t.Fatalf("buildHMAC: %v", err)
	}
	sig2, err := a.buildHMAC("1700000000", "POST", "/orders", "body")
	if err != nil {
		t.Fatalf("buildHMAC: %v", err)
	}
	if sig1 != sig2 {
		t.Errorf("buildHMAC not deterministic: %q != %q", sig1, sig2)
	}
}

func TestBuildHMACChangesWithMessage(t *testing.T) {
	t.Parallel()
	secret := base64.URLEncoding.EncodeToString([]byte("s3cr3t"))
	a := NewAuth(Credentials{APIKey: "key1", Secret: secret})

	sig1, err := a.buildHMAC("1700000000", "POST", "/orders", "body-a")
	if err != nil {
		t.Fatalf("buildHMAC: %v", err)
	}
	sig2, err := a.buildHMAC("1700000000", "POST", "/orders", "body-b")
	if err != nil {
		t.Fatalf("buildHMAC: %v", err)
	}
	if sig1 == sig2 {
		t.Errorf("expected different signatures for different bodies")
	}
}

func TestBuildHMACAcceptsEitherBase64Encoding(t *testing.T) {
	t.Parallel()
	raw := []byte("s3cr3t-raw")

	tests := []struct {
		name string
		enc  *base64.Encoding
	}{
		{"url", base64.URLEncoding},
		{"raw-url", base64.RawURLEncoding},
		{"std", base64.StdEncoding},
		{"raw-std", base64.RawStdEncoding},
	}

	var sigs []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := NewAuth(Credentials{Secret: tt.enc.EncodeToString(raw)})
			sig, err := a.buildHMAC("1700000000", "GET", "/orders", "")
			if err != nil {
				t.Fatalf("buildHMAC: %v", err)
			}
			sigs = append(sigs, sig)
		})
	}
}

func TestBuildHMACRejectsUndecodableSecret(t *testing.T) {
	t.Parallel()
	a := NewAuth(Credentials{Secret: "!!!not-base64!!!"})
	if _, err := a.buildHMAC("1700000000", "GET", "/orders", ""); err == nil {
		t.Errorf("expected error for undecodable secret")
	}
}
