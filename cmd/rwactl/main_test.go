package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"rwalend/gateway/auth"
)

const testPassEnv = "RWACTL_TEST_PASSPHRASE"

func TestKeygenThenAddress(t *testing.T) {
	t.Setenv(testPassEnv, "correct horse")
	path := filepath.Join(t.TempDir(), "alice.keystore")

	var created bytes.Buffer
	if err := runKeygen([]string{"-keystore", path, "-pass-env", testPassEnv}, &created); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if !strings.HasPrefix(created.String(), "rwa1") {
		t.Fatalf("unexpected address output %q", created.String())
	}
	if err := runKeygen([]string{"-keystore", path, "-pass-env", testPassEnv}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected keygen to refuse overwriting without -force")
	}

	var shown bytes.Buffer
	if err := runAddress([]string{"-keystore", path, "-pass-env", testPassEnv}, &shown); err != nil {
		t.Fatalf("address: %v", err)
	}
	if shown.String() != created.String() {
		t.Fatalf("address mismatch: got %q want %q", shown.String(), created.String())
	}
}

func TestSignProducesVerifiableHeaders(t *testing.T) {
	t.Setenv(testPassEnv, "correct horse")
	path := filepath.Join(t.TempDir(), "bob.keystore")
	var created bytes.Buffer
	if err := runKeygen([]string{"-keystore", path, "-pass-env", testPassEnv}, &created); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	body := `{"amount":"100000000"}`
	var out bytes.Buffer
	err := runSign([]string{"-keystore", path, "-pass-env", testPassEnv, "-path", "/v1/pool/stake?b=2&a=1", "-body", body}, &out)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "http://rwalend.test/v1/pool/stake?a=1&b=2", nil)
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			t.Fatalf("malformed header line %q", line)
		}
		req.Header.Set(name, value)
	}
	principal, err := auth.NewAuthenticator(time.Minute, time.Minute, 8, nil, nil).Authenticate(req, []byte(body))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got := principal.Account.String() + "\n"; got != created.String() {
		t.Fatalf("principal mismatch: got %q want %q", got, created.String())
	}
}

func TestAdminTokenCarriesScope(t *testing.T) {
	t.Setenv("RWACTL_TEST_SECRET", "s3cret")
	var out bytes.Buffer
	if err := runAdminToken([]string{"-secret-env", "RWACTL_TEST_SECRET", "-issuer", "ops"}, &out); err != nil {
		t.Fatalf("admin-token: %v", err)
	}
	parsed, err := jwt.Parse(strings.TrimSpace(out.String()), func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["scope"] != "rwalend:admin" || claims["iss"] != "ops" {
		t.Fatalf("unexpected claims: %v", claims)
	}
}
