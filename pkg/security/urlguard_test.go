package security

import (
	"strings"
	"testing"
)

func TestURLGuardRejectsScheme(t *testing.T) {
	g := NewURLGuard(DefaultURLGuardConfig())

	if err := g.ValidateURL("ftp://example.com/file"); err == nil {
		t.Fatal("ftp scheme should be rejected")
	}
}

func TestURLGuardRejectsPrivateTargets(t *testing.T) {
	g := NewURLGuard(DefaultURLGuardConfig())

	cases := []string{
		"http://10.0.0.1/callback",
		"http://192.168.1.5/callback",
		"http://169.254.169.254/computeMetadata",
		"http://127.0.0.1/callback",
	}
	for _, raw := range cases {
		if err := g.ValidateURL(raw); err == nil {
			t.Errorf("ValidateURL(%q) should fail", raw)
		}
	}
}

func TestURLGuardAllowlist(t *testing.T) {
	config := DefaultURLGuardConfig()
	config.AllowedHosts = []string{"bot-api.kakao.com"}
	g := NewURLGuard(config)

	err := g.ValidateURL("https://attacker.example/callback")
	if err == nil || !strings.Contains(err.Error(), "allowlist") {
		t.Fatalf("expected allowlist rejection, got %v", err)
	}
}

func TestURLGuardLocalhostOptIn(t *testing.T) {
	config := DefaultURLGuardConfig()
	config.AllowLocalhost = true
	g := NewURLGuard(config)

	if err := g.ValidateURL("http://localhost:8080/callback"); err != nil {
		t.Fatalf("localhost should be allowed when opted in: %v", err)
	}
}
