package validation

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"

	v1 "github.com/DragonSecurity/podrelay/pkg/config/v1"
	"github.com/DragonSecurity/podrelay/pkg/util"
)

func validConfig() *v1.Config {
	return &v1.Config{
		Server: v1.ServerConfig{
			Listen:       ":3001",
			CORS:         true,
			MaxBodyBytes: 1 << 20,
		},
		Relay: v1.RelayConfig{
			Candidates:     []string{"http://127.0.0.1:6000/rpc"},
			AttemptTimeout: 10 * time.Second,
			MaxDetails:     5,
			EnhancedMethod: "get-pods-with-stats",
			LegacyMethod:   "get-pods",
		},
		Log: util.LogConfig{Level: "info"},
	}
}

func TestValidConfig(t *testing.T) {
	warn, err := ValidateConfig(validConfig())
	if err != nil || warn != nil {
		t.Fatalf("expect clean config, got warn=%v err=%v", warn, err)
	}
}

func TestErrorsAreAggregated(t *testing.T) {
	c := validConfig()
	c.Relay.Candidates = nil
	c.Relay.AttemptTimeout = 0
	c.Relay.MaxDetails = 0
	c.Log.Level = "loud"

	_, err := ValidateConfig(c)
	if err == nil {
		t.Fatal("expect errors")
	}
	if n := len(multierr.Errors(err)); n != 4 {
		t.Fatalf("expect 4 errors, got %d: %v", n, err)
	}
}

func TestEtcdReplacesStaticCandidates(t *testing.T) {
	c := validConfig()
	c.Relay.Candidates = nil
	c.Candidates.Etcd.Endpoints = []string{"127.0.0.1:2379"}
	if _, err := ValidateConfig(c); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestBadCandidate(t *testing.T) {
	c := validConfig()
	c.Relay.Candidates = []string{"ftp://example.com/rpc"}
	_, err := ValidateConfig(c)
	if err == nil || !strings.Contains(err.Error(), "relay.candidates") {
		t.Fatalf("expect candidate error, got %v", err)
	}
}

func TestTLSPair(t *testing.T) {
	c := validConfig()
	c.Server.TLS.CertFile = "server.crt"
	if _, err := ValidateConfig(c); err == nil {
		t.Fatal("cert without key should fail")
	}
	c.Server.TLS.KeyFile = "server.key"
	if _, err := ValidateConfig(c); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestACME(t *testing.T) {
	c := validConfig()
	c.Server.ACME = v1.ACMEConfig{Enable: true, Challenge: "dns-01", CA: "production", DNSProvider: "cloudflare"}
	_, err := ValidateConfig(c)
	if err == nil {
		t.Fatal("expect errors")
	}
	for _, want := range []string{"acme.email", "acme.domain", "cloudflare_token"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expect %q in %v", want, err)
		}
	}

	c.Server.ACME.Email = "ops@example.com"
	c.Server.ACME.Domain = "relay.example.com"
	c.Server.ACME.CloudflareToken = "tok"
	if _, err := ValidateConfig(c); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestWarnings(t *testing.T) {
	c := validConfig()
	c.Relay.Budget = time.Second
	c.Relay.TLS.InsecureSkipVerify = true
	warn, err := ValidateConfig(c)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if n := len(multierr.Errors(warn)); n != 2 {
		t.Fatalf("expect 2 warnings, got %d: %v", n, warn)
	}
}

func TestRateLimit(t *testing.T) {
	c := validConfig()
	c.Server.RateLimit = v1.RateLimitConfig{RPS: 5}
	if _, err := ValidateConfig(c); err == nil {
		t.Fatal("burst 0 with rps set should fail")
	}
}
