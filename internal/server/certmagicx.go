package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caddyserver/certmagic"
	cloudflaredns "github.com/libdns/cloudflare"
	"golang.org/x/crypto/acme"

	v1 "github.com/DragonSecurity/podrelay/pkg/config/v1"
)

func acmeCAURL(which string) string {
	switch strings.ToLower(which) {
	case "staging":
		return certmagic.LetsEncryptStagingCA
	default:
		return certmagic.LetsEncryptProductionCA
	}
}

// makeCertMagic obtains certificates for the configured domain on first handshake, proving
// ownership through a DNS TXT record.
func makeCertMagic(cfg v1.ACMEConfig) (*tls.Config, error) {
	if cfg.Email == "" {
		return nil, errors.New("acme.email is required for dns-01")
	}
	if cfg.Domain == "" {
		return nil, errors.New("acme.domain is required for dns-01")
	}
	if cfg.Cache == "" {
		cfg.Cache = "cert-cache"
	}
	solver, err := dnsSolver(cfg)
	if err != nil {
		return nil, err
	}

	var magic *certmagic.Config
	cache := certmagic.NewCache(certmagic.CacheOptions{
		GetConfigForCert: func(certmagic.Certificate) (*certmagic.Config, error) { return magic, nil },
	})
	magic = certmagic.New(cache, certmagic.Config{
		Storage: &certmagic.FileStorage{Path: cfg.Cache},
		OnDemand: &certmagic.OnDemandConfig{
			DecisionFunc: func(ctx context.Context, name string) error {
				if !sameHost(name, cfg.Domain) {
					return fmt.Errorf("reject host outside configured domain: %s", name)
				}
				return nil
			},
		},
	})

	issuer := certmagic.NewACMEIssuer(magic, certmagic.ACMEIssuer{
		CA:                      acmeCAURL(cfg.CA),
		Email:                   cfg.Email,
		Agreed:                  true,
		DisableHTTPChallenge:    true,
		DisableTLSALPNChallenge: true,
		DNS01Solver:             solver,
	})
	magic.Issuers = []certmagic.Issuer{issuer}

	tlsConf := magic.TLSConfig()
	tlsConf.MinVersion = tls.VersionTLS12
	tlsConf.NextProtos = []string{"h2", "http/1.1", acme.ALPNProto}
	return tlsConf, nil
}

func dnsSolver(cfg v1.ACMEConfig) (*certmagic.DNS01Solver, error) {
	switch strings.ToLower(cfg.DNSProvider) {
	case "cloudflare":
		token := strings.TrimSpace(cfg.CloudflareToken)
		if token == "" {
			token = os.Getenv("CLOUDFLARE_API_TOKEN")
		}
		if token == "" {
			return nil, errors.New("cloudflare token is empty (set server.acme.cloudflare_token or CLOUDFLARE_API_TOKEN)")
		}
		return &certmagic.DNS01Solver{
			DNSManager: certmagic.DNSManager{
				DNSProvider: &cloudflaredns.Provider{APIToken: token},
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported acme.dns_provider %q", cfg.DNSProvider)
	}
}

func sameHost(a, b string) bool {
	return strings.EqualFold(hostOnly(a), hostOnly(b))
}
