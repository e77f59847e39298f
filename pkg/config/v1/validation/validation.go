package validation

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/multierr"

	"github.com/DragonSecurity/podrelay/internal/candidates"
	v1 "github.com/DragonSecurity/podrelay/pkg/config/v1"
)

var (
	SupportedChallenges   = []string{"http-01", "dns-01"}
	SupportedDNSProviders = []string{"cloudflare"}
	SupportedACMECAs      = []string{"production", "staging"}
	SupportedLogLevels    = []string{"trace", "debug", "info", "warn", "warning", "error"}
)

// Warning collects findings that do not stop startup.
type Warning error

func AppendError(err error, errs ...error) error {
	return multierr.Append(err, multierr.Combine(errs...))
}

func ValidateConfig(c *v1.Config) (Warning, error) {
	if c == nil {
		return nil, errors.New("config is nil")
	}
	var (
		warnings Warning
		errs     error
	)

	if len(c.Relay.Candidates) == 0 && !c.Candidates.Etcd.Enabled() {
		errs = AppendError(errs, errors.New("relay.candidates is empty and candidates.etcd is not configured"))
	}
	for _, raw := range c.Relay.Candidates {
		if _, err := candidates.Normalize(raw); err != nil {
			errs = AppendError(errs, fmt.Errorf("relay.candidates: %w", err))
		}
	}
	if c.Relay.AttemptTimeout <= 0 {
		errs = AppendError(errs, errors.New("relay.attempt_timeout must be positive"))
	}
	if c.Relay.Budget < 0 {
		errs = AppendError(errs, errors.New("relay.budget must not be negative"))
	}
	if c.Relay.Budget > 0 && c.Relay.Budget < c.Relay.AttemptTimeout {
		warnings = AppendError(warnings, fmt.Errorf("relay.budget %s is shorter than one attempt (%s)", c.Relay.Budget, c.Relay.AttemptTimeout))
	}
	if c.Relay.MaxDetails < 1 {
		errs = AppendError(errs, errors.New("relay.max_details must be at least 1"))
	}
	if c.Relay.LegacyMethod != "" && c.Relay.EnhancedMethod == "" {
		errs = AppendError(errs, errors.New("relay.legacy_method requires relay.enhanced_method"))
	}
	if c.Relay.TLS.InsecureSkipVerify {
		warnings = AppendError(warnings, errors.New("relay.tls.insecure_skip_verify disables backend certificate checks"))
	}

	errs = AppendError(errs, validateServer(&c.Server))

	if !slices.Contains(SupportedLogLevels, c.Log.Level) {
		errs = AppendError(errs, fmt.Errorf("invalid log.level %q, optional values are %v", c.Log.Level, SupportedLogLevels))
	}
	return warnings, errs
}

func validateServer(c *v1.ServerConfig) error {
	var errs error
	if c.Listen == "" {
		errs = AppendError(errs, errors.New("server.listen is required"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = AppendError(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.RateLimit.RPS < 0 {
		errs = AppendError(errs, errors.New("server.rate_limit.rps must not be negative"))
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		errs = AppendError(errs, errors.New("server.rate_limit.burst must be at least 1 when rps is set"))
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = AppendError(errs, errors.New("server.tls.cert_file and server.tls.key_file must be set together"))
	}
	if c.TLS.ClientCAFile != "" && !c.TLS.Enabled() {
		errs = AppendError(errs, errors.New("server.tls.client_ca_file requires a server certificate"))
	}

	if !c.ACME.Enable {
		return errs
	}
	if c.TLS.Enabled() {
		errs = AppendError(errs, errors.New("server.acme and server.tls are mutually exclusive"))
	}
	if c.ACME.Email == "" {
		errs = AppendError(errs, errors.New("server.acme.email is required"))
	}
	if c.ACME.Domain == "" {
		errs = AppendError(errs, errors.New("server.acme.domain is required"))
	}
	if !slices.Contains(SupportedACMECAs, c.ACME.CA) {
		errs = AppendError(errs, fmt.Errorf("invalid server.acme.ca, optional values are %v", SupportedACMECAs))
	}
	if !slices.Contains(SupportedChallenges, c.ACME.Challenge) {
		errs = AppendError(errs, fmt.Errorf("invalid server.acme.challenge, optional values are %v", SupportedChallenges))
	} else if c.ACME.Challenge == "dns-01" {
		if !slices.Contains(SupportedDNSProviders, c.ACME.DNSProvider) {
			errs = AppendError(errs, fmt.Errorf("invalid server.acme.dns_provider, optional values are %v", SupportedDNSProviders))
		}
		if c.ACME.DNSProvider == "cloudflare" && c.ACME.CloudflareToken == "" {
			errs = AppendError(errs, errors.New("server.acme.cloudflare_token is required for dns-01 with cloudflare"))
		}
	}
	return errs
}
