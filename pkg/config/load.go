package config

import (
	"fmt"

	"github.com/spf13/viper"

	v1 "github.com/DragonSecurity/podrelay/pkg/config/v1"
)

// SetDefaults registers every key with viper so AutomaticEnv can find it even when no
// config file sets it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":3001")
	v.SetDefault("server.cors", true)
	v.SetDefault("server.max_body_bytes", int64(1<<20))
	v.SetDefault("server.proxy_protocol", false)
	v.SetDefault("server.rate_limit.rps", 0.0)
	v.SetDefault("server.rate_limit.burst", 20)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.client_ca_file", "")
	v.SetDefault("server.acme.enable", false)
	v.SetDefault("server.acme.email", "")
	v.SetDefault("server.acme.cache", "cert-cache")
	v.SetDefault("server.acme.challenge", "http-01")
	v.SetDefault("server.acme.dns_provider", "")
	v.SetDefault("server.acme.cloudflare_token", "")
	v.SetDefault("server.acme.ca", "production")
	v.SetDefault("server.acme.domain", "")

	v.SetDefault("relay.candidates", v1.DefaultCandidates)
	v.SetDefault("relay.attempt_timeout", "10s")
	v.SetDefault("relay.budget", "0s")
	v.SetDefault("relay.max_details", 5)
	v.SetDefault("relay.enhanced_method", "get-pods-with-stats")
	v.SetDefault("relay.legacy_method", "get-pods")
	v.SetDefault("relay.user_agent", "podrelay/1.0")
	v.SetDefault("relay.tls.ca_file", "")
	v.SetDefault("relay.tls.insecure_skip_verify", false)

	v.SetDefault("candidates.etcd.endpoints", []string{})
	v.SetDefault("candidates.etcd.prefix", "/podrelay/candidates/")
	v.SetDefault("candidates.etcd.dial_timeout", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
}

// Load decodes the merged viper state (defaults, file, env, flags) into a typed config.
func Load(v *viper.Viper) (*v1.Config, error) {
	var c v1.Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	return &c, nil
}
