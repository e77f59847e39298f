package v1

import (
	"time"

	"github.com/DragonSecurity/podrelay/pkg/util"
)

// DefaultCandidates is the backend order operators settled on for the public pod network.
// Earlier entries have proven the most reliable.
var DefaultCandidates = []string{
	"http://192.190.136.36:6000/rpc",
	"http://192.190.136.28:6000/rpc",
	"http://192.190.136.29:6000/rpc",
	"http://161.97.97.41:6000/rpc",
	"http://207.244.255.1:6000/rpc",
	"http://192.190.136.37:6000/rpc",
	"http://192.190.136.38:6000/rpc",
	"http://173.212.203.145:6000/rpc",
	"http://173.212.220.65:6000/rpc",
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Candidates CandidatesConfig `mapstructure:"candidates"`
	Log        util.LogConfig   `mapstructure:"log"`
}

type ServerConfig struct {
	Listen        string          `mapstructure:"listen"`
	CORS          bool            `mapstructure:"cors"`
	MaxBodyBytes  int64           `mapstructure:"max_body_bytes"`
	ProxyProtocol bool            `mapstructure:"proxy_protocol"` // accept PROXY v1/v2 headers from a load balancer
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
	TLS           TLSConfig       `mapstructure:"tls"`
	ACME          ACMEConfig      `mapstructure:"acme"`
}

// RateLimitConfig is a process-wide token bucket; RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type TLSConfig struct {
	CertFile     string `mapstructure:"cert_file"`
	KeyFile      string `mapstructure:"key_file"`
	ClientCAFile string `mapstructure:"client_ca_file"` // require client certs signed by this CA
}

func (c TLSConfig) Enabled() bool { return c.CertFile != "" || c.KeyFile != "" }

type ACMEConfig struct {
	Enable          bool   `mapstructure:"enable"`
	Email           string `mapstructure:"email"`
	Cache           string `mapstructure:"cache"`
	Challenge       string `mapstructure:"challenge"` // http-01 | dns-01
	DNSProvider     string `mapstructure:"dns_provider"`
	CloudflareToken string `mapstructure:"cloudflare_token"`
	CA              string `mapstructure:"ca"` // production | staging
	Domain          string `mapstructure:"domain"`
}

type RelayConfig struct {
	Candidates     []string        `mapstructure:"candidates"`
	AttemptTimeout time.Duration   `mapstructure:"attempt_timeout"`
	Budget         time.Duration   `mapstructure:"budget"`
	MaxDetails     int             `mapstructure:"max_details"`
	EnhancedMethod string          `mapstructure:"enhanced_method"`
	LegacyMethod   string          `mapstructure:"legacy_method"`
	UserAgent      string          `mapstructure:"user_agent"`
	TLS            ClientTLSConfig `mapstructure:"tls"`
}

type ClientTLSConfig struct {
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type CandidatesConfig struct {
	Etcd EtcdConfig `mapstructure:"etcd"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	Prefix      string        `mapstructure:"prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

func (c EtcdConfig) Enabled() bool { return len(c.Endpoints) > 0 }
