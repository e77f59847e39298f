package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/DragonSecurity/podrelay/internal/candidates"
	"github.com/DragonSecurity/podrelay/internal/relay"
	"github.com/DragonSecurity/podrelay/internal/server"
	"github.com/DragonSecurity/podrelay/pkg/config"
	v1 "github.com/DragonSecurity/podrelay/pkg/config/v1"
	"github.com/DragonSecurity/podrelay/pkg/config/v1/validation"
	"github.com/DragonSecurity/podrelay/pkg/transport"
	"github.com/DragonSecurity/podrelay/pkg/util"
)

// loadConfig decodes, validates and applies logging settings.
func loadConfig() (*v1.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	warn, err := validation.ValidateConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := util.ConfigureLogging(cfg.Log); err != nil {
		return nil, fmt.Errorf("log config: %w", err)
	}
	log := util.NewLogger("config")
	for _, w := range multierr.Errors(warn) {
		log.Warnf("%v", w)
	}
	return cfg, nil
}

func relayFallbacks(c v1.RelayConfig) []relay.Fallback {
	if c.EnhancedMethod == "" || c.LegacyMethod == "" {
		return nil
	}
	return []relay.Fallback{{Method: c.EnhancedMethod, Alternates: []string{c.LegacyMethod}}}
}

// buildRelay resolves candidates and wires the outbound caller. Relay logs go to the shared
// logger only when logRelay is set, so CLI output stays clean.
func buildRelay(ctx context.Context, cfg *v1.Config, logRelay bool) (*relay.Relay, error) {
	list, err := candidates.Resolve(ctx, candidates.Config{
		Static: cfg.Relay.Candidates,
		Etcd:   cfg.Candidates.Etcd,
	}, util.NewLogger("candidates"))
	if err != nil {
		return nil, err
	}
	tlsConf, err := transport.NewClientTLSConfig(cfg.Relay.TLS.CAFile, cfg.Relay.TLS.InsecureSkipVerify)
	if err != nil {
		return nil, fmt.Errorf("relay tls: %w", err)
	}

	relayLog := util.NewLoggerTo("relay", io.Discard)
	if logRelay {
		relayLog = util.NewLogger("relay")
	}
	return relay.New(relay.Config{
		Candidates:     list,
		AttemptTimeout: cfg.Relay.AttemptTimeout,
		Budget:         cfg.Relay.Budget,
		MaxDetails:     cfg.Relay.MaxDetails,
		Fallbacks:      relayFallbacks(cfg.Relay),
	}, relay.NewHTTPCaller(tlsConf, cfg.Relay.UserAgent),
		relay.WithObserver(server.Metrics{}),
		relay.WithLogger(relayLog),
	)
}

func stderrf(f string, v ...any) { fmt.Fprintf(os.Stderr, f, v...) }
