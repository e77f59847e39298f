// Package candidates turns configuration into the ordered backend list the relay tries.
//
// The list is resolved once at startup. Its order is an operator-curated reliability
// preference and is never changed at runtime.
package candidates

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	v1 "github.com/DragonSecurity/podrelay/pkg/config/v1"
	"github.com/DragonSecurity/podrelay/pkg/util"
)

var ErrNoCandidates = errors.New("no candidates configured")

type Config struct {
	Static []string
	Etcd   v1.EtcdConfig
}

// Normalize accepts host:port, host:port/path or a full http(s) URL.
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("empty candidate address")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("candidate %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("candidate %q: unsupported scheme %q", addr, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("candidate %q: missing host", addr)
	}
	return u.String(), nil
}

// Static normalizes list in order. Duplicates are an error since they would double a
// candidate's share of attempts.
func Static(list []string) ([]string, error) {
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, raw := range list {
		addr, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		if seen[addr] {
			return nil, fmt.Errorf("duplicate candidate %s", addr)
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out, nil
}

// Resolve returns the static list followed by any etcd entries not already present.
func Resolve(ctx context.Context, cfg Config, log *util.Logger) ([]string, error) {
	out, err := Static(cfg.Static)
	if err != nil {
		return nil, err
	}
	if cfg.Etcd.Enabled() {
		src, err := NewEtcdSource(cfg.Etcd)
		if err != nil {
			return nil, fmt.Errorf("etcd candidates: %w", err)
		}
		defer src.Close()
		discovered, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("etcd candidates: %w", err)
		}
		log.Infof("loaded %d candidate(s) from etcd prefix %s", len(discovered), src.prefix)
		out = merge(out, discovered)
	}
	if len(out) == 0 {
		return nil, ErrNoCandidates
	}
	return out, nil
}

func merge(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	for _, a := range base {
		seen[a] = true
	}
	for _, a := range extra {
		if !seen[a] {
			seen[a] = true
			base = append(base, a)
		}
	}
	return base
}
