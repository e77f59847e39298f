package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	v1 "github.com/DragonSecurity/podrelay/pkg/config/v1"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	c, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Listen != ":3001" || !c.Server.CORS || c.Server.MaxBodyBytes != 1<<20 {
		t.Fatalf("unexpected server defaults %+v", c.Server)
	}
	if c.Relay.AttemptTimeout != 10*time.Second || c.Relay.MaxDetails != 5 || c.Relay.Budget != 0 {
		t.Fatalf("unexpected relay defaults %+v", c.Relay)
	}
	if len(c.Relay.Candidates) != len(v1.DefaultCandidates) || c.Relay.Candidates[0] != v1.DefaultCandidates[0] {
		t.Fatalf("unexpected candidates %v", c.Relay.Candidates)
	}
	if c.Relay.EnhancedMethod != "get-pods-with-stats" || c.Relay.LegacyMethod != "get-pods" {
		t.Fatalf("unexpected methods %+v", c.Relay)
	}
	if c.Log.Level != "info" || c.Candidates.Etcd.Enabled() {
		t.Fatalf("unexpected defaults %+v %+v", c.Log, c.Candidates)
	}
}

func TestFileOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	err := v.ReadConfig(strings.NewReader(`
server:
  listen: ":8443"
  rate_limit:
    rps: 50
relay:
  candidates:
    - 10.0.0.1:6000/rpc
    - 10.0.0.2:6000/rpc
  attempt_timeout: 3s
  budget: 20s
candidates:
  etcd:
    endpoints: ["127.0.0.1:2379"]
`))
	if err != nil {
		t.Fatal(err)
	}
	c, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Listen != ":8443" || c.Server.RateLimit.RPS != 50 || c.Server.RateLimit.Burst != 20 {
		t.Fatalf("unexpected server %+v", c.Server)
	}
	if len(c.Relay.Candidates) != 2 || c.Relay.AttemptTimeout != 3*time.Second || c.Relay.Budget != 20*time.Second {
		t.Fatalf("unexpected relay %+v", c.Relay)
	}
	if !c.Candidates.Etcd.Enabled() || c.Candidates.Etcd.Prefix != "/podrelay/candidates/" || c.Candidates.Etcd.DialTimeout != 5*time.Second {
		t.Fatalf("unexpected etcd %+v", c.Candidates.Etcd)
	}
}
