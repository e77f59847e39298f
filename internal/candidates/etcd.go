package candidates

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	v1 "github.com/DragonSecurity/podrelay/pkg/config/v1"
)

const DefaultEtcdPrefix = "/podrelay/candidates/"

// Entry is the JSON value stored under each key of the prefix:
//
//	Key:   /podrelay/candidates/{name}
//	Value: {"address": "192.190.136.36:6000/rpc", "rank": 0}
//
// Lower rank is tried first; ties fall back to key order so every instance reading the same
// prefix gets the same list.
type Entry struct {
	Address string `json:"address"`
	Rank    int    `json:"rank"`
}

type EtcdSource struct {
	client *clientv3.Client
	prefix string
}

func NewEtcdSource(cfg v1.EtcdConfig) (*EtcdSource, error) {
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dial,
	})
	if err != nil {
		return nil, err
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	return &EtcdSource{client: c, prefix: prefix}, nil
}

// Load reads the prefix once. Malformed entries are skipped.
func (s *EtcdSource) Load(ctx context.Context) ([]string, error) {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	kvs := make([]keyValue, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		kvs = append(kvs, keyValue{key: string(kv.Key), value: kv.Value})
	}
	return order(kvs), nil
}

func (s *EtcdSource) Close() error { return s.client.Close() }

type keyValue struct {
	key   string
	value []byte
}

type rankedEntry struct {
	Entry
	key string
}

func order(kvs []keyValue) []string {
	entries := make([]rankedEntry, 0, len(kvs))
	for _, kv := range kvs {
		var e Entry
		if err := json.Unmarshal(kv.value, &e); err != nil {
			continue
		}
		addr, err := Normalize(e.Address)
		if err != nil {
			continue
		}
		e.Address = addr
		entries = append(entries, rankedEntry{Entry: e, key: kv.key})
	}
	slices.SortFunc(entries, func(a, b rankedEntry) int {
		if c := cmp.Compare(a.Rank, b.Rank); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = merge(out, []string{e.Address})
	}
	return out
}
