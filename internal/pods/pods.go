// Package pods models the node listing returned by get-pods-with-stats and its legacy
// get-pods predecessor, and derives network-level figures from it.
package pods

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// DefaultPort is assumed when a pod address carries no port.
	DefaultPort = 9001

	syncingAfter  = 120 * time.Second
	inactiveAfter = 300 * time.Second
)

var ErrNoResult = errors.New("response carries no result")

type Status string

const (
	StatusActive   Status = "active"
	StatusSyncing  Status = "syncing"
	StatusInactive Status = "inactive"
)

// Pod is one gossip entry. Pointer fields are absent from the legacy listing or null for
// nodes that have not reported stats.
type Pod struct {
	Address             string   `json:"address"`
	IsPublic            *bool    `json:"is_public"`
	LastSeenTimestamp   int64    `json:"last_seen_timestamp"`
	Pubkey              *string  `json:"pubkey"`
	RPCPort             *int     `json:"rpc_port"`
	StorageCommitted    *int64   `json:"storage_committed"`
	StorageUsagePercent *float64 `json:"storage_usage_percent"`
	StorageUsed         *int64   `json:"storage_used"`
	Uptime              *int64   `json:"uptime"`
	Version             string   `json:"version"`
}

type List struct {
	Pods       []Pod `json:"pods"`
	TotalCount int   `json:"total_count"`
}

// DecodeResult extracts the pod list from a JSON-RPC response document. A backend-reported
// error is returned as a Go error carrying its code and message.
func DecodeResult(body []byte) (*List, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	if e := doc.Get("error"); e.Exists() && e.Type != gjson.Null {
		return nil, fmt.Errorf("rpc error %d: %s", e.Get("code").Int(), e.Get("message").String())
	}
	res := doc.Get("result")
	if !res.Exists() || res.Type == gjson.Null {
		return nil, ErrNoResult
	}
	var l List
	if err := json.Unmarshal([]byte(res.Raw), &l); err != nil {
		return nil, fmt.Errorf("decode pods: %w", err)
	}
	return &l, nil
}

func (p Pod) LastSeen() time.Time { return time.Unix(p.LastSeenTimestamp, 0) }

// Status classifies a pod by how recently gossip saw it. A pod that explicitly reports
// itself private, or has no pubkey, is inactive. Legacy listings omit is_public, in which
// case recency alone decides.
func (p Pod) Status(now time.Time) Status {
	if p.IsPublic != nil && !*p.IsPublic {
		return StatusInactive
	}
	if p.Pubkey == nil || *p.Pubkey == "" {
		return StatusInactive
	}
	since := now.Sub(p.LastSeen())
	switch {
	case since > inactiveAfter:
		return StatusInactive
	case since > syncingAfter:
		return StatusSyncing
	default:
		return StatusActive
	}
}

// HostPort splits the gossip address, falling back to DefaultPort.
func (p Pod) HostPort() (string, int) {
	host, portStr, err := net.SplitHostPort(p.Address)
	if err != nil {
		return p.Address, DefaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		port = DefaultPort
	}
	return host, port
}

func (p Pod) PubkeyOr(fallback string) string {
	if p.Pubkey == nil || *p.Pubkey == "" {
		return fallback
	}
	return *p.Pubkey
}
