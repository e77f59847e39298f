package pods

import "time"

type NetworkStats struct {
	TotalNodes           int            `json:"total_nodes"`
	ReportedTotal        int            `json:"reported_total"`
	ActiveNodes          int            `json:"active_nodes"`
	SyncingNodes         int            `json:"syncing_nodes"`
	InactiveNodes        int            `json:"inactive_nodes"`
	PublicNodes          int            `json:"public_nodes"`
	StorageCommitted     int64          `json:"storage_committed"`
	StorageUsed          int64          `json:"storage_used"`
	StorageUsagePercent  float64        `json:"storage_usage_percent"`
	AverageUptimeSeconds float64        `json:"average_uptime_seconds"`
	ActiveRatio          float64        `json:"active_ratio"`
	Versions             map[string]int `json:"versions"`
	GeneratedAt          time.Time      `json:"generated_at"`
}

func Summarize(l *List, now time.Time) NetworkStats {
	s := NetworkStats{Versions: map[string]int{}, GeneratedAt: now.UTC()}
	if l == nil {
		return s
	}
	s.TotalNodes = len(l.Pods)
	s.ReportedTotal = l.TotalCount

	var uptimeSum int64
	var uptimeN int
	for _, p := range l.Pods {
		switch p.Status(now) {
		case StatusActive:
			s.ActiveNodes++
		case StatusSyncing:
			s.SyncingNodes++
		default:
			s.InactiveNodes++
		}
		if p.IsPublic != nil && *p.IsPublic {
			s.PublicNodes++
		}
		if p.StorageCommitted != nil {
			s.StorageCommitted += *p.StorageCommitted
		}
		if p.StorageUsed != nil {
			s.StorageUsed += *p.StorageUsed
		}
		if p.Uptime != nil && *p.Uptime > 0 {
			uptimeSum += *p.Uptime
			uptimeN++
		}
		v := p.Version
		if v == "" {
			v = "unknown"
		}
		s.Versions[v]++
	}
	if uptimeN > 0 {
		s.AverageUptimeSeconds = float64(uptimeSum) / float64(uptimeN)
	}
	if s.StorageCommitted > 0 {
		s.StorageUsagePercent = float64(s.StorageUsed) / float64(s.StorageCommitted) * 100
	}
	if s.TotalNodes > 0 {
		s.ActiveRatio = float64(s.ActiveNodes) / float64(s.TotalNodes)
	}
	return s
}
