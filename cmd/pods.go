package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/DragonSecurity/podrelay/internal/pods"
	"github.com/DragonSecurity/podrelay/internal/relay"
	"github.com/DragonSecurity/podrelay/pkg/proto"
)

var podsList bool

func init() {
	podsCmd.Flags().BoolVar(&podsList, "list", false, "print every pod, not just the summary")
	rootCmd.AddCommand(podsCmd)
}

var podsCmd = &cobra.Command{
	Use:   "pods",
	Short: "fetch the pod listing and print a network summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		rl, err := buildRelay(ctx, cfg, verbose)
		if err != nil {
			return err
		}

		method := cfg.Relay.EnhancedMethod
		if method == "" {
			method = relay.EnhancedPodsMethod
		}
		res := rl.Do(ctx, &proto.Request{JSONRPC: proto.Version, Method: method, ID: json.RawMessage("1")})
		if res.Status != relay.StatusDelivered {
			fmt.Fprintln(cmd.ErrOrStderr(), indent(res.Body))
			return fmt.Errorf("pod listing unavailable")
		}
		list, err := pods.DecodeResult(res.Body)
		if err != nil {
			return err
		}
		now := time.Now()
		out := cmd.OutOrStdout()
		printSummary(out, pods.Summarize(list, now), res)
		if podsList {
			fmt.Fprintln(out)
			printPods(out, list, now)
		}
		return nil
	},
}

func printSummary(w io.Writer, s pods.NetworkStats, res *relay.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "source\t%s (%s)\n", res.Endpoint, res.Method)
	fmt.Fprintf(tw, "pods\t%d (reported %d)\n", s.TotalNodes, s.ReportedTotal)
	fmt.Fprintf(tw, "active / syncing / inactive\t%d / %d / %d\n", s.ActiveNodes, s.SyncingNodes, s.InactiveNodes)
	fmt.Fprintf(tw, "public\t%d\n", s.PublicNodes)
	fmt.Fprintf(tw, "storage\t%s of %s (%.1f%%)\n", humanBytes(s.StorageUsed), humanBytes(s.StorageCommitted), s.StorageUsagePercent)
	fmt.Fprintf(tw, "avg uptime\t%s\n", (time.Duration(s.AverageUptimeSeconds) * time.Second).String())

	versions := make([]string, 0, len(s.Versions))
	for v := range s.Versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	for _, v := range versions {
		fmt.Fprintf(tw, "version %s\t%d\n", v, s.Versions[v])
	}
	_ = tw.Flush()
}

func printPods(w io.Writer, l *pods.List, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSTATUS\tVERSION\tLAST SEEN\tPUBKEY")
	for _, p := range l.Pods {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s ago\t%s\n",
			p.Address, p.Status(now), p.Version, now.Sub(p.LastSeen()).Truncate(time.Second), p.PubkeyOr("-"))
	}
	_ = tw.Flush()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
