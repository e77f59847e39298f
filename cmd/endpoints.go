package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DragonSecurity/podrelay/internal/candidates"
	"github.com/DragonSecurity/podrelay/pkg/util"
)

func init() {
	rootCmd.AddCommand(endpointsCmd)
}

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "print the resolved candidate list in try order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		list, err := candidates.Resolve(context.Background(), candidates.Config{
			Static: cfg.Relay.Candidates,
			Etcd:   cfg.Candidates.Etcd,
		}, util.NewLogger("candidates"))
		if err != nil {
			return err
		}
		for i, c := range list {
			role := "fallback"
			if i == 0 {
				role = "primary"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%2d  %-8s  %s\n", i+1, role, c)
		}
		return nil
	},
}
