package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/DragonSecurity/podrelay/internal/relay"
	"github.com/DragonSecurity/podrelay/pkg/proto"
)

var callID string

func init() {
	callCmd.Flags().StringVar(&callID, "id", "1", "request id, sent as JSON when it parses as JSON and as a string otherwise")
	rootCmd.AddCommand(callCmd)
}

var callCmd = &cobra.Command{
	Use:   "call <method> [params-json]",
	Short: "relay one JSON-RPC request and print the response",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildCallRequest(args, callID)
		if err != nil {
			return err
		}
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

		res := rl.Do(ctx, req)
		fmt.Fprintln(cmd.OutOrStdout(), indent(res.Body))
		switch res.Status {
		case relay.StatusDelivered:
			if verbose {
				stderrf("delivered by %s (%s) after %d attempt(s)\n", res.Endpoint, res.Method, len(res.Attempts))
			}
			return nil
		case relay.StatusExhausted:
			return fmt.Errorf("all %d candidates failed", len(rl.Candidates()))
		default:
			return fmt.Errorf("request rejected: %v", res.Err)
		}
	},
}

func buildCallRequest(args []string, id string) (*proto.Request, error) {
	req := &proto.Request{JSONRPC: proto.Version, Method: args[0]}
	if len(args) > 1 {
		p := gjson.Parse(args[1])
		if !gjson.Valid(args[1]) || !(p.IsArray() || p.IsObject()) {
			return nil, fmt.Errorf("params must be a JSON array or object, got %q", args[1])
		}
		req.Params = json.RawMessage(args[1])
	}
	if id != "" {
		if gjson.Valid(id) {
			req.ID = json.RawMessage(id)
		} else {
			b, _ := json.Marshal(id)
			req.ID = b
		}
	}
	return req, nil
}

func indent(b []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return string(b)
	}
	return out.String()
}
