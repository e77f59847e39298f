package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DragonSecurity/podrelay/internal/server"
	"github.com/DragonSecurity/podrelay/pkg/util"
)

func init() {
	serveCmd.Flags().String("listen", ":3001", "listen address")
	serveCmd.Flags().Bool("cors", true, "answer browser preflights with permissive CORS headers")
	serveCmd.Flags().Bool("proxy-protocol", false, "accept PROXY protocol headers from a load balancer")
	serveCmd.Flags().Float64("rate-limit", 0, "inbound requests per second, 0 disables")
	serveCmd.Flags().Int("rate-burst", 20, "inbound burst size")
	serveCmd.Flags().String("tls-cert", "", "TLS certificate file")
	serveCmd.Flags().String("tls-key", "", "TLS key file")
	serveCmd.Flags().String("tls-client-ca", "", "require client certificates signed by this CA")
	serveCmd.Flags().Bool("acme", false, "enable Let's Encrypt")
	serveCmd.Flags().String("acme-email", "", "ACME email")
	serveCmd.Flags().String("acme-domain", "", "domain to obtain a certificate for")
	serveCmd.Flags().String("acme-cache", "cert-cache", "ACME cache dir")
	serveCmd.Flags().String("acme-challenge", "http-01", "http-01 or dns-01")

	_ = viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("server.cors", serveCmd.Flags().Lookup("cors"))
	_ = viper.BindPFlag("server.proxy_protocol", serveCmd.Flags().Lookup("proxy-protocol"))
	_ = viper.BindPFlag("server.rate_limit.rps", serveCmd.Flags().Lookup("rate-limit"))
	_ = viper.BindPFlag("server.rate_limit.burst", serveCmd.Flags().Lookup("rate-burst"))
	_ = viper.BindPFlag("server.tls.cert_file", serveCmd.Flags().Lookup("tls-cert"))
	_ = viper.BindPFlag("server.tls.key_file", serveCmd.Flags().Lookup("tls-key"))
	_ = viper.BindPFlag("server.tls.client_ca_file", serveCmd.Flags().Lookup("tls-client-ca"))
	_ = viper.BindPFlag("server.acme.enable", serveCmd.Flags().Lookup("acme"))
	_ = viper.BindPFlag("server.acme.email", serveCmd.Flags().Lookup("acme-email"))
	_ = viper.BindPFlag("server.acme.domain", serveCmd.Flags().Lookup("acme-domain"))
	_ = viper.BindPFlag("server.acme.cache", serveCmd.Flags().Lookup("acme-cache"))
	_ = viper.BindPFlag("server.acme.challenge", serveCmd.Flags().Lookup("acme-challenge"))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := util.NewLogger("server")
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		rl, err := buildRelay(ctx, cfg, true)
		if err != nil {
			return err
		}
		if cfg.Server.ACME.Enable && (cfg.Server.Listen == ":3001" || cfg.Server.Listen == "") {
			cfg.Server.Listen = ":443"
		}
		log.Infof("podrelay %s: %d candidate(s), attempt timeout %s", Version, len(rl.Candidates()), rl.AttemptTimeout())
		return server.New(cfg.Server, rl, log, server.WithStatsMethod(cfg.Relay.EnhancedMethod)).Run(ctx)
	},
}
