package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"mailscout/config"
	"mailscout/metrics"
	"mailscout/utils"
	"mailscout/verifier"
)

func main() {
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := &config.AppConfig
	utils.SetupLogger(cfg.Environment, cfg.LogLevel)

	flush, err := utils.InitSentry(cfg.SentryDSN, cfg.Environment)
	if err != nil {
		log.Printf("Sentry initialization failed: %v", err)
	}

	rootCmd := &cobra.Command{
		Use:          "mailscout",
		Short:        "Finds and verifies the work email address of a person",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		serveCommand(cfg),
		generateCommand(),
		verifyCommand(cfg),
		tokenCommand(cfg),
		researchCommand(cfg),
	)

	err = rootCmd.ExecuteContext(context.Background())
	flush()
	if err != nil {
		os.Exit(1)
	}
}

// newEngine builds the verification backends from configuration.
func newEngine(cfg *config.Config, m *metrics.Metrics) (*verifier.Registry, *verifier.Resolver, *http.Client) {
	resolver := verifier.NewResolver(verifier.ResolverConfig{
		Server:   cfg.DNS.Server,
		Timeout:  cfg.DNS.Timeout,
		CacheTTL: cfg.DNS.CacheTTL,
	})
	prober := verifier.NewSMTPProbe(verifier.ProbeConfig{
		Port:          cfg.SMTP.Port,
		Timeout:       cfg.SMTP.Timeout,
		HeloDomain:    cfg.SMTP.HeloDomain,
		MailFrom:      cfg.SMTP.MailFrom,
		CatchAllProbe: cfg.SMTP.CatchAllProbe,
	}, resolver, nil)
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	registry := verifier.NewRegistry(verifier.Dependencies{
		Resolver:   resolver,
		Prober:     prober,
		HTTPClient: httpClient,
		Metrics:    m,
		Deliverability: verifier.DeliverabilityConfig{
			APIKey: cfg.Deliverability.APIKey,
			APIURL: cfg.Deliverability.APIURL,
			RPS:    cfg.Deliverability.RPS,
		},
		Search: verifier.SearchConfig{
			APIToken:  cfg.Search.APIToken,
			APIURL:    cfg.Search.APIURL,
			Zone:      cfg.Search.Zone,
			Country:   cfg.Search.Country,
			EngineURL: cfg.Search.EngineURL,
			RPS:       cfg.Search.RPS,
		},
	})
	return registry, resolver, httpClient
}
