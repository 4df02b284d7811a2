package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mailscout/config"
	"mailscout/models"
	"mailscout/research"
	"mailscout/utils"
	"mailscout/verifier"
)

func generateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <first> <last> <domain>",
		Short: "Prints the candidate addresses for a person",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			candidates := verifier.Generate(models.PersonIdentity{FirstName: args[0], LastName: args[1], Domain: args[2]})
			if len(candidates) == 0 {
				return fmt.Errorf("no candidates for %q %q at %q", args[0], args[1], args[2])
			}
			for _, c := range candidates {
				fmt.Fprintln(cmd.OutOrStdout(), c.Email)
			}
			return nil
		},
	}
}

func verifyCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <first> <last> <domain>",
		Short: "Verifies every candidate for a person and prints the reports as JSON",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("backend")
			width, _ := cmd.Flags().GetInt("width")

			backends, _, _ := newEngine(cfg, nil)
			backend, err := backends.Get(kind)
			if err != nil {
				return err
			}

			candidates := verifier.Generate(models.PersonIdentity{FirstName: args[0], LastName: args[1], Domain: args[2]})
			if len(candidates) == 0 {
				return fmt.Errorf("no candidates for %q %q at %q", args[0], args[1], args[2])
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			reports := verifier.NewRunner(width, cfg.TaskTimeout, nil).Run(ctx, candidates, backend, nil)
			summary, summaryErr := verifier.Summarize(reports)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]interface{}{
				"backend": backend.Name(),
				"reports": reports,
				"summary": summary,
			}); err != nil {
				return err
			}
			return summaryErr
		},
	}
	cmd.Flags().String("backend", verifier.KindCascade, "verification backend: cascade, deliverability or search")
	cmd.Flags().Int("width", cfg.BatchWidth, "number of candidates verified concurrently")
	return cmd
}

func tokenCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generates an API access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			token, err := utils.GenerateToken(subject, ttl, cfg.JWTSecret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "token subject (e.g., the client name)")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token TTL (e.g., 30s, 15m, 1h)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func researchCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Asks the deep-research agent for a person's work email",
		RunE: func(cmd *cobra.Command, args []string) error {
			var q research.Query
			q.FullName, _ = cmd.Flags().GetString("name")
			q.Company, _ = cmd.Flags().GetString("company")
			q.Title, _ = cmd.Flags().GetString("title")
			q.ProfileURL, _ = cmd.Flags().GetString("url")
			if err := utils.ValidateStruct(q); err != nil {
				return err
			}

			client, err := research.NewClient(research.Config{
				APIKey: cfg.Research.APIKey,
				APIURL: cfg.Research.APIURL,
			}, nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			finding, err := client.SearchEmail(ctx, q)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(finding)
		},
	}
	cmd.Flags().String("name", "", "full name of the person")
	cmd.Flags().String("company", "", "company the person works for")
	cmd.Flags().String("title", "", "job title")
	cmd.Flags().String("url", "", "profile URL")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}
