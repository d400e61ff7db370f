package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vetledger/vetledger/internal/config"
	"github.com/vetledger/vetledger/internal/domain/catalog"
	"github.com/vetledger/vetledger/internal/domain/resolver"
	"github.com/vetledger/vetledger/pkg/vetledger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vetledger",
		Short: "Offline veterinary charting core",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(catalogCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func open() (*vetledger.Core, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	logger := newLogger(cfg)
	core, err := vetledger.Open(cfg, logger)
	if err != nil {
		return nil, logger, err
	}
	return core, logger, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	return logger
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the clinic-side sync endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			core, err := vetledger.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer core.Close()

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true
			core.RegisterSyncRoutes(e)

			go func() {
				if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			logger.Info().Str("port", cfg.Port).Msg("sync endpoint listening")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Shutdown(ctx)
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push unsynced encounters to the configured peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, logger, err := open()
			if err != nil {
				return err
			}
			defer core.Close()

			res, err := core.Sync(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info().Int("pushed", res.Pushed).Uint64("n", res.RemoteN).Msg("sync ok")
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-hash every ledger leaf and check the root",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, logger, err := open()
			if err != nil {
				return err
			}
			defer core.Close()

			if err := core.VerifyLedger(); err != nil {
				return err
			}
			logger.Info().Msg("ledger verified")
			return nil
		},
	}
}

func resolveCmd() *cobra.Command {
	var (
		species string
		weight  float64
		dose    float64
		unit    string
		route   string
	)
	cmd := &cobra.Command{
		Use:   "resolve <mention>",
		Short: "Resolve a drug mention against the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, err := open()
			if err != nil {
				return err
			}
			defer core.Close()

			m := resolver.DrugMention{Text: args[0]}
			if dose > 0 {
				m.Dose = &dose
			}
			if unit != "" {
				m.Unit = &unit
			}
			if route != "" {
				m.Route = &route
			}
			var sp *string
			if species != "" {
				sp = &species
			}
			var wkg *float64
			if weight > 0 {
				wkg = &weight
			}

			norm, cands, err := core.Resolver.Resolve(m, sp, wkg)
			if err != nil {
				return err
			}
			fmt.Printf("normalized: %s\n", norm.Name)
			for i, c := range cands {
				fmt.Printf("%d. %-12s %-30s %.3f\n", i+1, c.Item.SKU, c.Item.Name, c.Confidence)
			}
			if len(cands) == 0 {
				fmt.Println("no candidates; manual search required")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&species, "species", "", "patient species")
	cmd.Flags().Float64Var(&weight, "weight", 0, "patient weight in kg")
	cmd.Flags().Float64Var(&dose, "dose", 0, "mentioned dose amount")
	cmd.Flags().StringVar(&unit, "unit", "", "mentioned dose unit")
	cmd.Flags().StringVar(&route, "route", "", "mentioned route")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the committed ledger",
	}

	var asCSV bool
	billing := &cobra.Command{
		Use:   "billing",
		Short: "Billing export (JSON, or CSV with --csv)",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, err := open()
			if err != nil {
				return err
			}
			defer core.Close()

			var out []byte
			if asCSV {
				out, err = core.Exports.BillingCSV()
			} else {
				out, err = core.Exports.BillingJSON()
			}
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
	billing.Flags().BoolVar(&asCSV, "csv", false, "emit CSV instead of JSON")

	compliance := &cobra.Command{
		Use:   "compliance",
		Short: "Compliance export with inclusion proofs",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, err := open()
			if err != nil {
				return err
			}
			defer core.Close()

			out, err := core.Exports.ComplianceJSON(core.SystemID())
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}

	cmd.AddCommand(billing)
	cmd.AddCommand(compliance)
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog maintenance",
	}

	load := &cobra.Command{
		Use:   "load <delta.json>",
		Short: "Apply a catalog delta file from the practice-management server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, logger, err := open()
			if err != nil {
				return err
			}
			defer core.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var delta catalog.Delta
			if err := json.Unmarshal(data, &delta); err != nil {
				return fmt.Errorf("parse delta: %w", err)
			}
			if err := core.Catalog.ApplyDelta(&delta); err != nil {
				return err
			}
			logger.Info().Int("items", len(delta.Items)).
				Int("removed", len(delta.RemovedSKUs)).Msg("catalog delta applied")
			return nil
		},
	}

	cmd.AddCommand(load)
	return cmd
}
