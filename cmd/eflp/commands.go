package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cisec/eflp/internal/config"
	"github.com/cisec/eflp/internal/output"
	"github.com/cisec/eflp/internal/parser"
	"github.com/cisec/eflp/internal/server"
)

func newParseCmd(flags *globalFlags) *cobra.Command {
	var (
		vendor        string
		workers       int
		parallelLines bool
		format        string
		forward       string
	)

	cmd := &cobra.Command{
		Use:   "parse [files...]",
		Short: "Parse log files and print normalized records",
		Long: `Parse one or more log files for a vendor. Records are written to stdout as
NDJSON (one record per line) or as a JSON array of per-file results.
Files ending in .csv or .tsv are decoded as generic rows whatever the vendor.
With --forward (or output.url) records are posted to an ingest endpoint
instead of printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "ndjson" && format != "json" {
				return fmt.Errorf("unknown format %q (ndjson, json)", format)
			}

			cfg, logger, closer, err := flags.setup(true)
			if err != nil {
				return err
			}
			defer closer.Close()

			if cmd.Flags().Changed("workers") {
				cfg.Parser.Workers = workers
			}
			if parallelLines {
				cfg.Parser.ParallelLines = true
			}
			if forward != "" {
				cfg.Output.URL = forward
				if err := cfg.Output.Validate(); err != nil {
					return err
				}
			}

			d := newDispatcher(cfg.Parser, logger)
			results, err := d.ParseFiles(cmd.Context(), vendor, args)
			if err != nil {
				logger.Error().Err(err).Str("vendor", vendor).Msg("Parse failed")
				return err
			}

			if cfg.Output.URL != "" {
				return forwardResults(cmd.Context(), cfg.Output, results, logger)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if format == "json" {
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			return writeNDJSON(enc, results)
		},
	}

	cmd.Flags().StringVarP(&vendor, "vendor", "v", "", "vendor id (see 'eflp vendors')")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent files and line workers (0 = one per CPU)")
	cmd.Flags().BoolVar(&parallelLines, "parallel-lines", false, "parse the lines of each file concurrently")
	cmd.Flags().StringVarP(&format, "format", "f", "ndjson", "output format (ndjson, json)")
	cmd.Flags().StringVar(&forward, "forward", "", "ingest URL to post records to (overrides output.url)")
	return cmd
}

func forwardResults(ctx context.Context, cfg config.OutputSettings, results []*parser.Result, logger zerolog.Logger) error {
	out, err := output.New(cfg)
	if err != nil {
		return err
	}
	defer out.Close()

	for _, res := range results {
		if res.Delimited {
			logger.Warn().Str("source", res.Source).Msg("Delimited rows are not forwarded")
			continue
		}
		sent, err := output.SendAll(ctx, out, res.Records, cfg.BatchSize)
		if err != nil {
			logger.Error().Err(err).Str("source", res.Source).Int("sent", sent).Msg("Forwarding failed")
			return err
		}
		logger.Info().Str("source", res.Source).Int("records", sent).Str("output", out.Name()).Msg("Forwarded records")
	}
	return nil
}

func writeNDJSON(enc *json.Encoder, results []*parser.Result) error {
	for _, res := range results {
		if res.Delimited {
			for _, row := range res.Rows {
				if err := enc.Encode(row); err != nil {
					return err
				}
			}
			continue
		}
		for _, rec := range res.Records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func newVendorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vendors",
		Short: "List supported vendor ids",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			registry := parser.NewRegistry(parser.DefaultOptions(), zerolog.Nop())
			for _, v := range registry.Vendors() {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
		},
	}
}

func newMappingCmd() *cobra.Command {
	var vendor string

	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Print the index mapping for a vendor's records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := parser.NewRegistry(parser.DefaultOptions(), zerolog.Nop())
			vp, err := registry.Resolve(vendor)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(vp.Mapping())
		},
	}

	cmd.Flags().StringVarP(&vendor, "vendor", "v", "", "vendor id")
	cmd.MarkFlagRequired("vendor")
	return cmd
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the parse API over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := flags.setup(false)
			if err != nil {
				return err
			}
			defer closer.Close()

			if listen != "" {
				cfg.Server.Listen = listen
			}

			logger.Info().
				Str("version", version).
				Str("commit", commit).
				Str("build_date", buildDate).
				Msg("Starting eflp server")

			// Handle shutdown signals
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d := newDispatcher(cfg.Parser, logger)
			srv := server.New(cfg.Server, d, logger, version)
			if err := srv.ListenAndServe(ctx); err != nil {
				logger.Error().Err(err).Msg("Server error")
				return err
			}

			logger.Info().Msg("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	return cmd
}
