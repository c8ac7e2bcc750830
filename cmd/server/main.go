package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sentinel/mpc-engine/internal/circuit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := rootCmd().Execute(); err != nil {
		slog.Error("sentinel exited", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configFile string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the computation engine HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configFile)
		},
	}

	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "Confidential computation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		// serve is the default command.
		RunE: serve.RunE,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file; environment variables override it")

	root.AddCommand(serve, circuitsCmd())
	return root
}

func circuitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "circuits",
		Short: "List the registered circuits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CIRCUIT\tOUTPUT\tRECORD\tINPUTS\tEVENT")
			for _, d := range circuit.Definitions() {
				rec := string(d.Record)
				if rec == "" {
					rec = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", d.ID, d.Output, rec, d.Inputs, d.Event)
			}
			return tw.Flush()
		},
	}
}
