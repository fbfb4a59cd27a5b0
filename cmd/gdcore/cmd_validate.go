package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gdcore/internal/report"
	"gdcore/internal/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate <dir> [dir...]",
	Short: "Run every consistency rule over the XML files under the given roots",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := validation.NewEngine(*cfg)
		rep, err := engine.ValidateAll(cmd.Context(), args)
		if err != nil {
			return err
		}
		fmt.Print(report.Text(rep))
		if rep.Errors > 0 {
			os.Exit(2)
		}
		return nil
	},
}

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report <dir> [dir...]",
	Short: "Run validation and write an HTML report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := validation.NewEngine(*cfg)
		rep, err := engine.ValidateAll(cmd.Context(), args)
		if err != nil {
			return err
		}
		if err := os.WriteFile(reportOut, []byte(report.HTML(rep)), 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("report written to %s (%d errors, %d warnings, %d infos)\n",
			reportOut, rep.Errors, rep.Warnings, rep.Infos)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir> [dir...]",
	Short: "Validate, then re-check changed files incrementally until interrupted",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := validation.NewEngine(*cfg)
		rep, err := engine.ValidateAll(cmd.Context(), args)
		if err != nil {
			return err
		}
		fmt.Print(report.Text(rep))

		w, err := validation.NewWatcher(engine, args, func(path string, r *validation.Report) {
			fmt.Printf("\n%s changed: %d errors, %d warnings\n", path, r.Errors, r.Warnings)
			fmt.Print(report.Text(r))
		})
		if err != nil {
			return err
		}
		w.Start(cmd.Context())
		defer w.Stop()

		fmt.Println("\nwatching for changes, Ctrl-C to stop")
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sig:
		case <-cmd.Context().Done():
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "validation_report.html", "output HTML file")
	rootCmd.AddCommand(validateCmd, reportCmd, watchCmd)
}
