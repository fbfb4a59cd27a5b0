package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gdcore/internal/safety"
)

var backupsCmd = &cobra.Command{
	Use:   "backups <file>",
	Short: "List the versioned backups recorded for a file, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := safety.NewManager(cfg.Safety)
		defer mgr.Close()

		history, err := mgr.BackupHistory(args[0])
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Println("no backups")
			return nil
		}
		for _, rec := range history {
			fmt.Printf("%s  %8d bytes  sha256=%s\n",
				rec.Timestamp.Format(safety.BackupTimeLayout), rec.Size, rec.Checksum[:12])
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file> <timestamp>",
	Short: "Restore a file from the backup taken at the given timestamp",
	Long: `Restore a file from a backup. The timestamp must match one listed by
"gdcore backups", in the form 20060102_150405. The current content is
backed up first, so a restore is itself undoable.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := time.ParseInLocation(safety.BackupTimeLayout, args[1], time.Local)
		if err != nil {
			return fmt.Errorf("bad timestamp %q, want %s", args[1], safety.BackupTimeLayout)
		}

		mgr := safety.NewManager(cfg.Safety)
		defer mgr.Close()

		warnings, err := mgr.RestoreFromBackup(args[0], ts)
		for _, w := range warnings {
			fmt.Printf("warning: %s\n", w)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s restored from backup %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupsCmd, restoreCmd)
}
