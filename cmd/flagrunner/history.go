package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/codefionn/flagrunner/internal/store"
	"github.com/codefionn/flagrunner/internal/tasktree"
)

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Show the archived rounds of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		archive, err := store.Open(cfg.ArchivePath())
		if err != nil {
			return err
		}
		defer archive.Close()
		return printHistory(cmd, archive, args[0])
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func printHistory(cmd *cobra.Command, archive *store.Archive, sessionID string) error {
	ctx := cmd.Context()
	info, err := archive.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	rounds, err := archive.Rounds(ctx, sessionID)
	if err != nil {
		return err
	}
	candidates, err := archive.Candidates(ctx, sessionID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s mode, started %s)\n", info.Title, info.Mode, info.StartedAt.Format("2006-01-02 15:04:05"))
	for _, r := range rounds {
		status := ""
		if r.Failed {
			status = " FAILED"
		}
		fmt.Fprintf(out, "Round %d [%s]%s tokens=%d tools=%v\n", r.Number, r.Source, status, r.TotalTokens(), r.ToolsUsed)
		writeIndented(out, tasktree.Truncate(r.Output, 200))
	}
	for _, c := range candidates {
		fmt.Fprintf(out, "Candidate (round %d): %s\n", c.Round, c.Value)
	}
	if info.Flag != "" {
		fmt.Fprintf(out, "Final flag: %s (verified: %t)\n", info.Flag, info.Verified)
	}
	return nil
}

func writeIndented(w io.Writer, text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(w, "    %s\n", text)
}
