package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var version = "dev"

var configFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "flagrunner",
	Short: "Round-driven CTF solving agent",
	Long: `Flagrunner drives a language model through a CTF challenge one round at a
time. Every round the model proposes a single step, the requested tools run,
the task tree is updated and any flag candidates are offered for verification.

Use 'flagrunner help <command>' for more information on a specific command.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "flagrunner", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (JSON)")
	rootCmd.AddCommand(versionCmd)
}
