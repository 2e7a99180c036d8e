// Package main implements the pipelined daemon and its client commands.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the YAML config file for the serve command.
	configPath string
	// serverURL is the base URL client commands talk to.
	serverURL string
	// version information, set at build time.
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pipelined",
	Short: "Multi-stage software-change pipeline orchestrator",
	Long: `pipelined drives software-change requests through a staged pipeline:
research, plan, test design, implementation, then parallel review and
security validation. Progress is checkpointed after every stage so an
interrupted workflow resumes where it stopped.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/pipelined/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "pipelined server URL for client commands")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(resumeCmd)
}
