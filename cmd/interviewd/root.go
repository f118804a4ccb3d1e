package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "interviewd",
	Short: "Book-report interview coordinator",
	Long: `interviewd runs the multi-agent book-report interview coordinator: a
Timekeeper, Grader, DepthExpert, Interviewer, and Coordinator agent
communicating over an in-process pub/sub bus to conduct and grade one
student's spoken book report.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (defaults to the built-in config)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
