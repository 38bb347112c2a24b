package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// noColor disables ANSI colors in every command's output.
var noColor bool

var rootCmd = &cobra.Command{
	Use:   "aide",
	Short: "Personal assistant for calendar, finance and notes",
	Long: `aide keeps calendar events, finance records and notes as JSON
collections in a versioned store, and turns free-form text into records
with a language model.

Run "aide serve" first; the data commands talk to the running server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd, stopCmd, statusCmd, mcpCmd)
	rootCmd.AddCommand(eventCmd, importCmd, expenseCmd, noteCmd)
	rootCmd.AddCommand(listCmd, deleteCmd, summaryCmd, searchCmd, assistCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
