// Command rulecheck validates the rule files and previews what the server
// derives from them.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dir string

	root := &cobra.Command{
		Use:           "rulecheck",
		Short:         "Validate and inspect evidence rule files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultDir := os.Getenv("RULES_DIR")
	if defaultDir == "" {
		defaultDir = "config"
	}
	root.PersistentFlags().StringVar(&dir, "dir", defaultDir, "directory holding the rule files")

	root.AddCommand(
		newValidateCmd(&dir),
		newChainsCmd(&dir),
		newGuideCmd(&dir),
	)
	return root
}
