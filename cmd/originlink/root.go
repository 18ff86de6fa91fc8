package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for originlink.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "originlink",
		Short: "Localize the external assets of a built web site",
		Long: `originlink makes a built web site independent of third-party CDNs.

It scans the site for absolute references to external assets (scripts,
stylesheets, images, fonts), downloads them into a local mirror directory and
writes a copy of the site whose references point at the mirror. Downloaded
stylesheets and scripts are scanned again until no new references appear, and
a headless browser pass catches assets that are only requested at runtime.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewReplaceCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
