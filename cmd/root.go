package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

var rootCmd = &cobra.Command{
	Use:     "plexgate",
	Short:   "Plexgate - Plex OAuth authentication gateway",
	Long:    `An HTTP gateway implementing the OAuth 2.0 authorization code flow with PKCE against Plex.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate("plexgate version {{.Version}}\n")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
