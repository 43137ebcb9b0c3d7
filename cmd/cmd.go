package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/admariner/crawler/cmd/fetch"
)

// Set at build time via -ldflags.
var (
	Version = "None"
	GitHash = "None"
	BuildTS = "None"
)

func GetVersion() string {
	if GitHash != "" {
		h := GitHash
		if len(h) > 7 {
			h = h[:7]
		}

		return fmt.Sprintf("%s-%s", Version, h)
	}

	return Version
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version",
	Long:  "print version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Version:         ", GetVersion())
		fmt.Println("Git Commit:      ", GitHash)
		fmt.Println("Build Time (UTC):", BuildTS)
	},
}

func Execute() error {
	var rootCmd = &cobra.Command{Use: "crawler"}
	rootCmd.AddCommand(fetch.FetchCmd, versionCmd)
	return rootCmd.Execute()
}
