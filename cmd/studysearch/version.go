package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/studysearch/internal/mcp"
	"github.com/dshills/studysearch/internal/storage"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("studysearch %s\n", version)
		cmd.Printf("  build time: %s\n", buildTime)
		cmd.Printf("  mcp server: %s %s\n", mcp.ServerName, mcp.ServerVersion)
		cmd.Printf("  sqlite:     %s (driver %s)\n", storage.BuildMode, storage.DriverName)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
