package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics and health",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	status, err := store.GetStatus(cmd.Context())
	if err != nil {
		return err
	}

	cmd.Printf("Backend:         %s\n", status.Backend)
	cmd.Printf("Schema version:  %s\n", displayVersion(status.SchemaVersion))
	cmd.Printf("Courses:         %d\n", status.Courses)
	cmd.Printf("Lectures:        %d (%d embedded)\n", status.Lectures, status.LecturesEmbedded)
	cmd.Printf("Chunks:          %d (%d embedded)\n", status.Chunks, status.ChunksEmbedded)
	cmd.Printf("Concepts:        %d\n", status.Concepts)
	cmd.Printf("Index size:      %.2f MB\n", status.IndexSizeMB)
	cmd.Printf("Healthy:         db=%t embeddings=%t fts=%t\n",
		status.Health.DatabaseAccessible, status.Health.EmbeddingsAvailable, status.Health.FTSIndexesBuilt)
	return nil
}
