package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/studysearch/internal/indexer"
)

var (
	ingestCourseID   string
	ingestCourseName string
	ingestCategory   string
	ingestLectureID  string
	ingestTitle      string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest a lecture file or directory",
	Long: `Ingest loads a .txt, .md or .pdf lecture, splits it into overlapping
chunks and stores it with its embeddings. Given a directory, every supported
file below it is ingested as its own lecture.

Front matter in markdown files supplies title, description, category and
concepts. Flags override front matter.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCourseID, "course-id", "", "course the lecture belongs to")
	ingestCmd.Flags().StringVar(&ingestCourseName, "course-name", "", "display name of the course")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "lecture category")
	ingestCmd.Flags().StringVar(&ingestLectureID, "lecture-id", "", "lecture id (single file only)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "lecture title (single file only)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	meta := indexer.LectureInput{
		CourseID:   ingestCourseID,
		CourseName: ingestCourseName,
		Category:   ingestCategory,
		LectureID:  ingestLectureID,
		Title:      ingestTitle,
	}

	if info.IsDir() {
		stats, err := a.indexer.IngestDirectory(cmd.Context(), path, meta)
		if err != nil {
			return err
		}
		cmd.Printf("Ingested %d files (%d failed) in %s\n", stats.FilesIngested, stats.FilesFailed, stats.Duration.Round(time.Millisecond))
		cmd.Printf("  chunks: %d created, %d embedded, %d failed\n", stats.ChunksCreated, stats.ChunksEmbedded, stats.ChunksFailed)
		printErrors(cmd, stats.ErrorMessages)
		return nil
	}

	stats, err := a.indexer.IngestFile(cmd.Context(), path, meta)
	if err != nil {
		return err
	}
	cmd.Printf("Ingested lecture %s in %s\n", stats.LectureID, stats.Duration.Round(time.Millisecond))
	cmd.Printf("  chunks: %d (%d embedded, %d failed)\n", stats.Chunks, stats.ChunksEmbedded, stats.ChunksFailed)
	cmd.Printf("  concepts: %d (%d embedded)\n", stats.Concepts, stats.ConceptsEmbedded)
	printErrors(cmd, stats.ErrorMessages)
	return nil
}

func printErrors(cmd *cobra.Command, msgs []string) {
	if len(msgs) == 0 {
		return
	}
	cmd.Println("Errors:")
	for _, msg := range msgs {
		cmd.Printf("  - %s\n", msg)
	}
}
