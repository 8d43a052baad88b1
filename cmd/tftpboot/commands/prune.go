package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/visionfive-tools/tftpboot/pkg/db"
	"github.com/visionfive-tools/tftpboot/pkg/errors"
)

var (
	pruneOlderThan time.Duration
	pruneKeepFiles bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished boot runs and their local transcripts",
	Long: `Delete finished boot runs started before --older-than ago, together with
their local transcript files. Runs still marked running are kept. Archived
transcripts in S3 are left untouched.`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "Age of the runs to delete")
	pruneCmd.Flags().BoolVar(&pruneKeepFiles, "keep-transcripts", false, "Keep local transcript files")
}

func runPrune(cmd *cobra.Command, args []string) error {
	if pruneOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	_, repo, err := openHistory()
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx := context.Background()
	cutoff := time.Now().Add(-pruneOlderThan)

	if !pruneKeepFiles {
		runs, err := repo.List(ctx, 0)
		if err != nil {
			return errors.Wrap(err, "list failed")
		}
		removeTranscripts(runs, cutoff)
	}

	n, err := repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, "prune failed")
	}

	fmt.Printf("✅ Removed %d boot runs started before %s\n", n, cutoff.Format(time.RFC3339))
	return nil
}

func removeTranscripts(runs []*db.Run, cutoff time.Time) {
	for _, run := range runs {
		if run.Status == db.StatusRunning || !run.StartedAt.Before(cutoff) || run.TranscriptPath == "" {
			continue
		}
		if err := os.Remove(run.TranscriptPath); err != nil && !os.IsNotExist(err) {
			fmt.Printf("⚠️  Failed to remove transcript %s: %v\n", run.TranscriptPath, err)
			continue
		}
		fmt.Printf("🗑️  Removed transcript: %s\n", run.TranscriptPath)
	}
}
