package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/visionfive-tools/tftpboot/pkg/db"
	"github.com/visionfive-tools/tftpboot/pkg/errors"
)

var historyDeleteKeepFile bool

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete one boot run and its local transcript",
	Long: `Delete one boot run from the history together with its local transcript
file. An archived copy in S3 is left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryDelete,
}

func init() {
	historyCmd.AddCommand(historyDeleteCmd)
	historyDeleteCmd.Flags().BoolVar(&historyDeleteKeepFile, "keep-transcript", false, "Keep the local transcript file")
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q", args[0])
	}

	_, repo, err := openHistory()
	if err != nil {
		return err
	}
	defer repo.Close()

	run, err := deleteRun(context.Background(), repo, id, !historyDeleteKeepFile)
	if err != nil {
		return err
	}

	fmt.Printf("🗑️  Deleted run %d (%s, %s)\n", run.ID, run.Target, run.Status)
	return nil
}

// deleteRun removes run id from repo and, when removeFile is set, its local
// transcript.
func deleteRun(ctx context.Context, repo *db.Repository, id int64, removeFile bool) (*db.Run, error) {
	run, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "history lookup failed")
	}
	if run == nil {
		return nil, fmt.Errorf("run %d not found", id)
	}
	if run.Status == db.StatusRunning {
		return nil, fmt.Errorf("run %d is still running", id)
	}

	if removeFile && run.TranscriptPath != "" {
		if err := os.Remove(run.TranscriptPath); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "failed to remove transcript")
		}
	}

	if err := repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}
