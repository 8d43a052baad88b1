package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/visionfive-tools/tftpboot/pkg/db"
)

func TestDeleteRun(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := db.NewRepository(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	newRun := func(status string) *db.Run {
		run := &db.Run{Target: "2323", Baud: 115200, ServerAddress: "192.168.1.90", KernelPrefix: "linux"}
		require.NoError(t, repo.Create(ctx, run))
		if status != db.StatusRunning {
			require.NoError(t, repo.Finish(ctx, run.ID, status, "command#5", "no response within 2m0s"))
		}
		transcript := filepath.Join(dir, filepath.Base(run.Target)+"-"+status+".log")
		require.NoError(t, os.WriteFile(transcript, []byte("VisionFive # "), 0o644))
		require.NoError(t, repo.SetTranscript(ctx, run.ID, transcript, ""))
		run.TranscriptPath = transcript
		return run
	}

	failed := newRun(db.StatusFailed)
	deleted, err := deleteRun(ctx, repo, failed.ID, true)
	require.NoError(t, err)
	require.Equal(t, failed.ID, deleted.ID)
	require.NoFileExists(t, failed.TranscriptPath)
	gone, err := repo.GetByID(ctx, failed.ID)
	require.NoError(t, err)
	require.Nil(t, gone)

	kept := newRun(db.StatusSucceeded)
	_, err = deleteRun(ctx, repo, kept.ID, false)
	require.NoError(t, err)
	require.FileExists(t, kept.TranscriptPath)

	running := newRun(db.StatusRunning)
	_, err = deleteRun(ctx, repo, running.ID, true)
	require.ErrorContains(t, err, "still running")
	require.FileExists(t, running.TranscriptPath)

	_, err = deleteRun(ctx, repo, 9999, true)
	require.ErrorContains(t, err, "not found")
}
