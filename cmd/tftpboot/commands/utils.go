package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/visionfive-tools/tftpboot/internal/config"
	"github.com/visionfive-tools/tftpboot/pkg/db"
	"github.com/visionfive-tools/tftpboot/pkg/errors"
	"github.com/visionfive-tools/tftpboot/pkg/storage"
)

// ensureDirectories creates the history and transcript directories
func ensureDirectories(historyDB, transcriptDir string) error {
	if err := os.MkdirAll(filepath.Dir(historyDB), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	if transcriptDir != "" {
		if err := os.MkdirAll(transcriptDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create transcript directory")
		}
	}

	return nil
}

// openHistory loads the configuration and opens the boot history.
func openHistory() (*config.Config, *db.Repository, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "config load failed")
	}

	if err := ensureDirectories(cfg.HistoryDB, ""); err != nil {
		return nil, nil, err
	}

	repo, err := db.NewRepository(cfg.HistoryDB)
	if err != nil {
		return nil, nil, errors.Wrap(err, "db init failed")
	}
	return cfg, repo, nil
}

// newArchive returns the transcript archive, or nil when no bucket is set.
func newArchive(ctx context.Context, cfg *config.Config) (*storage.Client, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}
	client, err := storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "S3 client failed")
	}
	return client, nil
}

func requireArchive(ctx context.Context, cfg *config.Config) (*storage.Client, error) {
	client, err := newArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("no transcript archive configured, set --s3-bucket or TFTPBOOT_S3_BUCKET")
	}
	return client, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
