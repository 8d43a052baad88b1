package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/visionfive-tools/tftpboot/internal/config"
	"github.com/visionfive-tools/tftpboot/pkg/boot"
	"github.com/visionfive-tools/tftpboot/pkg/db"
	"github.com/visionfive-tools/tftpboot/pkg/errors"
	"github.com/visionfive-tools/tftpboot/pkg/session"
	"github.com/visionfive-tools/tftpboot/pkg/transport"
)

var bootCmd = &cobra.Command{
	Use:   "boot <target> [baud]",
	Short: "Boot the board over TFTP and attach its console",
	Long: `Boot the board over TFTP and attach its console.

<target> is a serial device such as /dev/ttyUSB0, or a TCP port of a local
telnet serial relay (2323), or host:port of a remote one. [baud] applies to
serial devices and defaults to 115200.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBoot,
}

func init() {
	rootCmd.AddCommand(bootCmd)

	params := boot.DefaultParameters()
	timeouts := boot.DefaultTimeouts()

	flags := bootCmd.Flags()
	flags.String("server", params.ServerAddress, "TFTP server IPv4 address")
	flags.String("kernel-prefix", params.KernelPrefix, "Directory of Image and device tree on the TFTP server")
	flags.String("dtb", params.DeviceTreeFile, "Device tree file, relative to the kernel prefix")
	flags.String("ramdisk", params.RamdiskPath, "U-Boot wrapped ramdisk on the TFTP server")
	flags.String("console", params.ConsoleDevice, "Kernel console argument")
	flags.String("prompt", "VisionFive #", "U-Boot prompt")
	flags.Int("retries", 10, "Prompt synchronization attempts")
	flags.Duration("command-timeout", timeouts.Command, "Timeout of environment commands")
	flags.Duration("transfer-timeout", timeouts.Transfer, "Timeout of dhcp and each TFTP transfer")
	flags.Duration("boot-timeout", timeouts.Boot, "Timeout from booti to the kernel banner")
	flags.Duration("shell-timeout", timeouts.Shell, "Timeout from the kernel banner to a shell prompt")
	flags.Bool("wait-shell", false, "Wait for a shell prompt after the kernel banner")
	flags.Bool("interactive", true, "Attach the console to the terminal after booting")

	flags.VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(f.Name, f)
	})
}

func runBoot(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target := args[0]
	baud := transport.DefaultBaud
	if len(args) == 2 {
		b, err := strconv.Atoi(args[1])
		if err != nil || b <= 0 {
			return fmt.Errorf("invalid baud rate %q", args[1])
		}
		baud = b
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	if err := ensureDirectories(cfg.HistoryDB, cfg.TranscriptDir); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.HistoryDB)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	opts := []session.Option{session.WithHistory(repo)}
	archive, err := newArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		opts = append(opts, session.WithArchive(archive))
	}

	s := session.New(session.Config{
		Target:        target,
		Baud:          baud,
		Params:        cfg.Parameters(),
		Timeouts:      cfg.Timeouts(),
		Prompt:        cfg.Prompt,
		Retries:       cfg.Retries,
		WaitShell:     cfg.WaitShell,
		Interactive:   cfg.Interactive,
		TranscriptDir: cfg.TranscriptDir,
		ArchivePrefix: cfg.S3Prefix,
	}, opts...)

	fmt.Fprintf(os.Stderr, "🔌 Connecting to %s...\n", target)

	outcome, err := s.Run(ctx)
	if outcome == nil {
		return err
	}
	if !outcome.Success {
		fmt.Fprintf(os.Stderr, "❌ Boot failed at %s: %s\n", outcome.Stage, outcome.Reason)
		fmt.Fprintf(os.Stderr, "   Transcript: %s\n", outcome.TranscriptPath)
		return err
	}

	fmt.Fprintf(os.Stderr, "✅ Boot completed (run %d): %s\n", outcome.RunID, outcome.Text)
	if outcome.ArchiveKey != "" {
		fmt.Fprintf(os.Stderr, "📦 Transcript archived: s3://%s/%s\n", cfg.S3Bucket, outcome.ArchiveKey)
	}
	return nil
}
