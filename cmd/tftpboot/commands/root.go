package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "tftpboot",
	Short: "Boot a VisionFive board over TFTP from its U-Boot console",
	Long: `Drives the U-Boot console of a StarFive VisionFive board, over a serial device
or a telnet serial relay, through a TFTP boot of kernel, device tree and ramdisk,
then attaches the console to the terminal. Runs are recorded in a local history
and their transcripts can be archived in S3.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.PersistentFlags().String("history-db", ".artifacts/history.db", "SQLite boot history path")
	rootCmd.PersistentFlags().String("transcript-dir", ".artifacts/transcripts", "Directory for console transcripts")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket for transcript archive (disabled when empty)")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3-compatible endpoint URL")
	rootCmd.PersistentFlags().String("s3-prefix", "transcripts", "Key prefix for archived transcripts")

	for _, name := range []string{"history-db", "transcript-dir", "s3-bucket", "s3-region", "s3-endpoint", "s3-prefix"} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}
