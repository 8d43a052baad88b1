package commands

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"
	"github.com/visionfive-tools/tftpboot/internal/config"
	"github.com/visionfive-tools/tftpboot/pkg/errors"
	"gopkg.in/yaml.v3"
)

var transcriptsOutput string

var transcriptsCmd = &cobra.Command{
	Use:   "transcripts",
	Short: "Work with transcripts archived in S3",
}

var transcriptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived transcripts",
	Args:  cobra.NoArgs,
	RunE:  runTranscriptsList,
}

var transcriptsFetchCmd = &cobra.Command{
	Use:   "fetch <key> [destination]",
	Short: "Download an archived transcript",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runTranscriptsFetch,
}

func init() {
	rootCmd.AddCommand(transcriptsCmd)
	transcriptsCmd.AddCommand(transcriptsListCmd, transcriptsFetchCmd)
	transcriptsListCmd.Flags().StringVarP(&transcriptsOutput, "output", "o", "table", "Output format: table or yaml")
}

func runTranscriptsList(cmd *cobra.Command, args []string) error {
	if transcriptsOutput != "table" && transcriptsOutput != "yaml" {
		return fmt.Errorf("unknown output format %q", transcriptsOutput)
	}
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	client, err := requireArchive(ctx, cfg)
	if err != nil {
		return err
	}

	objects, err := client.ListObjects(ctx, cfg.S3Prefix)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if transcriptsOutput == "yaml" {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(objects)
	}

	if len(objects) == 0 {
		fmt.Printf("No transcripts under s3://%s/%s\n", client.Bucket(), cfg.S3Prefix)
		return nil
	}

	fmt.Printf("%-56s %-10s %s\n", "KEY", "SIZE", "LAST MODIFIED")
	fmt.Println("------------------------------------------------------------------------------------------------")
	for _, obj := range objects {
		fmt.Printf("%-56s %-10d %s\n", obj.Key, obj.Size, obj.LastModified.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runTranscriptsFetch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	key := args[0]
	dest := path.Base(key)
	if len(args) == 2 {
		dest = args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	client, err := requireArchive(ctx, cfg)
	if err != nil {
		return err
	}

	exists, err := client.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("transcript %s not found in s3://%s", key, client.Bucket())
	}

	result, err := client.Download(ctx, key, dest)
	if err != nil {
		return errors.Wrap(err, "download failed")
	}

	fmt.Printf("✅ Saved %s (%d bytes, sha256 %s)\n", result.LocalPath, result.Size, result.SHA256[:16])
	return nil
}
