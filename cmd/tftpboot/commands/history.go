package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/visionfive-tools/tftpboot/pkg/db"
	"github.com/visionfive-tools/tftpboot/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	historyLimit  int
	historyOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded boot runs, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to list, 0 for all")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "Output format: table or yaml")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyOutput != "table" && historyOutput != "yaml" {
		return fmt.Errorf("unknown output format %q", historyOutput)
	}

	_, repo, err := openHistory()
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx := context.Background()

	var runs []*db.Run
	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q", args[0])
		}
		run, err := repo.GetByID(ctx, id)
		if err != nil {
			return errors.Wrap(err, "history lookup failed")
		}
		if run == nil {
			return fmt.Errorf("run %d not found", id)
		}
		runs = []*db.Run{run}
	} else {
		runs, err = repo.List(ctx, historyLimit)
		if err != nil {
			return errors.Wrap(err, "list failed")
		}
	}

	if historyOutput == "yaml" {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No boot runs recorded")
		return nil
	}

	fmt.Printf("%-6s %-20s %-18s %-10s %-14s %s\n", "ID", "STARTED", "TARGET", "STATUS", "STAGE", "REASON")
	fmt.Println("------------------------------------------------------------------------------------------------")

	for _, run := range runs {
		fmt.Printf("%-6d %-20s %-18s %-10s %-14s %s\n",
			run.ID, run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Target, run.Status, orDash(run.Stage), orDash(run.Reason))
	}

	return nil
}
