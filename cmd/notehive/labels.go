package main

import (
	"context"
	"fmt"
	"time"

	"github.com/notehive/notehive"
	"github.com/spf13/cobra"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Manage labels",
	Long: `List, add, rename, or delete labels.

Renaming or deleting a label rewrites every note referencing it.

Example:
  notehive labels
  notehive labels --add Work
  notehive labels --rename <id> --to Job
  notehive labels --delete <id>`,
	RunE: runLabels,
}

var (
	labelAdd    string
	labelRename string
	labelTo     string
	labelDelete string
)

func init() {
	labelsCmd.Flags().StringVar(&labelAdd, "add", "", "Create a label with the given name")
	labelsCmd.Flags().StringVar(&labelRename, "rename", "", "Label ID to rename (requires --to)")
	labelsCmd.Flags().StringVar(&labelTo, "to", "", "New label name for --rename")
	labelsCmd.Flags().StringVar(&labelDelete, "delete", "", "Label ID to delete")
}

func runLabels(cmd *cobra.Command, args []string) error {
	client, err := notehive.New(loadConfig())
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case labelAdd != "":
		l, err := client.AddLabel(ctx, labelAdd)
		if err != nil {
			return err
		}
		fmt.Printf("Added label %s (%s)\n", l.Name, l.ID)
		return nil

	case labelRename != "":
		if labelTo == "" {
			return fmt.Errorf("--rename requires --to")
		}
		if err := client.UpdateLabel(ctx, labelRename, labelTo); err != nil {
			return err
		}
		fmt.Printf("Renamed label %s to %q\n", labelRename, labelTo)
		return nil

	case labelDelete != "":
		if err := client.DeleteLabel(ctx, labelDelete); err != nil {
			return err
		}
		fmt.Printf("Deleted label %s\n", labelDelete)
		return nil
	}

	labels, err := client.ListLabels()
	if err != nil {
		return err
	}
	if len(labels) == 0 {
		fmt.Println("No labels.")
		return nil
	}
	for _, l := range labels {
		fmt.Printf("%s  %s\n", l.ID, l.Name)
	}
	return nil
}
