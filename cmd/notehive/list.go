package main

import (
	"fmt"
	"strings"

	"github.com/notehive/notehive"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes",
	Long: `List notes in one lifecycle bucket, most recently modified first.

Example:
  notehive list
  notehive list --archived
  notehive list --bin
  notehive list --reminders`,
	RunE: runList,
}

var (
	listArchived  bool
	listBin       bool
	listReminders bool
)

func init() {
	listCmd.Flags().BoolVar(&listArchived, "archived", false, "List archived notes")
	listCmd.Flags().BoolVar(&listBin, "bin", false, "List binned notes")
	listCmd.Flags().BoolVar(&listReminders, "reminders", false, "List notes with reminders")
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := notehive.New(loadConfig())
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	bucket := "active"
	switch {
	case listArchived:
		bucket = "archived"
	case listBin:
		bucket = "bin"
	case listReminders:
		bucket = "reminders"
	}

	notes, err := client.ListNotes(bucket)
	if err != nil {
		return err
	}

	if len(notes) == 0 {
		fmt.Println("No notes.")
		return nil
	}

	for _, n := range notes {
		line := n.Title
		if line == "" {
			line = firstLine(n.Content)
		}
		fmt.Printf("%s  %s  %s", n.ID, n.Timestamp.Local().Format("2006-01-02 15:04"), line)
		if len(n.Labels) > 0 {
			fmt.Printf("  [%s]", strings.Join(n.Labels, ", "))
		}
		if n.HasReminder && n.ReminderTime != nil {
			fmt.Printf("  (reminder %s)", n.ReminderTime.Local().Format("2006-01-02 15:04"))
		}
		fmt.Println()
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:60] + "..."
	}
	return s
}
