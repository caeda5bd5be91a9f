package main

import (
	"context"
	"fmt"
	"time"

	"github.com/notehive/notehive"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a note",
	Long: `Add a new note.

Example:
  notehive add --title "Groceries" --content "milk, eggs"
  notehive add --content "call the plumber" --label todo --reminder 2026-09-01T09:00:00Z`,
	RunE: runAdd,
}

var (
	addTitle    string
	addContent  string
	addLabels   []string
	addReminder string
)

func init() {
	addCmd.Flags().StringVar(&addTitle, "title", "", "Note title")
	addCmd.Flags().StringVar(&addContent, "content", "", "Note content")
	addCmd.Flags().StringArrayVar(&addLabels, "label", nil, "Label name (repeatable)")
	addCmd.Flags().StringVar(&addReminder, "reminder", "", "Reminder time (RFC3339)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	client, err := notehive.New(loadConfig())
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	note := notehive.Note{Title: addTitle, Content: addContent, Labels: addLabels}
	created, err := client.AddNote(ctx, note)
	if err != nil {
		return err
	}

	if addReminder != "" {
		at, err := time.Parse(time.RFC3339, addReminder)
		if err != nil {
			return fmt.Errorf("parse reminder: %w", err)
		}
		if err := client.SetReminder(ctx, created.ID, &at); err != nil {
			return err
		}
	}

	fmt.Printf("Added note %s\n", created.ID)
	if !client.IsOnline() {
		fmt.Println("(offline: queued for sync)")
	}
	return nil
}
