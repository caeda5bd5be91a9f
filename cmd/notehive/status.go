package main

import (
	"context"
	"fmt"
	"time"

	"github.com/notehive/notehive"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and connectivity status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := notehive.New(loadConfig())
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := client.Stats()
	if err != nil {
		return err
	}

	health := client.HealthCheck(ctx)

	fmt.Printf("Notes:              %d\n", stats.NoteCount)
	fmt.Printf("Labels:             %d\n", stats.LabelCount)
	fmt.Printf("Pending operations: %d\n", stats.PendingOps)
	if stats.DeadLetters > 0 {
		fmt.Printf("Dead letters:       %d\n", stats.DeadLetters)
	}
	if !stats.LastReconcile.IsZero() {
		fmt.Printf("Last reconcile:     %s\n", stats.LastReconcile.Local().Format(time.RFC1123))
	}
	fmt.Printf("Schema version:     %s\n", stats.SchemaVersion)
	fmt.Printf("Remote reachable:   %v\n", health.RemoteReachable)

	if stats.DeadLetters > 0 {
		letters, err := client.DeadLetters()
		if err != nil {
			return err
		}
		fmt.Println("\nAbandoned operations:")
		for _, dl := range letters {
			fmt.Printf("  %s %s %s (attempts %d): %s\n", dl.Entity, dl.Kind, dl.EntityID, dl.Attempts, dl.LastError)
		}
	}

	return nil
}
