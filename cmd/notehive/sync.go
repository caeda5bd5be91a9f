package main

import (
	"context"
	"fmt"
	"time"

	"github.com/notehive/notehive"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with Nimbus",
	Long: `Synchronize the local store with the Nimbus cloud service.

By default this drains queued offline changes and then pulls the full
remote snapshot into the local store.

Example:
  notehive sync           # Drain queue, then pull snapshot
  notehive sync --push    # Drain queued offline changes only
  notehive sync --pull    # Pull remote snapshot only`,
	RunE: runSync,
}

var (
	syncPush bool
	syncPull bool
)

func init() {
	syncCmd.Flags().BoolVar(&syncPush, "push", false, "Drain queued offline changes only")
	syncCmd.Flags().BoolVar(&syncPull, "pull", false, "Pull remote snapshot only")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if cfg.NimbusURL == "" {
		return fmt.Errorf("NIMBUS_URL not configured")
	}
	// The sync command drives the drain itself.
	cfg.DisableAutoSync = true

	client, err := notehive.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	start := time.Now()

	if !syncPull {
		fmt.Println("Draining queued offline changes...")
		if err := client.DrainNow(ctx); err != nil {
			return err
		}
	}

	if !syncPush {
		fmt.Println("Pulling remote snapshot...")
		if err := client.SyncOnlineChanges(ctx, ""); err != nil {
			return err
		}
	}

	fmt.Printf("Sync complete (took %s)\n", time.Since(start).Round(time.Millisecond))
	return nil
}
