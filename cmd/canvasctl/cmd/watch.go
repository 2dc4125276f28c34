package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream replication outcomes and leadership changes",
	Long: `Open a websocket session to the replica and print every
server-to-client frame: "primary", "replicated: <payload>", and
"unreplicated: <payload>". Runs until interrupted.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	client := newClient()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	fmt.Printf("watching %s (ctrl-c to stop)\n", serverURL)
	err := client.Watch(ctx, func(frame string) {
		fmt.Println(frame)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
