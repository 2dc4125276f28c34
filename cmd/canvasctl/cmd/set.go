package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ar4mirez/pixring/pkg/canvasclient"
)

var setCmd = &cobra.Command{
	Use:   "set <x> <y> <colour> <updated>",
	Short: "Submit a single pixel write",
	Long: `Submit a pixel write over plain HTTP (POST /pixel). The replica
acknowledges receipt immediately; replication outcome is visible
separately via "canvasctl watch".`,
	Args: cobra.ExactArgs(4),
	RunE: runSet,
}

func runSet(cmd *cobra.Command, args []string) error {
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid x: %w", err)
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid y: %w", err)
	}
	colour, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid colour: %w", err)
	}
	updated, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("invalid updated: %w", err)
	}

	client := newClient()
	pixel := canvasclient.Pixel{X: int32(x), Y: int32(y), Colour: int32(colour), Updated: int32(updated)}

	if err := client.PutPixel(context.Background(), pixel); err != nil {
		return fmt.Errorf("submit pixel: %w", err)
	}

	if outputJSON {
		return PrintJSON(map[string]string{"status": "submitted"})
	}
	fmt.Println("submitted")
	return nil
}
