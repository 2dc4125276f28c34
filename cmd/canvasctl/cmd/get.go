package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch the full canvas snapshot",
	Long:  `Fetch every stored pixel from the replica's GET /canvas endpoint.`,
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	pixels, err := client.GetCanvas(context.Background())
	if err != nil {
		return fmt.Errorf("get canvas: %w", err)
	}

	if outputJSON {
		return PrintJSON(pixels)
	}

	rows := make([][]string, 0, len(pixels))
	for _, p := range pixels {
		rows = append(rows, []string{
			strconv.Itoa(int(p.X)),
			strconv.Itoa(int(p.Y)),
			strconv.Itoa(int(p.Colour)),
			strconv.Itoa(int(p.Updated)),
		})
	}
	PrintTable([]string{"X", "Y", "COLOUR", "UPDATED"}, rows)
	return nil
}
