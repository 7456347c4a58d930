package blockfsctl

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/googlecloudplatform/blockfs/internal/blockdev"
	"github.com/googlecloudplatform/blockfs/internal/filesys"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Print free-map and cache summary statistics for an existing image.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}

		device, err := blockdev.OpenFile(c.ImagePath)
		if err != nil {
			return fmt.Errorf("open image: %w", err)
		}
		defer device.Close()

		fs, err := filesys.Open(device)
		if err != nil {
			return fmt.Errorf("mount image: %w", err)
		}

		total := fs.TotalSectors()
		allocated := fs.AllocatedSectors()
		fmt.Printf("sectors:    %d total, %d allocated, %d free\n", total, allocated, total-allocated)
		fmt.Printf("hit rate:   %d%%\n", fs.HitRate())
		fmt.Printf("writes:     %d\n", fs.WriteCount())
		return nil
	},
}
