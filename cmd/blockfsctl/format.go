package blockfsctl

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/googlecloudplatform/blockfs/internal/blockdev"
	"github.com/googlecloudplatform/blockfs/internal/blocklog"
	"github.com/googlecloudplatform/blockfs/internal/filesys"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Create a new disk image and format it with an empty filesystem.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}

		device, err := blockdev.CreateFile(c.ImagePath, c.ImageSectors)
		if err != nil {
			return fmt.Errorf("create image: %w", err)
		}
		defer device.Close()

		fs, err := filesys.Format(device)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}

		blocklog.Infof("formatted %s: %d sectors, %d allocated", c.ImagePath, fs.TotalSectors(), fs.AllocatedSectors())
		return nil
	},
}
