package blockfsctl

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/googlecloudplatform/blockfs/internal/blockdev"
	"github.com/googlecloudplatform/blockfs/internal/filesys"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Walk the directory tree from / and report reachable files and directories.",
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

		var files, dirs int
		var bytes int64

		err = walkPath(fs, "/", func(path string, h *filesys.Handle) {
			if h.IsDir() {
				dirs++
				return
			}
			files++
			bytes += h.Length()
		})
		if err != nil {
			return fmt.Errorf("walk: %w", err)
		}

		fmt.Printf("reachable: %d directories, %d files, %d bytes\n", dirs, files, bytes)
		fmt.Printf("free-map:  %d/%d sectors allocated\n", fs.AllocatedSectors(), fs.TotalSectors())
		return nil
	},
}

// walkPath opens path, invokes visit on it, and if it is a directory
// recurses into every entry Readdir reports. Every call uses a fresh cwd
// rooted at /, since every path walked here is already absolute.
func walkPath(fs *filesys.FileSystem, path string, visit func(path string, h *filesys.Handle)) error {
	cwd := fs.NewCWD()
	h, err := fs.Open(cwd, path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	visit(path, h)

	if !h.IsDir() {
		h.Close()
		return nil
	}

	var children []string
	for {
		name, ok := h.Readdir()
		if !ok {
			break
		}
		children = append(children, name)
	}
	h.Close()

	for _, name := range children {
		childPath := path
		if !strings.HasSuffix(childPath, "/") {
			childPath += "/"
		}
		childPath += name
		if err := walkPath(fs, childPath, visit); err != nil {
			return err
		}
	}
	return nil
}
